package cvcrop

import (
	"fmt"
	"image"

	"github.com/swdee/go-mcmot/extractor"
	"gocv.io/x/gocv"
)

// Crop is a detected object within a video frame
type Crop struct {
	// Frame is the source image, it is not modified
	Frame gocv.Mat
	// Box is the object bounding box in frame pixel coordinates
	Box image.Rectangle
}

// MatModel is an embedding network taking images already scaled to its input
// tensor size
type MatModel interface {
	InferMats(images []gocv.Mat) ([][]float32, error)
}

// Model crops each detection from its frame, resizes it to the network input
// size and runs the wrapped MatModel.  It satisfies extractor.Model[Crop].
type Model struct {
	model MatModel
	// scaleSize is the size of the input tensor dimensions to scale objects to
	scaleSize image.Point
}

// NewModel wraps a MatModel whose input tensor is width x height
func NewModel(model MatModel, width, height int) *Model {
	return &Model{
		model:     model,
		scaleSize: image.Pt(width, height),
	}
}

// Infer implements extractor.Model
func (m *Model) Infer(batch []Crop) ([][]float32, error) {

	images := make([]gocv.Mat, 0, len(batch))

	defer func() {
		for _, img := range images {
			img.Close()
		}
	}()

	for i, obj := range batch {

		img, err := m.prepare(obj)

		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}

		images = append(images, img)
	}

	return m.model.InferMats(images)
}

// prepare clamps the object's box to the frame, crops it and resizes it to
// the model input size
func (m *Model) prepare(obj Crop) (gocv.Mat, error) {

	box := extractor.ClampRect(obj.Box, obj.Frame.Cols(), obj.Frame.Rows())

	if box.Empty() {
		return gocv.Mat{}, fmt.Errorf("bounding box %v is outside the frame", obj.Box)
	}

	// get the objects region of interest from source Mat
	roi := obj.Frame.Region(box)
	defer roi.Close()

	img := gocv.NewMat()
	gocv.Resize(roi, &img, m.scaleSize, 0, 0, gocv.InterpolationArea)

	return img, nil
}
