package extractor

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/swdee/go-mcmot/postprocess/reid"
)

// ErrOutputCount is returned when a model returns a different number of
// embeddings to the inputs it was given
var ErrOutputCount = errors.New("model output count does not match input count")

// Model runs an embedding network in inference mode over a batch of inputs
// and returns one embedding per input
type Model[T any] interface {
	Infer(batch []T) ([][]float32, error)
}

// BatchExtractor splits detections into model sized batches and runs each
// batch concurrently on a model drawn from the pool.  Embeddings are returned
// L2 normalized and in input order.
type BatchExtractor[T any] struct {
	pool *Pool[T]
	// batchSize is the model input tensor batch size
	batchSize int
}

// NewBatchExtractor returns a BatchExtractor running batches of batchSize
// inputs on models from pool
func NewBatchExtractor[T any](pool *Pool[T], batchSize int) (*BatchExtractor[T], error) {

	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	if pool == nil || pool.Size() == 0 {
		return nil, errors.New("model pool is empty")
	}

	return &BatchExtractor[T]{
		pool:      pool,
		batchSize: batchSize,
	}, nil
}

// Extract returns the embedding of each object.  Any batch failure fails the
// whole call.
func (e *BatchExtractor[T]) Extract(objects []T) ([][]float32, error) {

	var wg sync.WaitGroup
	total := len(objects)

	// collect per object embeddings
	allEmbeddings := make([][]float32, total)
	errCh := make(chan error, (total+e.batchSize-1)/e.batchSize)

	for offset := 0; offset < total; offset += e.batchSize {

		end := offset + e.batchSize

		if end > total {
			end = total
		}

		model, ok := e.pool.Get()

		if !ok {
			errCh <- fmt.Errorf("batch at offset %d: %w", offset, ErrPoolClosed)
			break
		}

		wg.Add(1)

		go func(m Model[T], batch []T, off int) {
			defer wg.Done()

			embeddings, err := m.Infer(batch)
			e.pool.Return(m)

			if err != nil {
				errCh <- fmt.Errorf("batch at offset %d: %w", off, err)
				return
			}

			if len(embeddings) != len(batch) {
				errCh <- fmt.Errorf("batch at offset %d: %w: got %d, want %d",
					off, ErrOutputCount, len(embeddings), len(batch))
				return
			}

			// copy this batch's embeddings into their input positions
			for i, emb := range embeddings {
				allEmbeddings[off+i] = reid.NormalizeVec(emb)
			}
		}(model, objects[offset:end], offset)
	}

	wg.Wait()
	close(errCh)

	// if any error, just bail
	if err, ok := <-errCh; ok {
		return nil, fmt.Errorf("embedding extraction failed: %w", err)
	}

	return allEmbeddings, nil
}

// ClampRect restricts a bounding box to a frame of the given width and
// height
func ClampRect(r image.Rectangle, width, height int) image.Rectangle {
	return r.Canon().Intersect(image.Rect(0, 0, width, height))
}
