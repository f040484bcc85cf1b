package tracker

import "github.com/rs/zerolog"

// DefaultLinkThreshold is the cosine similarity a historical detection must
// exceed to be treated as the same identity
const DefaultLinkThreshold = 0.96

// FrameStats summarises the outcome of a single Update call
type FrameStats struct {
	// Detections is the number of embeddings in the batch
	Detections int
	// Matched is the number of detections linked to a historical node
	Matched int
	// Conflicts is the number of claims cleared by conflict resolution
	Conflicts int
	// NewTracks is the number of fresh track identities allocated
	NewTracks int
	// Nodes and Edges are the graph totals after the update
	Nodes int
	Edges int
}

// Recorder receives per frame statistics, eg: to export as metrics
type Recorder interface {
	RecordFrame(stats FrameStats)
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(FrameStats) {}

// Option configures a GraphTracker
type Option func(*GraphTracker)

// WithLinkThreshold sets the cosine similarity threshold, which must be in
// the range (0,1]
func WithLinkThreshold(threshold float64) Option {
	return func(gt *GraphTracker) {
		gt.linkThreshold = threshold
	}
}

// WithLogger sets the logger used for per frame debug output
func WithLogger(logger zerolog.Logger) Option {
	return func(gt *GraphTracker) {
		gt.logger = logger
	}
}

// WithRecorder sets the statistics recorder
func WithRecorder(r Recorder) Option {
	return func(gt *GraphTracker) {
		if r == nil {
			r = nopRecorder{}
		}
		gt.recorder = r
	}
}
