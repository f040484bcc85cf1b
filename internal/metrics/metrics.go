package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/swdee/go-mcmot/tracker"
)

// Prometheus collectors for association outcomes
var (
	// DetectionsTotal counts every detection passed to the tracker
	DetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcmot_detections_total",
			Help: "Total number of detections associated",
		},
	)

	// MatchesTotal counts detections linked to a historical detection
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcmot_matches_total",
			Help: "Total number of detections matched to an existing track",
		},
	)

	// ConflictsTotal counts same track claims cleared within a frame
	ConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcmot_conflicts_total",
			Help: "Total number of intra-frame track id conflicts resolved",
		},
	)

	// NewTracksTotal counts allocated track identities
	NewTracksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcmot_new_tracks_total",
			Help: "Total number of track identities allocated",
		},
	)

	// GraphNodes is the current number of association graph nodes
	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcmot_graph_nodes",
			Help: "Number of nodes in the association graph",
		},
	)

	// GraphEdges is the current number of association graph edges
	GraphEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcmot_graph_edges",
			Help: "Number of edges in the association graph",
		},
	)
)

// Recorder publishes tracker frame statistics to the Prometheus collectors
type Recorder struct{}

// NewRecorder returns a Recorder for use with tracker.WithRecorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordFrame implements tracker.Recorder
func (r *Recorder) RecordFrame(s tracker.FrameStats) {
	DetectionsTotal.Add(float64(s.Detections))
	MatchesTotal.Add(float64(s.Matched))
	ConflictsTotal.Add(float64(s.Conflicts))
	NewTracksTotal.Add(float64(s.NewTracks))
	GraphNodes.Set(float64(s.Nodes))
	GraphEdges.Set(float64(s.Edges))
}
