package tracker

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitAt returns a 2D unit vector at the given angle in radians padded with
// zeros to dim
func unitAt(angle float64, dim int) []float32 {
	v := make([]float32, dim)
	v[0] = float32(math.Cos(angle))
	v[1] = float32(math.Sin(angle))
	return v
}

// oneHot returns a unit vector along axis i
func oneHot(i, dim int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

// withSimilarity returns a unit vector with the given cosine similarity to
// oneHot(axis) by tilting towards oneHot(other)
func withSimilarity(sim float64, axis, other, dim int) []float32 {
	v := make([]float32, dim)
	v[axis] = float32(sim)
	v[other] = float32(math.Sqrt(1 - sim*sim))
	return v
}

func newTestTracker(t *testing.T, opts ...Option) *GraphTracker {
	t.Helper()

	gt, err := NewGraphTracker(opts...)
	require.NoError(t, err)

	return gt
}

// TestScenarioFirstDetection checks an empty tracker allocates track 0
func TestScenarioFirstDetection(t *testing.T) {

	gt := newTestTracker(t)

	ids, err := gt.Update([][]float32{{0.3, -1.2, 4}})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, ids)
	assert.Equal(t, 1, gt.Graph().Nodes())
	assert.Equal(t, 0, gt.Graph().Edges())

	node, ok := gt.Graph().Node(0)
	require.True(t, ok)
	assert.Equal(t, 0, node.TrackID())
}

// TestScenarioMatch checks a detection above threshold joins the track
func TestScenarioMatch(t *testing.T) {

	gt := newTestTracker(t)

	_, err := gt.Update([][]float32{oneHot(0, 4)})
	require.NoError(t, err)

	ids, err := gt.Update([][]float32{withSimilarity(0.99, 0, 1, 4)})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, ids)
	assert.Equal(t, 2, gt.Graph().Nodes())
	assert.Equal(t, 1, gt.Graph().Edges())
	assert.True(t, gt.Graph().HasEdge(0, 1))

	node, _ := gt.Graph().Node(1)
	assert.Equal(t, 0, node.TrackID())
}

// TestScenarioHigherSimilarityKeepsTrack checks that of two detections
// similar to the same historical node the more similar keeps its track
func TestScenarioHigherSimilarityKeepsTrack(t *testing.T) {

	const dim = 8

	gt := newTestTracker(t)

	// seed tracks 0..5, node 5 carries track 5
	for i := 0; i < 6; i++ {
		ids, err := gt.Update([][]float32{oneHot(i, dim)})
		require.NoError(t, err)
		require.Equal(t, []int{i}, ids)
	}

	e1 := withSimilarity(0.97, 5, 6, dim)
	e2 := withSimilarity(0.99, 5, 7, dim)

	ids, err := gt.Update([][]float32{e1, e2})
	require.NoError(t, err)

	assert.Equal(t, []int{6, 5}, ids)
	assert.True(t, gt.Graph().HasEdge(7, 5))
	assert.Equal(t, []int64{5}, gt.Graph().Neighbors(7))
	assert.Empty(t, gt.Graph().Neighbors(6))
}

// TestConflictBetweenNodesOfSameTrack checks two historical nodes of one
// track claiming different positions are reduced to a single claim
func TestConflictBetweenNodesOfSameTrack(t *testing.T) {

	const dim = 3

	rec := &statsRecorder{}
	gt := newTestTracker(t, WithRecorder(rec))

	// node 0 and node 1 both carry track 0
	_, err := gt.Update([][]float32{unitAt(0, dim)})
	require.NoError(t, err)

	ids, err := gt.Update([][]float32{unitAt(math.Acos(0.99), dim)})
	require.NoError(t, err)
	require.Equal(t, []int{0}, ids)

	// x is nearest node 0, y is nearest node 1, both above threshold
	x := unitAt(-0.1, dim)
	y := unitAt(0.25, dim)

	assigns, err := gt.UpdateDetailed([][]float32{x, y})
	require.NoError(t, err)
	require.Len(t, assigns, 2)

	assert.Equal(t, 0, assigns[0].TrackID)
	assert.Equal(t, int64(0), assigns[0].LinkedNode)
	assert.InDelta(t, math.Cos(0.1), assigns[0].Similarity, 1e-6)
	assert.False(t, assigns[0].New)

	assert.Equal(t, 1, assigns[1].TrackID)
	assert.Equal(t, int64(-1), assigns[1].LinkedNode)
	assert.Equal(t, 0.0, assigns[1].Similarity)
	assert.True(t, assigns[1].New)

	assert.True(t, gt.Graph().HasEdge(2, 0))
	assert.Empty(t, gt.Graph().Neighbors(3))

	last := rec.frames[len(rec.frames)-1]
	assert.Equal(t, FrameStats{
		Detections: 2,
		Matched:    1,
		Conflicts:  1,
		NewTracks:  1,
		Nodes:      4,
		Edges:      2,
	}, last)
}

func TestResolveConflicts(t *testing.T) {

	tests := []struct {
		name        string
		trackIDs    []int
		maxSim      []float64
		linked      []int64
		wantIDs     []int
		wantLinked  []int64
		wantCleared int
	}{
		{
			name:        "higher similarity wins",
			trackIDs:    []int{2, 2, 2},
			maxSim:      []float64{0.99, 0.97, 0.98},
			linked:      []int64{4, 5, 6},
			wantIDs:     []int{2, -1, -1},
			wantLinked:  []int64{4, -1, -1},
			wantCleared: 2,
		},
		{
			name:        "equal similarity clears earlier position",
			trackIDs:    []int{3, 3, -1, 3},
			maxSim:      []float64{0.97, 0.97, 0, 0.99},
			linked:      []int64{1, 2, -1, 3},
			wantIDs:     []int{-1, -1, -1, 3},
			wantLinked:  []int64{-1, -1, -1, 3},
			wantCleared: 2,
		},
		{
			name:        "cleared position stops comparing",
			trackIDs:    []int{1, 1, 1},
			maxSim:      []float64{0.97, 0.99, 0.98},
			linked:      []int64{0, 1, 2},
			wantIDs:     []int{-1, 1, -1},
			wantLinked:  []int64{-1, 1, -1},
			wantCleared: 2,
		},
		{
			name:        "distinct tracks untouched",
			trackIDs:    []int{0, 1, -1},
			maxSim:      []float64{0.97, 0.98, 0},
			linked:      []int64{0, 1, -1},
			wantIDs:     []int{0, 1, -1},
			wantLinked:  []int64{0, 1, -1},
			wantCleared: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleared := resolveConflicts(tt.trackIDs, tt.maxSim, tt.linked)
			assert.Equal(t, tt.wantCleared, cleared)
			assert.Equal(t, tt.wantIDs, tt.trackIDs)
			assert.Equal(t, tt.wantLinked, tt.linked)
		})
	}
}

// TestThresholdBoundary checks a similarity equal to the threshold does not
// match while the next representable threshold below it does
func TestThresholdBoundary(t *testing.T) {

	e0 := []float32{1, 0}
	e1 := []float32{3, 4} // cosine similarity to e0 is exactly 0.6

	gt := newTestTracker(t, WithLinkThreshold(0.6))

	_, err := gt.Update([][]float32{e0})
	require.NoError(t, err)

	ids, err := gt.Update([][]float32{e1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
	assert.Equal(t, 0, gt.Graph().Edges())

	gt = newTestTracker(t, WithLinkThreshold(math.Nextafter(0.6, 0)))

	_, err = gt.Update([][]float32{e0})
	require.NoError(t, err)

	ids, err = gt.Update([][]float32{e1})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids)
	assert.True(t, gt.Graph().HasEdge(0, 1))
}

// TestRepeatedDetection checks identical detections keep their track while a
// dissimilar one is given a new id
func TestRepeatedDetection(t *testing.T) {

	gt := newTestTracker(t)
	e := withSimilarity(0.95, 0, 1, 2)

	for i := 0; i < 4; i++ {
		ids, err := gt.Update([][]float32{e})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, ids)
	}

	// every repeat links to node 0, the first node to claim the position
	assert.Equal(t, []int64{1, 2, 3}, gt.Graph().Neighbors(0))

	ids, err := gt.Update([][]float32{oneHot(0, 2)})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
	assert.Equal(t, []int64{0, 1, 2, 3}, gt.Graph().TrackNodes(0))
}

func TestUpdateErrors(t *testing.T) {

	gt := newTestTracker(t)

	_, err := gt.Update(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = gt.Update([][]float32{})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	// inconsistent first batch
	_, err = gt.Update([][]float32{{1, 0}, {1, 0, 0}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var dimErr *DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Index)
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)

	// zero length embedding
	_, err = gt.Update([][]float32{{}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	assert.Equal(t, 0, gt.Store().Len())
	assert.Equal(t, 0, gt.Store().Dim())
	assert.Equal(t, 0, gt.Graph().Nodes())
}

// TestDimensionMismatchLeavesStateUntouched checks a rejected batch does not
// partially mutate the tracker
func TestDimensionMismatchLeavesStateUntouched(t *testing.T) {

	gt := newTestTracker(t)

	_, err := gt.Update([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	_, err = gt.Update([][]float32{{1, 0}, {0, 1}, {0, 0, 1}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	assert.Equal(t, 2, gt.Store().Len())
	assert.Equal(t, 2, gt.Graph().Nodes())
	assert.Equal(t, 0, gt.Graph().Edges())

	// track counter was not advanced by the failed call
	ids, err := gt.Update([][]float32{{-1, -1}})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids)
}

func TestNewGraphTrackerThreshold(t *testing.T) {

	for _, th := range []float64{0, -0.5, 1.0001, math.NaN()} {
		_, err := NewGraphTracker(WithLinkThreshold(th))
		assert.ErrorIs(t, err, ErrInvalidThreshold, "threshold %v", th)
	}

	gt := newTestTracker(t, WithLinkThreshold(1))
	assert.Equal(t, 1.0, gt.LinkThreshold())

	gt = newTestTracker(t)
	assert.Equal(t, DefaultLinkThreshold, gt.LinkThreshold())
}

func TestReset(t *testing.T) {

	gt := newTestTracker(t)

	_, err := gt.Update([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	gt.Reset()

	assert.Equal(t, 0, gt.Store().Len())
	assert.Equal(t, 0, gt.Graph().Nodes())

	// a new dimensionality is accepted after reset
	ids, err := gt.Update([][]float32{{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids)
}

// clusteredFrames generates frames of detections drawn around a few fixed
// centres so that some detections match and others do not
func clusteredFrames(seed uint64, frames, dim int) [][][]float32 {

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	centres := make([][]float64, 5)

	for i := range centres {
		centres[i] = make([]float64, dim)
		for j := range centres[i] {
			centres[i][j] = rng.NormFloat64()
		}
	}

	out := make([][][]float32, frames)

	for f := range out {

		n := 1 + rng.IntN(5)

		for k := 0; k < n; k++ {

			c := centres[rng.IntN(len(centres))]
			v := make([]float32, dim)

			for j := range v {
				v[j] = float32(c[j] + 0.08*rng.NormFloat64())
			}

			out[f] = append(out[f], v)
		}
	}

	return out
}

// TestTrackerProperties checks determinism, id monotonicity, per frame
// uniqueness and store/graph consistency over a generated sequence
func TestTrackerProperties(t *testing.T) {

	frames := clusteredFrames(42, 60, 16)

	run := func() ([][]Assignment, *GraphTracker) {

		gt := newTestTracker(t, WithLinkThreshold(0.9))

		var all [][]Assignment

		for _, frame := range frames {
			assigns, err := gt.UpdateDetailed(frame)
			require.NoError(t, err)
			all = append(all, assigns)

			require.Equal(t, gt.Store().Len(), gt.Graph().Nodes())
		}

		return all, gt
	}

	first, gt1 := run()
	second, gt2 := run()

	// determinism
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("assignments differ between runs (-first +second):\n%s", diff)
	}

	f1, a1, err := gt1.Export()
	require.NoError(t, err)
	f2, a2, err := gt2.Export()
	require.NoError(t, err)

	assert.Equal(t, f1.RawMatrix().Data, f2.RawMatrix().Data)

	if diff := cmp.Diff(a1, a2); diff != "" {
		t.Fatalf("adjacency differs between runs:\n%s", diff)
	}

	nextNode := int64(0)
	lastNewTrack := -1
	matches, news := 0, 0

	for _, frame := range first {

		seen := make(map[int]bool)

		for _, a := range frame {

			// contiguous node ids
			assert.Equal(t, nextNode, a.NodeID)
			nextNode++

			// no duplicate ids within a frame
			assert.False(t, seen[a.TrackID], "duplicate track %d in frame", a.TrackID)
			seen[a.TrackID] = true

			if a.New {
				// fresh ids strictly increase
				assert.Greater(t, a.TrackID, lastNewTrack)
				lastNewTrack = a.TrackID
				news++
				continue
			}

			matches++
			assert.Less(t, a.LinkedNode, a.NodeID)
			assert.Greater(t, a.Similarity, 0.9)

			linked, ok := gt1.Graph().Node(a.LinkedNode)
			require.True(t, ok)
			assert.Equal(t, linked.TrackID(), a.TrackID)
		}
	}

	// the generated data exercises both paths
	assert.Positive(t, matches)
	assert.Positive(t, news)
	assert.Equal(t, matches, gt1.Graph().Edges())
}

type statsRecorder struct {
	frames []FrameStats
}

func (r *statsRecorder) RecordFrame(s FrameStats) {
	r.frames = append(r.frames, s)
}

func TestLoggerAndRecorder(t *testing.T) {

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	rec := &statsRecorder{}

	gt := newTestTracker(t, WithLogger(logger), WithRecorder(rec))

	_, err := gt.Update([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	_, err = gt.Update([][]float32{{1, 0.01}})
	require.NoError(t, err)

	require.Len(t, rec.frames, 2)
	assert.Equal(t, FrameStats{Detections: 2, NewTracks: 2, Nodes: 2}, rec.frames[0])
	assert.Equal(t, FrameStats{Detections: 1, Matched: 1, Nodes: 3, Edges: 1}, rec.frames[1])

	assert.Contains(t, buf.String(), `"message":"frame associated"`)
	assert.Contains(t, buf.String(), `"new_tracks":2`)

	// nil recorder falls back to no-op
	gt = newTestTracker(t, WithRecorder(nil))
	_, err = gt.Update([][]float32{{1}})
	assert.NoError(t, err)
}
