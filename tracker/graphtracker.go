package tracker

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/swdee/go-mcmot/postprocess/reid"
	"gonum.org/v1/gonum/mat"
)

// unmatched marks a batch position without a proposed track id or linked node
const unmatched = -1

// GraphTracker assigns persistent track identities to detections by greedy
// nearest embedding matching against every detection seen so far, and grows
// an association graph over all detections.
//
// Matching is node driven: each historical node only claims the batch
// position it is most similar to.  A detection therefore misses its most
// similar historical node when that node's own best position lies elsewhere,
// and two nodes of the same track may claim two different positions.
// Tracking results depend on this asymmetry, it is a known gap in the policy
// and not a best global match.
//
// GraphTracker is not safe for concurrent use, callers must serialize Update,
// Export and GraphInfer.
type GraphTracker struct {
	// linkThreshold is the cosine similarity a match must exceed
	linkThreshold float64
	// trackIDCount is the next fresh track id to allocate
	trackIDCount int
	// store holds one embedding per graph node
	store *EmbeddingStore
	// graph holds every detection and its matched edges
	graph    *AssociationGraph
	logger   zerolog.Logger
	recorder Recorder
}

// Assignment describes how a single detection was given its track id
type Assignment struct {
	// NodeID is the graph node created for the detection
	NodeID int64
	// TrackID is the final track identity
	TrackID int
	// LinkedNode is the historical node the detection was linked to, or -1
	LinkedNode int64
	// Similarity is the cosine similarity to LinkedNode, or 0 when unlinked
	Similarity float64
	// New is true when a fresh track id was allocated
	New bool
}

// NewGraphTracker returns a GraphTracker with empty state
func NewGraphTracker(opts ...Option) (*GraphTracker, error) {

	gt := &GraphTracker{
		linkThreshold: DefaultLinkThreshold,
		logger:        zerolog.Nop(),
		recorder:      nopRecorder{},
	}

	for _, opt := range opts {
		opt(gt)
	}

	if !(gt.linkThreshold > 0 && gt.linkThreshold <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, gt.linkThreshold)
	}

	gt.Reset()

	return gt, nil
}

// Reset clears all detections, edges and the track id counter
func (gt *GraphTracker) Reset() {
	gt.trackIDCount = 0
	gt.store = NewEmbeddingStore()
	gt.graph = NewAssociationGraph()
}

// LinkThreshold returns the configured similarity threshold
func (gt *GraphTracker) LinkThreshold() float64 {
	return gt.linkThreshold
}

// Store returns the embedding store.  It must not be modified by the caller.
func (gt *GraphTracker) Store() *EmbeddingStore {
	return gt.store
}

// Graph returns the association graph.  It must not be modified by the caller.
func (gt *GraphTracker) Graph() *AssociationGraph {
	return gt.graph
}

// Update associates a frame's detection embeddings with historical
// detections and returns a track id per embedding in input order
func (gt *GraphTracker) Update(features [][]float32) ([]int, error) {

	assigns, err := gt.UpdateDetailed(features)

	if err != nil {
		return nil, err
	}

	trackIDs := make([]int, len(assigns))

	for i, a := range assigns {
		trackIDs[i] = a.TrackID
	}

	return trackIDs, nil
}

// UpdateDetailed is Update but returns how each detection was assigned.  The
// batch is validated before any state changes, a failed call leaves the
// tracker untouched.
func (gt *GraphTracker) UpdateDetailed(features [][]float32) ([]Assignment, error) {

	if len(features) == 0 {
		return nil, ErrEmptyBatch
	}

	if err := gt.store.Validate(features); err != nil {
		return nil, fmt.Errorf("invalid detection batch: %w", err)
	}

	n := len(features)

	trackIDs := make([]int, n)
	maxSim := make([]float64, n)
	linkedNode := make([]int64, n)

	for i := range trackIDs {
		trackIDs[i] = unmatched
		linkedNode[i] = unmatched
	}

	// Step 1: each historical node claims its best matching position
	gt.matchCandidates(features, trackIDs, maxSim, linkedNode)

	matched := 0

	for _, id := range trackIDs {
		if id != unmatched {
			matched++
		}
	}

	// Step 2: remove same track id claims within the batch
	conflicts := resolveConflicts(trackIDs, maxSim, linkedNode)

	// Step 3: allocate new track ids
	newTracks := 0

	for i := range trackIDs {
		if trackIDs[i] == unmatched {
			trackIDs[i] = gt.trackIDCount
			gt.trackIDCount++
			newTracks++
		}
	}

	// Step 4: add nodes and edges
	assigns := make([]Assignment, n)

	for i, feat := range features {

		storeID := gt.store.append(feat)
		node := gt.graph.AddNode(trackIDs[i])

		if node.ID() != storeID {
			// store and graph are only appended to here
			panic(fmt.Sprintf("store/graph out of sync: node %d, store %d", node.ID(), storeID))
		}

		assigns[i] = Assignment{
			NodeID:     node.ID(),
			TrackID:    trackIDs[i],
			LinkedNode: linkedNode[i],
			New:        linkedNode[i] == unmatched,
		}

		if linkedNode[i] != unmatched {
			gt.graph.addEdge(node.ID(), linkedNode[i])
			assigns[i].Similarity = maxSim[i]
		}
	}

	stats := FrameStats{
		Detections: n,
		Matched:    matched - conflicts,
		Conflicts:  conflicts,
		NewTracks:  newTracks,
		Nodes:      gt.graph.Nodes(),
		Edges:      gt.graph.Edges(),
	}

	gt.recorder.RecordFrame(stats)

	gt.logger.Debug().
		Int("detections", stats.Detections).
		Int("matched", stats.Matched).
		Int("conflicts", stats.Conflicts).
		Int("new_tracks", stats.NewTracks).
		Int("nodes", stats.Nodes).
		Int("edges", stats.Edges).
		Msg("frame associated")

	return assigns, nil
}

// matchCandidates runs the greedy node driven matching pass.  Nodes are
// visited in ascending id order, for each node only its arg max position is
// considered (lowest position wins a tie) and the claim replaces an earlier
// one only if strictly more similar.
func (gt *GraphTracker) matchCandidates(features [][]float32, trackIDs []int,
	maxSim []float64, linkedNode []int64) {

	hist := gt.store.view()

	if hist == nil {
		return
	}

	batch, batchNorms := batchMatrix(features)
	sim := reid.CrossSimilarity(hist, batch, gt.store.normsView(), batchNorms)

	rows, _ := sim.Dims()

	for nodeID := 0; nodeID < rows; nodeID++ {

		row := sim.RawRowView(nodeID)
		ind := 0

		for j := 1; j < len(row); j++ {
			if row[j] > row[ind] {
				ind = j
			}
		}

		if row[ind] > gt.linkThreshold && row[ind] > maxSim[ind] {
			node, _ := gt.graph.Node(int64(nodeID))
			trackIDs[ind] = node.TrackID()
			maxSim[ind] = row[ind]
			linkedNode[ind] = int64(nodeID)
		}
	}
}

// resolveConflicts clears duplicate track id claims within a batch, keeping
// the more similar claimant.  Positions are compared pairwise in increasing
// order, on equal similarity the earlier position is cleared, and a cleared
// position makes no further comparisons.  It returns the number of claims
// cleared.
func resolveConflicts(trackIDs []int, maxSim []float64, linkedNode []int64) int {

	cleared := 0

	for i := range trackIDs {

		if trackIDs[i] == unmatched {
			continue
		}

		for j := i + 1; j < len(trackIDs); j++ {

			if trackIDs[j] == unmatched {
				continue
			}

			if trackIDs[i] != trackIDs[j] {
				continue
			}

			cleared++

			if maxSim[i] > maxSim[j] {
				trackIDs[j] = unmatched
				linkedNode[j] = unmatched
			} else {
				trackIDs[i] = unmatched
				linkedNode[i] = unmatched
				break
			}
		}
	}

	return cleared
}

// batchMatrix converts a batch of embeddings into an n x d matrix and their
// L2 norms
func batchMatrix(features [][]float32) (*mat.Dense, []float64) {

	n := len(features)
	d := len(features[0])

	data := make([]float64, 0, n*d)
	norms := make([]float64, n)

	for i, feat := range features {
		for _, v := range feat {
			data = append(data, float64(v))
		}

		norms[i] = reid.L2Norm(feat)
	}

	return mat.NewDense(n, d, data), norms
}
