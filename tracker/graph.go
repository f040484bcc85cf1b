package tracker

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Node is a historical detection in the association graph
type Node struct {
	id      int64
	trackID int
}

// ID returns the node id, satisfying gonum graph.Node
func (n Node) ID() int64 {
	return n.id
}

// TrackID returns the track identity assigned to the detection
func (n Node) TrackID() int {
	return n.trackID
}

// AssociationGraph is an undirected graph whose nodes are every detection
// ever processed and whose edges join a detection to the historical
// detection it was matched to.  It only grows.
type AssociationGraph struct {
	g *simple.UndirectedGraph
	// nodes indexes Node values by id for ordered iteration
	nodes []Node
	// tracks maps a track id to the ids of nodes carrying it
	tracks map[int][]int64
	edges  int
}

// NewAssociationGraph returns an empty graph
func NewAssociationGraph() *AssociationGraph {
	return &AssociationGraph{
		g:      simple.NewUndirectedGraph(),
		tracks: make(map[int][]int64),
	}
}

// AddNode appends a node carrying trackID, its id is the next in sequence
func (a *AssociationGraph) AddNode(trackID int) Node {

	n := Node{id: int64(len(a.nodes)), trackID: trackID}

	a.g.AddNode(n)
	a.nodes = append(a.nodes, n)
	a.tracks[trackID] = append(a.tracks[trackID], n.id)

	return n
}

// Link adds an undirected edge between nodes x and y.  Linking an already
// linked pair has no effect.
func (a *AssociationGraph) Link(x, y int64) error {

	if x == y {
		return ErrSelfLoop
	}

	if _, ok := a.Node(x); !ok {
		return fmt.Errorf("link %d-%d: unknown node %d", x, y, x)
	}

	if _, ok := a.Node(y); !ok {
		return fmt.Errorf("link %d-%d: unknown node %d", x, y, y)
	}

	a.addEdge(x, y)

	return nil
}

// addEdge links two existing, distinct nodes
func (a *AssociationGraph) addEdge(x, y int64) {

	if a.g.HasEdgeBetween(x, y) {
		return
	}

	a.g.SetEdge(a.g.NewEdge(a.g.Node(x), a.g.Node(y)))
	a.edges++
}

// Nodes returns the number of nodes
func (a *AssociationGraph) Nodes() int {
	return len(a.nodes)
}

// Edges returns the number of undirected edges
func (a *AssociationGraph) Edges() int {
	return a.edges
}

// Node returns the node with the given id and whether it exists
func (a *AssociationGraph) Node(id int64) (Node, bool) {

	if id < 0 || id >= int64(len(a.nodes)) {
		return Node{}, false
	}

	return a.nodes[id], true
}

// HasEdge reports whether x and y are linked
func (a *AssociationGraph) HasEdge(x, y int64) bool {
	return a.g.HasEdgeBetween(x, y)
}

// Neighbors returns the ids of nodes linked to id in ascending order
func (a *AssociationGraph) Neighbors(id int64) []int64 {

	var out []int64

	for _, n := range graph.NodesOf(a.g.From(id)) {
		out = append(out, n.ID())
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// TrackNodes returns the ids of every node assigned trackID, in node order
func (a *AssociationGraph) TrackNodes(trackID int) []int64 {

	ids := a.tracks[trackID]
	out := make([]int64, len(ids))
	copy(out, ids)

	return out
}

// Tracks returns the number of distinct track identities in the graph
func (a *AssociationGraph) Tracks() int {
	return len(a.tracks)
}
