package graph

// Node is a dated task in the dependency graph.
type Node struct {
	ID       string
	Title    string
	Duration int  // whole days, at least 1
	SelfLoop bool // a scheduling relation points from the task to itself
}

// Graph is the scheduling graph over the dated subset of a snapshot.
// Nodes live in an arena; edges are stored as arena indices.
type Graph struct {
	Nodes  []Node
	Index  map[string]int // task id -> position in Nodes
	Adj    [][]int        // node -> nodes that must follow it
	RevAdj [][]int        // node -> nodes it must follow (its dependencies)
	Roots  []int          // nodes with no dependencies
	Leaves []int          // nodes nothing depends on
}
