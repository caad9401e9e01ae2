package graph

import (
	"sort"

	"github.com/wolf75222/alldone/internal/model"
)

// Build constructs the scheduling graph from a task/relation snapshot.
//
// Only tasks with both dates become nodes. A blocks or depends relation adds
// the edge source -> target when both endpoints are nodes; anything else is
// dropped. Repeated edges between the same pair collapse into one.
func Build(tasks []model.Task, relations []model.Relation) *Graph {
	g := &Graph{Index: make(map[string]int)}

	for _, t := range tasks {
		if !t.HasDates() {
			continue
		}
		if _, dup := g.Index[t.ID]; dup {
			continue
		}
		g.Index[t.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{
			ID:       t.ID,
			Title:    t.Title,
			Duration: t.Duration(),
		})
	}

	g.Adj = make([][]int, len(g.Nodes))
	g.RevAdj = make([][]int, len(g.Nodes))

	edgeSet := make(map[[2]int]bool)
	for _, r := range relations {
		if !r.Type.Schedules() {
			continue
		}
		from, ok := g.Index[r.SourceTaskID]
		if !ok {
			continue
		}
		to, ok := g.Index[r.TargetTaskID]
		if !ok {
			continue
		}
		if from == to {
			g.Nodes[from].SelfLoop = true
			continue
		}
		g.addEdge(edgeSet, from, to)
	}

	g.findEnds()
	return g
}

func (g *Graph) addEdge(edgeSet map[[2]int]bool, from, to int) {
	key := [2]int{from, to}
	if edgeSet[key] {
		return
	}
	edgeSet[key] = true
	g.Adj[from] = append(g.Adj[from], to)
	g.RevAdj[to] = append(g.RevAdj[to], from)
}

func (g *Graph) findEnds() {
	g.Roots = nil
	g.Leaves = nil
	for i := range g.Nodes {
		if len(g.RevAdj[i]) == 0 {
			g.Roots = append(g.Roots, i)
		}
		if len(g.Adj[i]) == 0 {
			g.Leaves = append(g.Leaves, i)
		}
	}
}

// TaskCount returns the number of nodes in the graph.
func (g *Graph) TaskCount() int {
	return len(g.Nodes)
}

// Dependencies returns the ids of the nodes id must follow.
func (g *Graph) Dependencies(id string) []string {
	i, ok := g.Index[id]
	if !ok {
		return nil
	}
	return g.ids(g.RevAdj[i])
}

// Dependents returns the ids of the nodes that must follow id.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.Index[id]
	if !ok {
		return nil
	}
	return g.ids(g.Adj[i])
}

func (g *Graph) ids(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.Nodes[i].ID
	}
	return out
}

// Cycles returns every dependency cycle in the graph: each strongly connected
// component with more than one node, plus each node with a self-loop. Ids
// inside a cycle and the cycles themselves follow node order.
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	for _, comp := range g.components() {
		if len(comp) == 1 && !g.Nodes[comp[0]].SelfLoop {
			continue
		}
		sort.Ints(comp)
		cycles = append(cycles, g.ids(comp))
	}
	sort.Slice(cycles, func(a, b int) bool {
		return g.Index[cycles[a][0]] < g.Index[cycles[b][0]]
	})
	return cycles
}

// HasCycle reports whether any dependency cycle exists.
func (g *Graph) HasCycle() bool {
	return len(g.Cycles()) > 0
}

// components computes strongly connected components with Tarjan's algorithm.
func (g *Graph) components() [][]int {
	n := len(g.Nodes)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var (
		stack []int
		comps [][]int
		next  int
	)

	var visit func(v int)
	visit = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Adj[v] {
			if index[w] == -1 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			comps = append(comps, comp)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			visit(v)
		}
	}
	return comps
}

// Filter returns a new Graph containing only nodes matching the predicate.
// Edges touching a removed node are dropped.
func (g *Graph) Filter(keep func(*Node) bool) *Graph {
	out := &Graph{Index: make(map[string]int)}
	remap := make([]int, len(g.Nodes))
	for i := range g.Nodes {
		remap[i] = -1
		if !keep(&g.Nodes[i]) {
			continue
		}
		remap[i] = len(out.Nodes)
		out.Index[g.Nodes[i].ID] = len(out.Nodes)
		out.Nodes = append(out.Nodes, g.Nodes[i])
	}

	out.Adj = make([][]int, len(out.Nodes))
	out.RevAdj = make([][]int, len(out.Nodes))
	edgeSet := make(map[[2]int]bool)
	for from, tos := range g.Adj {
		if remap[from] < 0 {
			continue
		}
		for _, to := range tos {
			if remap[to] < 0 {
				continue
			}
			out.addEdge(edgeSet, remap[from], remap[to])
		}
	}

	out.findEnds()
	return out
}
