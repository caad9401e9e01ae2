package cpm

import (
	"sort"

	"github.com/wolf75222/alldone/internal/graph"
	"github.com/wolf75222/alldone/internal/model"
)

// Analyze performs critical path method analysis on a task snapshot.
//
// Only tasks with both dates are scheduled. Tasks that sit on a dependency
// cycle cannot be ordered; they are listed in Result.Excluded and scheduled
// as if they and their edges were absent.
func Analyze(tasks []model.Task, relations []model.Relation) *Result {
	g := graph.Build(tasks, relations)

	excluded := make(map[string]bool)
	for _, cycle := range g.Cycles() {
		for _, id := range cycle {
			excluded[id] = true
		}
	}
	if len(excluded) > 0 {
		g = g.Filter(func(n *graph.Node) bool { return !excluded[n.ID] })
	}

	order := topoSort(g)
	sched := make([]Schedule, len(g.Nodes))
	for i, n := range g.Nodes {
		sched[i] = Schedule{TaskID: n.ID, Duration: n.Duration}
	}

	// Forward pass: ES = max(EF of all dependencies)
	for _, v := range order {
		es := 0
		for _, dep := range g.RevAdj[v] {
			es = max(es, sched[dep].EF)
		}
		sched[v].ES = es
		sched[v].EF = es + sched[v].Duration
	}

	total := 0
	for i := range sched {
		total = max(total, sched[i].EF)
	}

	// Backward pass: sinks finish at project end, everything else as late as
	// its earliest-starting dependent allows.
	for k := len(order) - 1; k >= 0; k-- {
		v := order[k]
		lf := total
		for _, succ := range g.Adj[v] {
			lf = min(lf, sched[succ].LS)
		}
		sched[v].LF = lf
		sched[v].LS = lf - sched[v].Duration
		sched[v].Slack = sched[v].LS - sched[v].ES
		sched[v].IsCritical = sched[v].Slack <= 0
	}

	result := &Result{
		Tasks:           make(map[string]*Schedule, len(sched)),
		Critical:        make(IDSet),
		ProjectDuration: total,
		TopoOrder:       make([]string, 0, len(order)),
	}
	for i := range sched {
		result.Tasks[sched[i].TaskID] = &sched[i]
	}
	for _, v := range order {
		id := g.Nodes[v].ID
		result.TopoOrder = append(result.TopoOrder, id)
		if sched[v].IsCritical {
			result.Critical[id] = struct{}{}
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}
	for id := range excluded {
		result.Excluded = append(result.Excluded, id)
	}
	sort.Strings(result.Excluded)

	result.Waves = computeWaves(result)
	return result
}

// CriticalPath returns the ids of all zero-slack tasks.
func CriticalPath(tasks []model.Task, relations []model.Relation) IDSet {
	return Analyze(tasks, relations).Critical
}

// Connections returns one drawable edge per blocks/depends relation whose
// endpoints are both in tasks. Dates are not required.
func Connections(tasks []model.Task, relations []model.Relation) []Edge {
	ids := model.Index(tasks)

	var edges []Edge
	for _, r := range relations {
		if !r.Type.Schedules() {
			continue
		}
		if _, ok := ids[r.SourceTaskID]; !ok {
			continue
		}
		if _, ok := ids[r.TargetTaskID]; !ok {
			continue
		}
		edges = append(edges, Edge{From: r.SourceTaskID, To: r.TargetTaskID, Kind: r.Type})
	}
	return edges
}

// topoSort orders an acyclic graph with Kahn's algorithm. The worklist is a
// FIFO of arena indices seeded with the roots in node order.
func topoSort(g *graph.Graph) []int {
	inDegree := make([]int, len(g.Nodes))
	for v := range g.Nodes {
		inDegree[v] = len(g.RevAdj[v])
	}

	queue := append([]int(nil), g.Roots...)
	order := make([]int, 0, len(g.Nodes))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)

		for _, succ := range g.Adj[v] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	return order
}

// computeWaves groups tasks by their earliest start time.
func computeWaves(result *Result) []Wave {
	esGroups := make(map[int][]string)
	for _, id := range result.TopoOrder {
		es := result.Tasks[id].ES
		esGroups[es] = append(esGroups[es], id)
	}

	esValues := make([]int, 0, len(esGroups))
	for es := range esGroups {
		esValues = append(esValues, es)
	}
	sort.Ints(esValues)

	waves := make([]Wave, len(esValues))
	for i, es := range esValues {
		taskIDs := esGroups[es]
		sort.Strings(taskIDs)

		hasCritical := false
		for _, id := range taskIDs {
			result.Tasks[id].Wave = i
			if result.Tasks[id].IsCritical {
				hasCritical = true
			}
		}

		// Critical tasks first within a wave
		sort.SliceStable(taskIDs, func(a, b int) bool {
			return result.Tasks[taskIDs[a]].IsCritical && !result.Tasks[taskIDs[b]].IsCritical
		})

		waves[i] = Wave{
			Index:      i,
			Start:      es,
			TaskIDs:    taskIDs,
			IsCritical: hasCritical,
		}
	}
	return waves
}
