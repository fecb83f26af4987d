package reconcile

import (
	"container/heap"
	"sort"
)

// Edge records that Before was immediately followed by After in at least
// one input sequence.
type Edge struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Result is the outcome of merging several subject sequences.
type Result struct {
	Order     []string `json:"order"`
	Cyclic    bool     `json:"cyclic"`
	Conflicts []Edge   `json:"conflicts,omitempty"`
	Sources   int      `json:"sources"`
	Edges     int      `json:"edges"`
}

// UniqueSubjects returns the non-empty values in order of first occurrence.
func UniqueSubjects(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UniqueSubjectsFromRows applies UniqueSubjects to the first cell of each row.
// A row without cells counts as blank.
func UniqueSubjectsFromRows(rows [][]string) []string {
	firsts := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			firsts[i] = row[0]
		}
	}
	return UniqueSubjects(firsts)
}

// MergeOrder returns a single ordering containing every subject of every
// sequence exactly once. See Reconcile.
func MergeOrder(sequences [][]string) []string {
	return Reconcile(sequences).Order
}

// Reconcile merges the sequences with a topological sort over the
// "immediately followed by" graph. Ties between ready subjects are broken
// by first appearance across the inputs, scanned in the order given. When
// the inputs contradict each other the graph has a cycle and the result
// falls back to plain appearance order; Conflicts then lists the edges that
// order violates.
func Reconcile(sequences [][]string) Result {
	g := buildGraph(sequences)
	res := Result{
		Sources: len(sequences),
		Edges:   g.edges,
	}

	order := g.topological()
	if len(order) == len(g.labels) {
		res.Order = g.names(order)
		return res
	}

	res.Cyclic = true
	res.Order = append(make([]string, 0, len(g.labels)), g.labels...)
	res.Conflicts = g.backEdges()
	return res
}

// graph identifies each vertex by its appearance rank, so labels[rank] is
// the subject and a lower id always wins a tie.
type graph struct {
	labels []string
	succ   [][]int
	indeg  []int
	edges  int
}

func buildGraph(sequences [][]string) *graph {
	rank := map[string]int{}
	g := &graph{}
	for _, seq := range sequences {
		for _, s := range seq {
			if _, ok := rank[s]; !ok {
				rank[s] = len(g.labels)
				g.labels = append(g.labels, s)
			}
		}
	}

	g.succ = make([][]int, len(g.labels))
	g.indeg = make([]int, len(g.labels))
	seen := map[[2]int]struct{}{}
	for _, seq := range sequences {
		for i := 0; i+1 < len(seq); i++ {
			key := [2]int{rank[seq[i]], rank[seq[i+1]]}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			g.succ[key[0]] = append(g.succ[key[0]], key[1])
			g.indeg[key[1]]++
			g.edges++
		}
	}
	return g
}

// topological runs Kahn's algorithm and returns the vertices it could emit.
// The result is shorter than the vertex count when a cycle exists.
func (g *graph) topological() []int {
	indeg := append([]int(nil), g.indeg...)
	ready := &rankHeap{}
	for v, d := range indeg {
		if d == 0 {
			*ready = append(*ready, v)
		}
	}
	heap.Init(ready)

	out := make([]int, 0, len(g.labels))
	for ready.Len() > 0 {
		v := heap.Pop(ready).(int)
		out = append(out, v)
		for _, next := range g.succ[v] {
			indeg[next]--
			if indeg[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}
	return out
}

// backEdges lists the edges pointing from a later-ranked subject to an
// earlier one, i.e. the constraints the appearance-order fallback breaks.
func (g *graph) backEdges() []Edge {
	type pair struct{ from, to int }
	var back []pair
	for from, tos := range g.succ {
		for _, to := range tos {
			if from >= to {
				back = append(back, pair{from, to})
			}
		}
	}
	sort.Slice(back, func(i, j int) bool {
		if back[i].from != back[j].from {
			return back[i].from < back[j].from
		}
		return back[i].to < back[j].to
	})
	out := make([]Edge, len(back))
	for i, p := range back {
		out[i] = Edge{Before: g.labels[p.from], After: g.labels[p.to]}
	}
	return out
}

func (g *graph) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.labels[id]
	}
	return out
}

type rankHeap []int

func (h rankHeap) Len() int           { return len(h) }
func (h rankHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *rankHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
