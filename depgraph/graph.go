// Package depgraph builds the dependency DAG from output->input wiring and
// per-port update masks (spec.md §4.5), validates it is acyclic at
// assembly time, and, at tick time, restricts it to active vertices/edges
// and returns a deterministic topological order for dispatch.
package depgraph

import (
	"fmt"

	"github.com/openbuildnet/obncore/cmn/cos"
)

// Edge is one output->input connection, labelled with the masks that make
// it active for a given tick (spec.md §4.5): src_mask is the block set
// that can write src.port, tgt_mask is the OR of direct-feedthrough bits
// that make tgt.port's value observable on the same tick it arrives.
type Edge struct {
	Src, Tgt         string // node names
	SrcMask, TgtMask uint64
}

// Graph is the full, tick-independent dependency structure: all nodes
// (insertion order preserved for deterministic tie-breaking, spec.md §4.4
// step 4) and all edges declared at assembly.
type Graph struct {
	order []string
	index map[string]int
	edges []Edge
	adj   map[string][]Edge // outgoing, by src
}

func New() *Graph {
	return &Graph{index: make(map[string]int), adj: make(map[string][]Edge)}
}

// AddNode registers a node in insertion order; a duplicate name is a no-op
// (idempotent so workspace assembly can call it once per connection end).
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.order)
	g.order = append(g.order, name)
}

// AddEdge records a connection. Both endpoints must already be registered
// nodes.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.index[e.Src]; !ok {
		return cos.Errorf(cos.KindConfig, "depgraph", "edge references unknown node %q", e.Src)
	}
	if _, ok := g.index[e.Tgt]; !ok {
		return cos.Errorf(cos.KindConfig, "depgraph", "edge references unknown node %q", e.Tgt)
	}
	g.edges = append(g.edges, e)
	g.adj[e.Src] = append(g.adj[e.Src], e)
	return nil
}

// Validate runs a full-graph (mask-agnostic) cycle check at assembly time:
// every edge is considered present regardless of mask, since a cycle that
// only manifests for some mask combination is still a cycle the source
// forbids by construction (spec.md §3, invariant on the dependency DAG).
func (g *Graph) Validate() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		color[n] = gray
		stack = append(stack, n)
		for _, e := range g.adj[n] {
			switch color[e.Tgt] {
			case white:
				if err := visit(e.Tgt); err != nil {
					return err
				}
			case gray:
				return cos.Errorf(cos.KindConfig, "depgraph", "cycle detected: %v -> %s", append(append([]string(nil), stack...), e.Tgt), e.Tgt)
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range g.order {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActiveMask reports, for the node-name->active_mask map of the current
// tick, the dispatch order required by spec.md §4.4 step 4: Kahn's
// algorithm over the subgraph induced by nodes with a nonzero active mask
// and edges whose masks actually overlap the tick's active masks, ties
// broken by insertion order.
func (g *Graph) ActiveMask(active map[string]uint64) ([]string, error) {
	activeNodes := make(map[string]bool, len(active))
	for n, m := range active {
		if m != 0 {
			activeNodes[n] = true
		}
	}

	indeg := make(map[string]int, len(activeNodes))
	radj := make(map[string][]string, len(activeNodes))
	for n := range activeNodes {
		indeg[n] = 0
	}
	for _, e := range g.edges {
		if !activeNodes[e.Src] || !activeNodes[e.Tgt] {
			continue
		}
		if e.SrcMask == 0 || e.TgtMask == 0 {
			continue
		}
		if active[e.Src]&e.SrcMask == 0 || active[e.Tgt]&e.TgtMask == 0 {
			continue
		}
		radj[e.Src] = append(radj[e.Src], e.Tgt)
		indeg[e.Tgt]++
	}

	// Deterministic min-indegree frontier, scanned in insertion order each
	// round rather than a heap: active sets are small per tick and this
	// keeps the tie-break rule (spec.md §4.4 step 4) trivially obvious.
	var out []string
	remaining := len(activeNodes)
	done := make(map[string]bool, remaining)
	for remaining > 0 {
		progressed := false
		for _, n := range g.order {
			if !activeNodes[n] || done[n] || indeg[n] != 0 {
				continue
			}
			out = append(out, n)
			done[n] = true
			remaining--
			progressed = true
			for _, tgt := range radj[n] {
				indeg[tgt]--
			}
		}
		if !progressed {
			return nil, cos.Errorf(cos.KindProtocol, "depgraph", "cycle among active nodes this tick: %s", fmt.Sprint(activeRemaining(activeNodes, done)))
		}
	}
	return out, nil
}

func activeRemaining(active map[string]bool, done map[string]bool) []string {
	var r []string
	for n := range active {
		if !done[n] {
			r = append(r, n)
		}
	}
	return r
}
