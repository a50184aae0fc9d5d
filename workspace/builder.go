// Package workspace assembles a named scope of nodes, ports, update
// blocks, and connections (spec.md §3 "Workspace") into a validated
// dependency graph and an installed GC scheduler: the builder API
// (AddNode, AddPort, AddUpdate, Connect, SetSettings) plus logical-name
// resolution and duplicate-connection coalescing (spec.md §3: "Duplicate
// connections are coalesced").
package workspace

import (
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/openbuildnet/obncore/cmn/config"
	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/depgraph"
	"github.com/openbuildnet/obncore/gc"
	"github.com/openbuildnet/obncore/port"
	"github.com/openbuildnet/obncore/transport"
)

// PortDirection is one of IN, OUT, DATA (spec.md §3 "Port").
type PortDirection int

const (
	DirIn PortDirection = iota
	DirOut
	DirData
)

// PortSpec is one declared port of one node.
type PortSpec struct {
	Node      string
	Name      string
	Dir       PortDirection
	Container port.Container
	Elem      port.ElemType
	Mask      uint64 // writers (OUT) or direct-feedthrough readers (IN)
	Strict    bool
}

// UpdateSpec is one declared update block of one node (spec.md §3).
type UpdateSpec struct {
	Node   string
	ID     int
	Period cos.SimTime
	HasX   bool
}

// ConnSpec is one declared connection (spec.md §3 "Connection").
type ConnSpec struct {
	SrcNode, SrcPort string
	TgtNode, TgtPort string
}

// Builder accumulates a workspace declaration and validates it on Build.
type Builder struct {
	Name string

	cfg *config.Config

	nodeOrder []string
	nodeSeen  map[string]bool

	ports map[string]PortSpec // key: node+"/"+port

	updates     []UpdateSpec
	updateIDs   map[string]map[int]bool // node -> seen update ids

	conns   []ConnSpec
	exact   map[string]bool // key: src->tgt, exact coalescing check
	approx  *cuckoo.Filter  // probabilistic pre-check ahead of the exact map
}

func NewBuilder(name string) *Builder {
	return &Builder{
		Name:      name,
		cfg:       config.Default(),
		nodeSeen:  make(map[string]bool),
		ports:     make(map[string]PortSpec),
		updateIDs: make(map[string]map[int]bool),
		exact:     make(map[string]bool),
		approx:    cuckoo.NewFilter(1024),
	}
}

func (b *Builder) SetSettings(cfg *config.Config) { b.cfg = cfg }

func (b *Builder) AddNode(name string) error {
	if !cos.ValidIdentifier(name) {
		return cos.Errorf(cos.KindConfig, "workspace", "invalid node name %q", name)
	}
	if b.nodeSeen[name] {
		return cos.Errorf(cos.KindConfig, "workspace", "duplicate node %q", name)
	}
	b.nodeSeen[name] = true
	b.nodeOrder = append(b.nodeOrder, name)
	return nil
}

func portKey(node, name string) string { return node + "/" + name }

// AddPort declares one port. Names must be valid identifiers, unique
// within the node across IN/OUT/DATA (spec.md §3 invariant).
func (b *Builder) AddPort(spec PortSpec) error {
	if !b.nodeSeen[spec.Node] {
		return cos.Errorf(cos.KindConfig, "workspace", "port %s/%s references unknown node", spec.Node, spec.Name)
	}
	if !cos.ValidIdentifier(spec.Name) {
		return cos.Errorf(cos.KindConfig, "workspace", "invalid port name %q on node %s", spec.Name, spec.Node)
	}
	key := portKey(spec.Node, spec.Name)
	if _, dup := b.ports[key]; dup {
		return cos.Errorf(cos.KindConfig, "workspace", "duplicate port %s on node %s", spec.Name, spec.Node)
	}
	b.ports[key] = spec
	return nil
}

// AddUpdate declares one update block. Ids must be unique within the
// node and <= MaxUpdateIndex (spec.md §3 invariant).
func (b *Builder) AddUpdate(spec UpdateSpec) error {
	if !b.nodeSeen[spec.Node] {
		return cos.Errorf(cos.KindConfig, "workspace", "update block on unknown node %s", spec.Node)
	}
	if !cos.ValidUpdateID(spec.ID) {
		return cos.Errorf(cos.KindConfig, "workspace", "update id %d on node %s exceeds MAX_UPDATE_INDEX", spec.ID, spec.Node)
	}
	seen := b.updateIDs[spec.Node]
	if seen == nil {
		seen = make(map[int]bool)
		b.updateIDs[spec.Node] = seen
	}
	if seen[spec.ID] {
		return cos.Errorf(cos.KindConfig, "workspace", "duplicate update id %d on node %s", spec.ID, spec.Node)
	}
	seen[spec.ID] = true
	b.updates = append(b.updates, spec)
	return nil
}

// AddEventDrivenUpdate declares a pure event-driven update block: period 0
// (spec.md §3: a block never fires periodically), sugar over AddUpdate
// mirroring the original API surface's dedicated constructor for this case.
func (b *Builder) AddEventDrivenUpdate(node string, id int, hasX bool) error {
	return b.AddUpdate(UpdateSpec{Node: node, ID: id, Period: 0, HasX: hasX})
}

// Connect declares src -> tgt. src must be OUT or DATA, tgt must be IN or
// DATA (spec.md §3 invariant); an exact duplicate is silently coalesced.
func (b *Builder) Connect(c ConnSpec) error {
	src, ok := b.ports[portKey(c.SrcNode, c.SrcPort)]
	if !ok {
		return cos.Errorf(cos.KindConfig, "workspace", "connection references unknown source port %s/%s", c.SrcNode, c.SrcPort)
	}
	tgt, ok := b.ports[portKey(c.TgtNode, c.TgtPort)]
	if !ok {
		return cos.Errorf(cos.KindConfig, "workspace", "connection references unknown target port %s/%s", c.TgtNode, c.TgtPort)
	}
	if src.Dir != DirOut && src.Dir != DirData {
		return cos.Errorf(cos.KindConfig, "workspace", "source %s/%s is not OUT or DATA", c.SrcNode, c.SrcPort)
	}
	if tgt.Dir != DirIn && tgt.Dir != DirData {
		return cos.Errorf(cos.KindConfig, "workspace", "target %s/%s is not IN or DATA", c.TgtNode, c.TgtPort)
	}

	key := c.SrcNode + "/" + c.SrcPort + "->" + c.TgtNode + "/" + c.TgtPort
	// The cuckoo filter has no false negatives, so a miss here proves key
	// was never inserted and the exact map probe below can be skipped
	// entirely; only a filter hit (which can be a false positive) needs the
	// exact map to confirm a real duplicate.
	if b.approx.Lookup([]byte(key)) {
		if b.exact[key] {
			return nil // coalesce exact duplicate
		}
	}
	b.approx.Insert([]byte(key))
	b.exact[key] = true
	b.conns = append(b.conns, c)
	return nil
}

// Build validates the accumulated declaration and assembles a Workspace:
// a dependency graph (rejecting cycles, spec.md §3/§4.5) and a GC
// scheduler with every node and update block installed.
func (b *Builder) Build(sender gc.Sender) (*Workspace, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	graph := depgraph.New()
	for _, n := range b.nodeOrder {
		graph.AddNode(n)
	}
	for _, c := range b.conns {
		src := b.ports[portKey(c.SrcNode, c.SrcPort)]
		tgt := b.ports[portKey(c.TgtNode, c.TgtPort)]
		if err := graph.AddEdge(depgraph.Edge{
			Src: c.SrcNode, Tgt: c.TgtNode,
			SrcMask: src.Mask, TgtMask: tgt.Mask,
		}); err != nil {
			return nil, err
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	sched, err := gc.NewScheduler(b.Name, sender, graph, b.cfg.AckTimeout(), b.cfg.FinalTime())
	if err != nil {
		return nil, err
	}

	byNode := make(map[string][]gc.Block, len(b.nodeOrder))
	for _, u := range b.updates {
		byNode[u.Node] = append(byNode[u.Node], gc.Block{ID: u.ID, Period: u.Period, HasX: u.HasX})
	}
	for _, n := range b.nodeOrder {
		peer := transport.SMNToNodeTopic(b.Name, n)
		if err := sched.AddNode(n, peer, byNode[n]); err != nil {
			return nil, err
		}
	}

	return &Workspace{
		Name:      b.Name,
		Graph:     graph,
		Scheduler: sched,
		Nodes:     append([]string(nil), b.nodeOrder...),
		Ports:     b.ports,
		Conns:     append([]ConnSpec(nil), b.conns...),
	}, nil
}
