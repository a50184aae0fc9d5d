package gc

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/nlog"
	"github.com/openbuildnet/obncore/depgraph"
	"github.com/openbuildnet/obncore/wire"
)

// Sender is the narrow transport capability the scheduler needs: publish
// an encoded wire.Message to a node's SMN->node topic.
type Sender interface {
	Send(peer string, payload []byte) error
}

// Block is one update block of one node, as known to the scheduler
// (spec.md §3): a sampling period in ticks (0 = event-driven only) and
// whether it carries an x_callback (affects whether UPDATE_X is ever sent
// for it).
type Block struct {
	ID     int
	Period cos.SimTime
	HasX   bool
}

type irregularReq struct {
	node string
	t    cos.SimTime
	mask uint64
}

type nodeState struct {
	name      string
	peer      string // node's SMN-facing topic/address
	blocks    []Block
	ackCh     chan int64
	lateAcks  int64 // node-departure-tolerance observability counter (supplemented feature)
}

// Observer receives scheduler timing events for external metrics export
// (package stats implements this over Prometheus). Nil-safe: a Scheduler
// with no Observer set simply skips the calls.
type Observer interface {
	ObserveTick(d time.Duration)
	ObserveAck(node string, msgType wire.Type, d time.Duration)
	ObserveLateAck(node string)
}

// Scheduler is the Global Clock / SMN core of spec.md §4.4.
type Scheduler struct {
	Workspace string

	mu         sync.Mutex
	sender     Sender
	graph      *depgraph.Graph
	idx        *nextFireIndex
	nodes      map[string]*nodeState
	irregular  []irregularReq
	ackTimeout time.Duration
	finalTime  cos.SimTime
	current    cos.SimTime
	obs        Observer
}

// SetObserver installs the metrics observer (package stats). Safe to
// call once before Run.
func (s *Scheduler) SetObserver(obs Observer) { s.obs = obs }

func NewScheduler(workspace string, sender Sender, graph *depgraph.Graph, ackTimeout time.Duration, finalTime cos.SimTime) (*Scheduler, error) {
	idx, err := newNextFireIndex()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		Workspace:  workspace,
		sender:     sender,
		graph:      graph,
		idx:        idx,
		nodes:      make(map[string]*nodeState),
		ackTimeout: ackTimeout,
		finalTime:  finalTime,
	}, nil
}

// AddNode registers a node and its update blocks, seeding next[id] at
// `period` for every periodic block (purely event-driven blocks, period
// 0, are never scheduled until an irregular request arrives for them).
func (s *Scheduler) AddNode(name, peer string, blocks []Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := &nodeState{name: name, peer: peer, blocks: blocks, ackCh: make(chan int64, 1)}
	s.nodes[name] = ns
	s.graph.AddNode(name)
	for _, b := range blocks {
		if b.Period > 0 {
			if err := s.idx.Set(blockKey{node: name, id: b.ID}, b.Period); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReceiveSimEvent handles N2SMN_SIM_EVENT(t, mask) from a node (spec.md
// §4.4): t must be strictly greater than the current simulated time, else
// the request is rejected. Returns the status to echo back in
// SIM_EVENT_ACK.I (0 accepted, nonzero request-invalid).
func (s *Scheduler) ReceiveSimEvent(node string, t cos.SimTime, mask uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t <= s.current {
		return -2
	}
	if _, ok := s.nodes[node]; !ok {
		return -1
	}
	s.irregular = append(s.irregular, irregularReq{node: node, t: t, mask: mask})
	return 0
}

// DeliverAck is called by the transport layer when a N2SMN_SIM_Y_ACK or
// N2SMN_SIM_X_ACK arrives for node.
func (s *Scheduler) DeliverAck(node string, status int64) {
	s.mu.Lock()
	ns, ok := s.nodes[node]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ns.ackCh <- status:
	default:
	}
}

// Run drives the tick loop of spec.md §4.4 until final_time is exceeded
// (graceful TERM, nil error) or a node's ACK times out (fatal, TERM then
// a non-nil error).
func (s *Scheduler) Run() error {
	for {
		stop, err := s.tick()
		if err != nil {
			s.broadcastTerm(1)
			return err
		}
		if stop {
			s.broadcastTerm(0)
			return nil
		}
	}
}

func (s *Scheduler) tick() (stop bool, err error) {
	tickStart := time.Now()
	defer func() {
		if !stop && err == nil && s.obs != nil {
			s.obs.ObserveTick(time.Since(tickStart))
		}
	}()

	s.mu.Lock()
	tNext, havePeriodic, ferr := s.idx.Min()
	if ferr != nil {
		s.mu.Unlock()
		return false, ferr
	}
	if len(s.irregular) == 0 && !havePeriodic {
		s.mu.Unlock()
		return true, nil // nothing left to schedule: done
	}
	tNextSet := havePeriodic
	for _, r := range s.irregular {
		if !tNextSet || r.t < tNext {
			tNext = r.t
			tNextSet = true
		}
	}
	if tNext > s.finalTime {
		s.mu.Unlock()
		return true, nil
	}

	active := make(map[string]uint64, len(s.nodes))
	for _, k := range s.idx.ActiveAt(tNext) {
		active[k.node] |= 1 << uint(k.id)
	}
	var consumedIrregular []int
	for i, r := range s.irregular {
		if r.t == tNext {
			active[r.node] |= r.mask
			consumedIrregular = append(consumedIrregular, i)
		}
	}
	s.mu.Unlock()

	order, err := s.graph.ActiveMask(active)
	if err != nil {
		return false, err
	}

	// Step 5: Y-ACK collection, in dependency order, sequentially.
	for _, name := range order {
		if err := s.sendAndWait(name, wire.TypeUpdateY, tNext, active[name]); err != nil {
			return false, err
		}
	}

	// Step 6: X dispatch to nodes with an active x-bearing block, in parallel.
	var eg errgroup.Group
	for _, name := range order {
		xMask := s.xMask(name, active[name])
		if xMask == 0 {
			continue
		}
		name, xMask := name, xMask
		eg.Go(func() error {
			return s.sendAndWait(name, wire.TypeUpdateX, tNext, xMask)
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	// Step 7: advance time, reschedule fired periodic blocks, drop consumed
	// irregular requests.
	if err := s.advance(tNext, consumedIrregular); err != nil {
		return false, err
	}
	return false, nil
}

// advance implements spec.md §4.4 step 7: T_cur := T_next; every periodic
// block that fired this tick is rescheduled at next[id] += period; every
// irregular request consumed this tick is dropped from the pending list.
func (s *Scheduler) advance(tNext cos.SimTime, consumedIrregular []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = tNext
	for _, k := range s.idx.ActiveAt(tNext) {
		period := s.blockPeriod(k)
		if period <= 0 {
			continue
		}
		if err := s.idx.Set(k, tNext+period); err != nil {
			return err
		}
	}

	if len(consumedIrregular) > 0 {
		consumed := make(map[int]bool, len(consumedIrregular))
		for _, i := range consumedIrregular {
			consumed[i] = true
		}
		kept := s.irregular[:0]
		for i, r := range s.irregular {
			if !consumed[i] {
				kept = append(kept, r)
			}
		}
		s.irregular = kept
	}
	return nil
}

func (s *Scheduler) blockPeriod(k blockKey) cos.SimTime {
	ns, ok := s.nodes[k.node]
	if !ok {
		return 0
	}
	for _, b := range ns.blocks {
		if b.ID == k.id {
			return b.Period
		}
	}
	return 0
}

// xMask returns the subset of active that corresponds to blocks carrying
// an x_callback (the scheduler's concrete reading of spec.md §4.4's
// x_needed flag: a node needs UPDATE_X this tick iff at least one of its
// actively-firing blocks has state to advance).
func (s *Scheduler) xMask(node string, active uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.nodes[node]
	var mask uint64
	for _, b := range ns.blocks {
		bit := uint64(1) << uint(b.ID)
		if b.HasX && active&bit != 0 {
			mask |= bit
		}
	}
	return mask
}

func (s *Scheduler) sendAndWait(node string, t wire.Type, tick cos.SimTime, mask uint64) error {
	s.mu.Lock()
	ns := s.nodes[node]
	s.mu.Unlock()

	start := time.Now()
	m := &wire.Message{Type: t, T: int64(tick), Mask: mask}
	payload, err := wire.Encode(m)
	if err != nil {
		return cos.NewError(cos.KindProtocol, "gc", err)
	}
	if err := s.sender.Send(ns.peer, payload); err != nil {
		return err
	}

	select {
	case status := <-ns.ackCh:
		if s.obs != nil {
			s.obs.ObserveAck(node, t, time.Since(start))
		}
		if status != 0 {
			return cos.Errorf(cos.KindProtocol, "gc", "node %s rejected %s at t=%d, status=%d", node, t, tick, status)
		}
		return nil
	case <-time.After(s.ackTimeout):
		ns.lateAcks++
		if s.obs != nil {
			s.obs.ObserveLateAck(node)
		}
		return cos.Errorf(cos.KindAckTimeout, "gc", "node %s timed out waiting for ack of %s at t=%d", node, t, tick)
	}
}

func (s *Scheduler) broadcastTerm(reason int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &wire.Message{Type: wire.TypeTerm, Reason: reason}
	payload, err := wire.Encode(m)
	if err != nil {
		nlog.Errorf("gc: failed to encode TERM: %v", err)
		return
	}
	for _, ns := range s.nodes {
		if err := s.sender.Send(ns.peer, payload); err != nil {
			nlog.Warningf("gc: failed to send TERM to %s: %v", ns.name, err)
		}
	}
	if err := s.idx.Close(); err != nil {
		nlog.Warningf("gc: closing next-fire index: %v", err)
	}
}
