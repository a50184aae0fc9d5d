package node

import (
	"sync"
	"time"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/nlog"
	"github.com/openbuildnet/obncore/port"
	"github.com/openbuildnet/obncore/wire"
)

// Sender is the narrow capability Node needs to talk to the SMN: publish
// an encoded wire.Message to the node's SMN-facing peer name.
type Sender interface {
	Send(peer string, payload []byte) error
}

// Handler implements the user callbacks run_step dispatches to. Returning
// a non-nil error from OnUpdateY/OnUpdateX moves the node to ERROR
// (spec.md §4.3's "any -> ERROR" row, fatal protocol error).
type Handler interface {
	OnInit() error
	OnUpdateY(t cos.SimTime, mask uint64) error
	OnUpdateX(t cos.SimTime, mask uint64) error
	OnTerm(reason int32)
	OnRCV(portIndex int)
	OnException(err error)
}

// Node is the node-side runtime of spec.md §4.3: the lifecycle state
// machine plus the multiplexed node-event/port-event queue that run_step
// drains.
type Node struct {
	Name      string
	Workspace string
	ID        int32

	mu    sync.Mutex
	state State

	smnPeer   string // topic/address of the SMN-facing endpoint
	sender    Sender
	authToken string // per-connection nonce, echoed in N2SMN_INIT_ACK

	nodeEvCh chan NodeEvent
	portEvCh chan PortEvent

	waitList *WaitList

	outputs []*port.OutputPort
	inputs  []*port.InputPort

	handler Handler
}

func New(workspace, name string, id int32, smnPeer string, sender Sender, h Handler) *Node {
	return &Node{
		Name:      name,
		Workspace: workspace,
		ID:        id,
		state:     StateStopped,
		smnPeer:   smnPeer,
		sender:    sender,
		nodeEvCh:  make(chan NodeEvent, 64),
		portEvCh:  make(chan PortEvent, 256),
		waitList:  NewWaitList(),
		handler:   h,
		authToken: cos.GenNodeAuthToken(),
	}
}

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) setState(s State) {
	n.mu.Lock()
	from := n.state
	if !validTransition(from, s) {
		nlog.Warningf("node %s: unexpected transition %s -> %s", n.Name, from, s)
	}
	n.state = s
	n.mu.Unlock()
}

func (n *Node) AddOutput(p *port.OutputPort) { n.outputs = append(n.outputs, p) }
func (n *Node) AddInput(p *port.InputPort)   { n.inputs = append(n.inputs, p) }

// PortMsgArrived implements port.EventSink: delivery on any input port
// enqueues a {port_index, RCV} port event (spec.md §4.2/§4.3).
func (n *Node) PortMsgArrived(portIndex int) {
	select {
	case n.portEvCh <- PortEvent{Kind: PortEventRCV, Index: portIndex}:
	default:
		nlog.Warningf("node %s: port event queue full, dropping RCV for port %d", n.Name, portIndex)
	}
}

// ReportError implements port.ErrorFunc: a send/decode failure from any
// port is forwarded to the main thread as an exception event rather than
// returned from the transport callback (spec.md §4.2, §7).
func (n *Node) ReportError(err error) {
	select {
	case n.portEvCh <- PortEvent{Kind: PortEventException, Err: err}:
	default:
		nlog.Errorf("node %s: port event queue full, dropping exception %v", n.Name, err)
	}
}

// DeliverFromSMN is the transport.RecvFunc bound to the node's SMN-facing
// endpoint: it decodes a wire.Message and translates it into a NodeEvent,
// also notifying any wait-for condition registered for a SIM_EVENT_ACK.
func (n *Node) DeliverFromSMN(payload []byte) {
	m, err := wire.Decode(payload)
	if err != nil {
		n.ReportError(cos.NewError(cos.KindProtocol, n.Name, err))
		return
	}
	ev := NodeEvent{T: m.T, Mask: m.Mask, I: m.I}
	switch m.Type {
	case wire.TypeInit:
		ev.Kind = NodeEventInit
	case wire.TypeUpdateY:
		ev.Kind = NodeEventUpdateY
	case wire.TypeUpdateX:
		ev.Kind = NodeEventUpdateX
	case wire.TypeSimEventAck:
		ev.Kind = NodeEventSimEventAck
	case wire.TypeTerm:
		ev.Kind = NodeEventTerm
		ev.I = int64(m.Reason)
	default:
		n.ReportError(cos.Errorf(cos.KindProtocol, n.Name, "unexpected message type %s from SMN", m.Type))
		return
	}
	n.waitList.Notify(ev)
	select {
	case n.nodeEvCh <- ev:
	default:
		nlog.Warningf("node %s: node event queue full, dropping %v", n.Name, ev.Kind)
	}
}

func (n *Node) ack(t wire.Type, simTime cos.SimTime, mask uint64, status int64) {
	var auth string
	if t == wire.TypeInitAck {
		auth = n.authToken
	}
	m := &wire.Message{Type: t, ID: n.ID, T: int64(simTime), Mask: mask, I: status, Auth: auth}
	payload, err := wire.Encode(m)
	if err != nil {
		n.ReportError(cos.NewError(cos.KindProtocol, n.Name, err))
		return
	}
	if err := n.sender.Send(n.smnPeer, payload); err != nil {
		n.ReportError(err)
	}
}

// RunStep implements run_step(timeout) (spec.md §4.3): drains pending
// port events first, otherwise blocks on the node-event queue up to
// timeout, dispatches to Handler, sends the corresponding ACK once the
// handler returns, and reports one of the four return codes. On return
// code 0 the second return value describes what fired: which callback ran
// and with what simulation time/mask/port-index/error, so a caller driving
// its own loop around RunStep doesn't need to duplicate the
// queue-draining logic just to know what happened.
func (n *Node) RunStep(timeout time.Duration) (int, UserEvent) {
	if n.State() == StateStopped {
		n.setState(StateStarted)
	}

	select {
	case pev := <-n.portEvCh:
		return StepUserEvent, n.handlePortEvent(pev)
	default:
	}

	var timeoutCh <-chan time.Time
	var timer *time.Timer
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	for {
		select {
		case pev := <-n.portEvCh:
			return StepUserEvent, n.handlePortEvent(pev)
		case nev := <-n.nodeEvCh:
			if nev.Kind == NodeEventSimEventAck {
				continue // consumed by the wait-for list in DeliverFromSMN; not a user event
			}
			return n.handleNodeEvent(nev)
		case <-timeoutCh:
			return StepTimeout, UserEvent{}
		}
	}
}

func (n *Node) handlePortEvent(pev PortEvent) UserEvent {
	switch pev.Kind {
	case PortEventRCV:
		n.handler.OnRCV(pev.Index)
		return UserEvent{Kind: UserEventRCV, PortIndex: pev.Index}
	case PortEventException:
		n.handler.OnException(pev.Err)
		return UserEvent{Kind: UserEventException, Err: pev.Err}
	default:
		return UserEvent{}
	}
}

func (n *Node) handleNodeEvent(nev NodeEvent) (int, UserEvent) {
	switch nev.Kind {
	case NodeEventInit:
		err := n.handler.OnInit()
		if err != nil {
			n.setState(StateError)
			n.ack(wire.TypeInitAck, 0, 0, -1)
			return StepError, UserEvent{}
		}
		n.setState(StateRunning)
		n.ack(wire.TypeInitAck, 0, 0, 0)
		return StepUserEvent, UserEvent{Kind: UserEventInit}
	case NodeEventUpdateY:
		err := n.handler.OnUpdateY(cos.SimTime(nev.T), nev.Mask)
		n.flushOutputs()
		if err != nil {
			n.setState(StateError)
			n.ack(wire.TypeYAck, cos.SimTime(nev.T), nev.Mask, -1)
			return StepError, UserEvent{}
		}
		n.ack(wire.TypeYAck, cos.SimTime(nev.T), nev.Mask, 0)
		return StepUserEvent, UserEvent{Kind: UserEventY, T: cos.SimTime(nev.T), Mask: nev.Mask}
	case NodeEventUpdateX:
		err := n.handler.OnUpdateX(cos.SimTime(nev.T), nev.Mask)
		if err != nil {
			n.setState(StateError)
			n.ack(wire.TypeXAck, cos.SimTime(nev.T), nev.Mask, -1)
			return StepError, UserEvent{}
		}
		n.ack(wire.TypeXAck, cos.SimTime(nev.T), nev.Mask, 0)
		return StepUserEvent, UserEvent{Kind: UserEventX, T: cos.SimTime(nev.T), Mask: nev.Mask}
	case NodeEventTerm:
		n.waitList.CancelAll()
		n.setState(StateStopped)
		n.handler.OnTerm(int32(nev.I))
		return StepStopped, UserEvent{Kind: UserEventTerm}
	default:
		return StepUserEvent, UserEvent{}
	}
}

// flushOutputs publishes every changed output port after a Y-update
// (spec.md §4.2: send_sync buffers, the end of the update dispatches).
func (n *Node) flushOutputs() {
	for _, p := range n.outputs {
		p.Flush()
	}
}

// RequestFutureUpdate sends N2SMN_SIM_EVENT(t, mask) and blocks (with
// timeout) for the matching SIM_EVENT_ACK, a convenience wrapper around
// the wait-for-condition machinery (supplemented feature, grounded on
// the original's node-side helper around irregular future updates).
func (n *Node) RequestFutureUpdate(t cos.SimTime, mask uint64, timeout time.Duration) error {
	// Correlation for SIM_EVENT_ACK is by the echoed t field (spec.md §4.6):
	// matching on Kind alone would let a concurrent RequestFutureUpdate for
	// a different t steal this ack.
	h := n.waitList.Register(func(ev NodeEvent) bool {
		return ev.Kind == NodeEventSimEventAck && ev.T == t
	})
	m := &wire.Message{Type: wire.TypeSimEvent, ID: n.ID, T: int64(t), Mask: mask}
	payload, err := wire.Encode(m)
	if err != nil {
		n.waitList.Release(h)
		return cos.NewError(cos.KindProtocol, n.Name, err)
	}
	if err := n.sender.Send(n.smnPeer, payload); err != nil {
		n.waitList.Release(h)
		return err
	}
	ev, cancelled, ok := n.waitList.Wait(h, timeout)
	if !ok {
		n.waitList.Release(h)
		return cos.Errorf(cos.KindAckTimeout, n.Name, "future update request at t=%d timed out", t)
	}
	if cancelled {
		return cos.Errorf(cos.KindRequestInvalid, n.Name, "future update request at t=%d cancelled by TERM", t)
	}
	if ev.I != 0 {
		return cos.Errorf(cos.KindRequestInvalid, n.Name, "future update request at t=%d rejected, status=%d", t, ev.I)
	}
	return nil
}
