package port

import "sync"

// EventSink is the narrow callback surface an InputPort uses to tell its
// owning node a message arrived (spec.md §4.2: delivery posts a {port_index,
// RCV} port event onto the node's event queue rather than waking the update
// function directly). package node implements this.
type EventSink interface {
	PortMsgArrived(portIndex int)
}

// InputPort implements both strictness modes of spec.md §4.2:
//
//   - non-strict (default): at most one pending value between updates;
//     a new arrival overwrites it and the pending flag is set once.
//   - strict: an unbounded FIFO queue of arrived values, nothing is
//     dropped, each Pop consumes exactly the value that was sent.
//
// HasValue distinguishes "never received anything since port creation"
// from "received at least one value, possibly consumed" — a distinction
// the original implementation exposes (INPUTPORT::isValueSet) that the
// distilled port model omits; kept here as a supplemented feature.
type InputPort struct {
	Name   string
	Index  int
	Strict bool

	mu       sync.Mutex
	current  Value
	pending  bool
	hasValue bool
	queue    []Value

	sink  EventSink
	onErr ErrorFunc
}

func NewInputPort(name string, index int, strict bool, sink EventSink, onErr ErrorFunc) *InputPort {
	return &InputPort{Name: name, Index: index, Strict: strict, sink: sink, onErr: onErr}
}

// RecvFunc returns the callback bound to this port's transport.Endpoint at
// wiring time (assignable to transport.RecvFunc without importing package
// transport, keeping port decoupled from the transport layer per the
// Descriptor design).
func (p *InputPort) RecvFunc() func(payload []byte) { return p.deliverRaw }

// deliverRaw is the transport.RecvFunc bound to this port at wiring time:
// it decodes the wire payload and enqueues the value, then notifies the
// node. Decode failures never panic the transport thread — they're routed
// to onErr as an inputport-error/RAWMSG exception event, or
// inputport-error/READVALUE for a shape mismatch (spec.md §7).
func (p *InputPort) deliverRaw(payload []byte) {
	v, err := Decode(payload)
	if err != nil {
		if p.onErr != nil {
			p.onErr(err)
		}
		return
	}
	p.deliver(v)
}

func (p *InputPort) deliver(v Value) {
	p.mu.Lock()
	p.hasValue = true
	if p.Strict {
		p.queue = append(p.queue, v)
	} else {
		p.current = v
		p.pending = true
	}
	p.mu.Unlock()

	if p.sink != nil {
		p.sink.PortMsgArrived(p.Index)
	}
}

// HasValue reports whether this port has ever received a value.
func (p *InputPort) HasValue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasValue
}

// Pending reports whether a value has arrived since the last Get/Pop.
func (p *InputPort) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Strict {
		return len(p.queue) > 0
	}
	return p.pending
}

// Get returns the current value of a non-strict port without consuming it:
// the value stays in place until overwritten by the next arrival (spec.md
// §9 open question: absence of a write on an update leaves the prior value,
// resolved that way here). The pending flag is cleared as a side effect,
// the value itself is not.
func (p *InputPort) Get() (Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Strict {
		panic("port: Get called on a strict input port, use Pop")
	}
	v, ok := p.current, p.hasValue
	p.pending = false
	return v, ok
}

// WithValue implements lock_and_get (spec.md §4.2): it holds the port's lock
// for the duration of fn, handing fn the current value of a non-strict port
// in place rather than a copy, so the update callback can read a large
// Value (e.g. a matrix) without Get's copy-then-use race against a
// concurrent deliver overwriting p.current between the copy and the use.
// fn must not call back into p.
func (p *InputPort) WithValue(fn func(v Value, ok bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Strict {
		panic("port: WithValue called on a strict input port, use Pop")
	}
	fn(p.current, p.hasValue)
	p.pending = false
}

// Pop dequeues the oldest arrived value of a strict port. ok is false when
// the queue is empty.
func (p *InputPort) Pop() (v Value, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Strict {
		panic("port: Pop called on a non-strict input port, use Get")
	}
	if len(p.queue) == 0 {
		return Value{}, false
	}
	v, p.queue = p.queue[0], p.queue[1:]
	return v, true
}

// QueueLen reports the number of values currently buffered on a strict
// port; always 0 or 1 on a non-strict port.
func (p *InputPort) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Strict {
		return len(p.queue)
	}
	if p.pending {
		return 1
	}
	return 0
}
