package port

import (
	"sync"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/debug"
)

// Sender is the narrow transport capability an OutputPort needs: send a
// pre-encoded payload to a named peer. transport.Endpoint satisfies this.
type Sender interface {
	Send(peer string, payload []byte) error
}

// ErrorFunc receives an error an OutputPort cannot return synchronously to
// its caller — spec.md §4.2 requires SENDMSG failures surface as an
// exception event on the node's main thread, not a call-site error.
type ErrorFunc func(err error)

// OutputPort holds the current value of one SY/output port (spec.md §4.2):
// SendSync sets it and marks it changed; Flush serializes and publishes it
// to every wired target, clearing the changed flag.
type OutputPort struct {
	Name  string
	Index int

	mu      sync.Mutex
	current Value
	changed bool

	targets []string
	sender  Sender
	onErr   ErrorFunc
}

func NewOutputPort(name string, index int, sender Sender, onErr ErrorFunc) *OutputPort {
	return &OutputPort{Name: name, Index: index, sender: sender, onErr: onErr}
}

// Wire adds a destination topic/peer name this port publishes to. A port
// may feed more than one input (fan-out), per spec.md §4.5's dependency
// graph being many-to-many.
func (p *OutputPort) Wire(peer string) {
	p.mu.Lock()
	p.targets = append(p.targets, peer)
	p.mu.Unlock()
}

// SendSync sets the port's current value and marks it changed. The value
// is not put on the wire until Flush runs (spec.md §4.2: output values are
// buffered and dispatched at the end of the node's update, not inline).
func (p *OutputPort) SendSync(v Value) {
	p.mu.Lock()
	p.current = v
	p.changed = true
	p.mu.Unlock()
}

// Changed reports whether SendSync was called since the last Flush.
func (p *OutputPort) Changed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// Flush encodes and publishes the current value to every wired target if
// changed, then clears the changed flag. A send or encode failure is never
// returned to the caller: it's handed to onErr, which the owning node uses
// to post an outputport-error/SENDMSG exception event (spec.md §4.2, §7)
// without unwinding the update that produced the value.
func (p *OutputPort) Flush() {
	p.mu.Lock()
	if !p.changed {
		p.mu.Unlock()
		return
	}
	v := p.current
	targets := append([]string(nil), p.targets...)
	p.changed = false
	p.mu.Unlock()

	payload, err := Encode(v)
	if err != nil {
		p.report(cos.NewError(cos.KindOutputPortSendMsg, p.Name, err))
		return
	}
	debug.Assert(p.sender != nil, "output port flushed before wiring")
	for _, peer := range targets {
		if err := p.sender.Send(peer, payload); err != nil {
			p.report(err)
		}
	}
}

func (p *OutputPort) report(err error) {
	if p.onErr != nil {
		p.onErr(err)
	}
}
