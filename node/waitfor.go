package node

import (
	"sync"
	"time"
)

type waitStatus int

const (
	waitInactive waitStatus = iota
	waitActive
	waitCleared
	waitCancelled
)

// Predicate tests an inbound NodeEvent against whatever a waiter is
// blocked on (e.g. the SIM_EVENT_ACK for a specific irregular update
// request).
type Predicate func(NodeEvent) bool

type waitSlot struct {
	pred   Predicate
	status waitStatus
	data   NodeEvent
	ch     chan struct{}
}

// Handle identifies a registered wait-for slot (spec.md Design Notes §9:
// an explicit handle rather than a raw pointer, so the slot is safe to
// reuse after the backing slice grows).
type Handle int

// WaitList is the free-list of wait-for records (spec.md §4.3). Register
// is called from the node's main thread before sending a request whose
// reply must be awaited; Notify is called from the transport callback
// thread for every inbound NodeEvent; Wait blocks the caller with a
// timeout.
type WaitList struct {
	mu    sync.Mutex
	slots []*waitSlot
	free  []Handle
}

func NewWaitList() *WaitList {
	return &WaitList{}
}

// Register allocates (or reuses) a slot with the given predicate and
// marks it ACTIVE.
func (w *WaitList) Register(pred Predicate) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	var h Handle
	if n := len(w.free); n > 0 {
		h = w.free[n-1]
		w.free = w.free[:n-1]
		s := w.slots[h]
		s.pred = pred
		s.status = waitActive
	} else {
		h = Handle(len(w.slots))
		w.slots = append(w.slots, &waitSlot{pred: pred, status: waitActive, ch: make(chan struct{}, 1)})
	}
	return h
}

// Notify walks the list under the mutex looking for the first ACTIVE slot
// whose predicate matches ev, clears it, copies ev in, and signals the
// waiter. Called from the transport callback thread (spec.md §4.3).
func (w *WaitList) Notify(ev NodeEvent) {
	w.mu.Lock()
	for _, s := range w.slots {
		if s.status == waitActive && s.pred != nil && s.pred(ev) {
			s.status = waitCleared
			s.data = ev
			select {
			case s.ch <- struct{}{}:
			default:
			}
			w.mu.Unlock()
			return
		}
	}
	w.mu.Unlock()
}

// CancelAll clears every ACTIVE condition with a synthetic cancelled
// status (spec.md §9 open question: TERM while a node is blocked in a
// wait-for condition unblocks every waiter rather than leaving it
// hanging).
func (w *WaitList) CancelAll() {
	w.mu.Lock()
	for _, s := range w.slots {
		if s.status == waitActive {
			s.status = waitCancelled
			select {
			case s.ch <- struct{}{}:
			default:
			}
		}
	}
	w.mu.Unlock()
}

// Wait blocks until h is CLEARED or CANCELLED, or timeout elapses. Only a
// CLEARED or CANCELLED outcome retires the slot to INACTIVE and releases
// it back to the free list; on timeout the condition remains ACTIVE
// (spec.md §5) so the same caller can call Wait(h, ...) again to keep
// polling for the condition it originally registered.
func (w *WaitList) Wait(h Handle, timeout time.Duration) (data NodeEvent, cancelled bool, ok bool) {
	w.mu.Lock()
	s := w.slots[h]
	w.mu.Unlock()

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case <-s.ch:
		w.mu.Lock()
		data, cancelled, ok = s.data, s.status == waitCancelled, true
		s.status = waitInactive
		s.pred = nil
		w.free = append(w.free, h)
		w.mu.Unlock()
		return
	case <-timeoutCh:
		return NodeEvent{}, false, false
	}
}

// Release retires h to INACTIVE and returns it to the free list without
// waiting further — for a caller that gives up polling an ACTIVE
// condition after one or more timed-out Wait calls.
func (w *WaitList) Release(h Handle) {
	w.mu.Lock()
	s := w.slots[h]
	if s.status == waitActive {
		s.status = waitInactive
		s.pred = nil
		w.free = append(w.free, h)
	}
	w.mu.Unlock()
}
