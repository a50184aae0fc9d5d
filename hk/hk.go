// Package hk is a small housekeeping-timer registry: named periodic jobs
// that reschedule themselves by returning their next interval, the same
// shape the teacher's hk package exposes to callers throughout
// transport, xact/xreg, and ais/prxnotif (hk.Reg/hk.Unreg/hk.UnregIf,
// hk.NameSuffix, hk.PruneActiveIval/hk.DayInterval/hk.UnregInterval).
// Its one use in this module is cmd/obn-smn's daily heartbeat log line;
// ack timeouts and idle-endpoint teardown are timed elsewhere (gc, transport/broker).
package hk

import (
	"container/heap"
	"sync"
	"time"
)

// NameSuffix disambiguates housekeeping job names from other identifiers
// sharing the same base string (matches the teacher's own convention).
const NameSuffix = ".hk"

const (
	DayInterval      = 24 * time.Hour
	PruneActiveIval  = 10 * time.Second
	UnregInterval    = time.Minute
)

// Func is a housekeeping callback: it runs and returns the duration until
// its next invocation. A non-positive return unregisters the job.
type Func func() time.Duration

type job struct {
	name     string
	f        Func
	next     time.Time
	index    int // heap bookkeeping
}

// Registry is a min-heap of named, self-rescheduling jobs driven by a
// single background goroutine.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]*job
	heap    jobHeap
	wake    chan struct{}
	stopCh  chan struct{}
	started bool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*job), wake: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

// Reg schedules f to first run after interval, then again after whatever
// f itself returns. Re-registering an existing name replaces it.
func (r *Registry) Reg(name string, f Func, interval time.Duration) {
	r.mu.Lock()
	if old, ok := r.byName[name]; ok {
		heap.Remove(&r.heap, old.index)
	}
	j := &job{name: name, f: f, next: time.Now().Add(interval)}
	r.byName[name] = j
	heap.Push(&r.heap, j)
	if !r.started {
		r.started = true
		go r.run()
	}
	r.mu.Unlock()
	r.nudge()
}

// Unreg removes a job unconditionally.
func (r *Registry) Unreg(name string) {
	r.mu.Lock()
	if j, ok := r.byName[name]; ok {
		heap.Remove(&r.heap, j.index)
		delete(r.byName, name)
	}
	r.mu.Unlock()
}

// UnregIf removes a job only if cond() returns true, reporting whether it
// did. Used for "just in case, a no-op most of the time" cleanup at
// shutdown.
func (r *Registry) UnregIf(name string, cond func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byName[name]
	if !ok || !cond() {
		return false
	}
	heap.Remove(&r.heap, j.index)
	delete(r.byName, name)
	return true
}

func (r *Registry) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) Stop() { close(r.stopCh) }

func (r *Registry) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		r.mu.Lock()
		var d time.Duration
		if r.heap.Len() == 0 {
			d = time.Hour
		} else {
			d = time.Until(r.heap[0].next)
			if d < 0 {
				d = 0
			}
		}
		r.mu.Unlock()
		timer.Reset(d)

		select {
		case <-timer.C:
			r.fireDue()
		case <-r.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) fireDue() {
	now := time.Now()
	var due []*job
	r.mu.Lock()
	for r.heap.Len() > 0 && !r.heap[0].next.After(now) {
		due = append(due, heap.Pop(&r.heap).(*job))
	}
	r.mu.Unlock()

	for _, j := range due {
		next := j.f()
		if next <= 0 {
			r.mu.Lock()
			delete(r.byName, j.name)
			r.mu.Unlock()
			continue
		}
		j.next = time.Now().Add(next)
		r.mu.Lock()
		if _, ok := r.byName[j.name]; ok {
			heap.Push(&r.heap, j)
		}
		r.mu.Unlock()
	}
}

type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// Default is the process-wide registry, matching the teacher's
// package-level hk.Reg/hk.Unreg convenience functions.
var Default = NewRegistry()

func Reg(name string, f Func, interval time.Duration) { Default.Reg(name, f, interval) }
func Unreg(name string)                                { Default.Unreg(name) }
func UnregIf(name string, cond func() bool) bool        { return Default.UnregIf(name, cond) }
