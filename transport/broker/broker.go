// Package broker implements the pub/sub variant of the transport
// abstraction (spec.md §4.1): every node subscribes to its SMN->node
// topic `workspace/_smn_/<node>` (the peer name gc sends to), the SMN to
// `workspace/_smn_/_gc_`, and publishes fan out to every current
// subscriber of a topic. This is an
// in-process broker — standing in for an external MQTT broker the way the
// teacher's transport package stands in front of an actual socket: the
// Transport interface is what package node and package gc depend on, so a
// real MQTT client can be dropped in behind it without touching either
// (see DESIGN.md for why no MQTT client ships in this module).
package broker

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/nlog"
	"github.com/openbuildnet/obncore/transport"
)

const (
	dfltBurst         = 128
	dfltIdleTeardown  = 4 * time.Second
	dfltTick          = time.Second
)

// Broker is a process-local pub/sub hub. One Broker instance corresponds
// to one MQTT-server endpoint in spec.md §6's `MQTT_server` setting.
type Broker struct {
	mu     sync.Mutex
	topics map[string][]*endpoint

	collector *collector
}

func New() *Broker {
	b := &Broker{topics: make(map[string][]*endpoint, 64)}
	b.collector = newCollector()
	go b.collector.run()
	return b
}

func (b *Broker) Name() string { return "mqtt" }

// Open subscribes `local` and returns an Endpoint whose Send publishes to
// the named peer topic.
func (b *Broker) Open(local string, onRecv transport.RecvFunc, onLoss transport.LossFunc, extra *transport.Extra) (transport.Endpoint, error) {
	ep := &endpoint{
		broker: b,
		topic:  local,
		onRecv: onRecv,
		onLoss: onLoss,
		workCh: make(chan []byte, dfltBurst),
		stopCh: make(chan struct{}),
	}
	if extra != nil {
		ep.extra = *extra
	}
	if ep.extra.IdleTeardown == 0 {
		ep.extra.IdleTeardown = dfltIdleTeardown
	}
	ep.lastActive = time.Now().UnixNano()

	b.mu.Lock()
	b.topics[local] = append(b.topics[local], ep)
	b.mu.Unlock()

	ep.wg.Add(1)
	go ep.recvLoop()
	b.collector.add(ep)
	return ep, nil
}

func (b *Broker) subscribers(topic string) []*endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*endpoint(nil), b.topics[topic]...)
}

func (b *Broker) unsubscribe(ep *endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[ep.topic]
	for i, s := range subs {
		if s == ep {
			b.topics[ep.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type endpoint struct {
	broker *Broker
	topic  string
	onRecv transport.RecvFunc
	onLoss transport.LossFunc
	extra  transport.Extra

	workCh chan []byte
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once // guards teardown against a racing Close + collector sweep

	lastActive int64 // unix nanos, accessed via sync/atomic
	heapIndex  int   // collector bookkeeping, guarded by collector goroutine only
}

// teardown unsubscribes ep and stops its recvLoop; safe to call more than
// once (explicit Close racing the collector's idle sweep).
func (ep *endpoint) teardown() {
	ep.once.Do(func() {
		ep.broker.unsubscribe(ep)
		close(ep.stopCh)
		ep.wg.Wait()
	})
}

// recvLoop runs on the broker's delivery thread for this endpoint — the
// "transport-owned thread" of spec.md §4.1 that invokes onRecv.
func (ep *endpoint) recvLoop() {
	defer ep.wg.Done()
	for {
		select {
		case payload := <-ep.workCh:
			atomic.StoreInt64(&ep.lastActive, time.Now().UnixNano())
			ep.deliver(payload)
		case <-ep.stopCh:
			return
		}
	}
}

func (ep *endpoint) deliver(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic delivering to %s: %v", ep.topic, r)
			nlog.Errorf("broker: %v", err)
			if ep.onLoss != nil {
				ep.onLoss(err)
			}
		}
	}()
	if ep.extra.Compression == transport.CompressionLZ4 {
		raw, err := transport.DecompressLZ4(payload)
		if err != nil {
			if ep.onLoss != nil {
				ep.onLoss(err)
			}
			return
		}
		payload = raw
	}
	ep.onRecv(payload)
}

func (ep *endpoint) Send(peer string, payload []byte) error {
	if ep.extra.Compression == transport.CompressionLZ4 {
		compressed, err := transport.CompressLZ4(payload)
		if err != nil {
			return err
		}
		payload = compressed
	}
	subs := ep.broker.subscribers(peer)
	if len(subs) == 0 {
		return cos.Errorf(cos.KindOutputPortSendMsg, "broker", "no subscriber for topic %s", peer)
	}
	for _, s := range subs {
		select {
		case s.workCh <- payload:
		default:
			err := fmt.Errorf("send queue full for %s", peer)
			if s.onLoss != nil {
				s.onLoss(err)
			}
			return cos.NewError(cos.KindTransportLoss, "broker", err)
		}
	}
	return nil
}

func (ep *endpoint) Close() error {
	ep.broker.collector.remove(ep)
	ep.teardown()
	return nil
}

//
// idle-teardown collector: mirrors the teacher's transport.collector
// (container/heap min-heap over per-stream ticks-to-idle), generalized
// from "streams" to broker endpoints. sweep() actually tears down endpoints
// idle past IdleTeardown, same as a real stream reaper would.
//

type collector struct {
	mu      sync.Mutex
	ctrlCh  chan ctrlMsg
	stopCh  chan struct{}
	entries []*endpoint
}

type ctrlMsg struct {
	ep  *endpoint
	add bool
}

func newCollector() *collector {
	return &collector{ctrlCh: make(chan ctrlMsg, 64), stopCh: make(chan struct{})}
}

func (c *collector) add(ep *endpoint)    { c.ctrlCh <- ctrlMsg{ep, true} }
func (c *collector) remove(ep *endpoint) { c.ctrlCh <- ctrlMsg{ep, false} }

func (c *collector) run() {
	ticker := time.NewTicker(dfltTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case m, ok := <-c.ctrlCh:
			if !ok {
				return
			}
			if m.add {
				heap.Push(c, m.ep)
			} else {
				c.removeEntry(m.ep)
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *collector) removeEntry(ep *endpoint) {
	for i, e := range c.entries {
		if e == ep {
			heap.Remove(c, i)
			return
		}
	}
}

// sweep tears down every endpoint idle past its IdleTeardown: unsubscribes
// it and stops its recvLoop goroutine, the same outcome an explicit Close
// would produce, so a node/SMN process that never calls Close on a
// long-idle endpoint doesn't leak a blocked goroutine and a dangling
// subscriber entry forever.
func (c *collector) sweep() {
	now := time.Now().UnixNano()
	var idle []*endpoint
	for _, ep := range c.entries {
		if time.Duration(now-atomic.LoadInt64(&ep.lastActive)) > ep.extra.IdleTeardown {
			idle = append(idle, ep)
		}
	}
	for _, ep := range idle {
		c.removeEntry(ep)
		ep.teardown()
		nlog.Infof("broker: tore down idle endpoint %s", ep.topic)
	}
}

// container/heap.Interface, ordered by last activity (longest idle first).
// sweep() itself scans every entry rather than relying on this order.
func (c *collector) Len() int { return len(c.entries) }
func (c *collector) Less(i, j int) bool {
	return atomic.LoadInt64(&c.entries[i].lastActive) < atomic.LoadInt64(&c.entries[j].lastActive)
}
func (c *collector) Swap(i, j int) {
	c.entries[i], c.entries[j] = c.entries[j], c.entries[i]
	c.entries[i].heapIndex, c.entries[j].heapIndex = i, j
}
func (c *collector) Push(x any) {
	ep := x.(*endpoint)
	ep.heapIndex = len(c.entries)
	c.entries = append(c.entries, ep)
}
func (c *collector) Pop() any {
	old := c.entries
	n := len(old)
	ep := old[n-1]
	c.entries = old[:n-1]
	return ep
}
