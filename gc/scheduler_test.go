package gc_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/depgraph"
	"github.com/openbuildnet/obncore/gc"
	"github.com/openbuildnet/obncore/wire"
)

// fakeSender stands in for the transport: every UPDATE_Y/X it "sends" is
// immediately acked, as if the node replied instantly, so the tick loop
// under test is driven purely by scheduling logic.
type fakeSender struct {
	mu     sync.Mutex
	sched  *gc.Scheduler
	yCount map[string]int
}

func (f *fakeSender) Send(peer string, payload []byte) error {
	m, err := wire.Decode(payload)
	if err != nil {
		return err
	}
	switch m.Type {
	case wire.TypeUpdateY:
		f.mu.Lock()
		f.yCount[peer]++
		f.mu.Unlock()
		f.sched.DeliverAck(peer, 0)
	case wire.TypeUpdateX:
		f.sched.DeliverAck(peer, 0)
	}
	return nil
}

var _ = Describe("Scheduler", func() {
	It("runs a two-node periodic workspace to final_time and stops cleanly", func() {
		graph := depgraph.New()
		graph.AddNode("A")
		graph.AddNode("B")
		Expect(graph.AddEdge(depgraph.Edge{Src: "A", Tgt: "B", SrcMask: 1, TgtMask: 1})).To(Succeed())

		sender := &fakeSender{yCount: make(map[string]int)}
		sched, err := gc.NewScheduler("ws", sender, graph, time.Second, cos.SimTime(3))
		Expect(err).NotTo(HaveOccurred())
		sender.sched = sched

		Expect(sched.AddNode("A", "A", []gc.Block{{ID: 0, Period: 1}})).To(Succeed())
		Expect(sched.AddNode("B", "B", []gc.Block{{ID: 0, Period: 1}})).To(Succeed())

		Expect(sched.Run()).To(Succeed())

		Expect(sender.yCount["A"]).To(Equal(3))
		Expect(sender.yCount["B"]).To(Equal(3))
	})

	It("rejects an irregular update request at or before the current time", func() {
		graph := depgraph.New()
		graph.AddNode("A")
		sender := &fakeSender{yCount: make(map[string]int)}
		sched, err := gc.NewScheduler("ws", sender, graph, time.Second, cos.SimTime(10))
		Expect(err).NotTo(HaveOccurred())
		sender.sched = sched
		Expect(sched.AddNode("A", "A", []gc.Block{{ID: 0, Period: 0}})).To(Succeed())

		status := sched.ReceiveSimEvent("A", 0, 1)
		Expect(status).NotTo(BeZero())
	})
})
