package node_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openbuildnet/obncore/node"
)

var _ = Describe("WaitList", func() {
	It("clears a matching condition and hands back its data", func() {
		w := node.NewWaitList()
		h := w.Register(func(ev node.NodeEvent) bool { return ev.Kind == node.NodeEventSimEventAck })

		go w.Notify(node.NodeEvent{Kind: node.NodeEventSimEventAck, I: 0})

		ev, cancelled, ok := w.Wait(h, time.Second)
		Expect(ok).To(BeTrue())
		Expect(cancelled).To(BeFalse())
		Expect(ev.Kind).To(Equal(node.NodeEventSimEventAck))
	})

	It("times out when nothing matches", func() {
		w := node.NewWaitList()
		h := w.Register(func(ev node.NodeEvent) bool { return false })

		_, _, ok := w.Wait(h, 10*time.Millisecond)
		Expect(ok).To(BeFalse())
	})

	It("leaves a timed-out condition ACTIVE for later polling", func() {
		w := node.NewWaitList()
		h := w.Register(func(ev node.NodeEvent) bool { return ev.Kind == node.NodeEventSimEventAck })

		_, _, ok := w.Wait(h, 10*time.Millisecond)
		Expect(ok).To(BeFalse())

		// the condition is still registered: a later Notify still reaches it.
		go w.Notify(node.NodeEvent{Kind: node.NodeEventSimEventAck})
		ev, cancelled, ok := w.Wait(h, time.Second)
		Expect(ok).To(BeTrue())
		Expect(cancelled).To(BeFalse())
		Expect(ev.Kind).To(Equal(node.NodeEventSimEventAck))
	})

	It("Release retires a still-ACTIVE slot back to the free list", func() {
		w := node.NewWaitList()
		h1 := w.Register(func(ev node.NodeEvent) bool { return false })
		_, _, ok := w.Wait(h1, 10*time.Millisecond)
		Expect(ok).To(BeFalse())

		w.Release(h1)
		h2 := w.Register(func(ev node.NodeEvent) bool { return true })
		Expect(h2).To(Equal(h1))
	})

	It("cancels every ACTIVE condition on CancelAll", func() {
		w := node.NewWaitList()
		h := w.Register(func(ev node.NodeEvent) bool { return false })

		go func() {
			time.Sleep(5 * time.Millisecond)
			w.CancelAll()
		}()

		_, cancelled, ok := w.Wait(h, time.Second)
		Expect(ok).To(BeTrue())
		Expect(cancelled).To(BeTrue())
	})

	It("reuses a released slot's handle", func() {
		w := node.NewWaitList()
		h1 := w.Register(func(ev node.NodeEvent) bool { return true })
		w.Notify(node.NodeEvent{})
		_, _, ok := w.Wait(h1, time.Second)
		Expect(ok).To(BeTrue())

		h2 := w.Register(func(ev node.NodeEvent) bool { return true })
		Expect(h2).To(Equal(h1))
	})
})
