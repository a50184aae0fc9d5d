package hk_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openbuildnet/obncore/hk"
)

var _ = Describe("Registry", func() {
	It("fires a registered job and reschedules it", func() {
		r := hk.NewRegistry()
		defer r.Stop()

		fired := make(chan struct{}, 3)
		count := 0
		r.Reg("job1", func() time.Duration {
			count++
			fired <- struct{}{}
			if count >= 2 {
				return 0 // unregister after second firing
			}
			return 5 * time.Millisecond
		}, time.Millisecond)

		Eventually(fired, time.Second).Should(Receive())
		Eventually(fired, time.Second).Should(Receive())
	})

	It("removes a job on Unreg", func() {
		r := hk.NewRegistry()
		defer r.Stop()

		fired := make(chan struct{}, 10)
		r.Reg("job2", func() time.Duration {
			fired <- struct{}{}
			return time.Hour
		}, time.Millisecond)

		Eventually(fired, time.Second).Should(Receive())
		r.Unreg("job2")

		// drain any in-flight firing, then assert no more arrive for a while
		select {
		case <-fired:
		default:
		}
		Consistently(fired, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("UnregIf only removes when cond is true", func() {
		r := hk.NewRegistry()
		defer r.Stop()

		r.Reg("job3", func() time.Duration { return time.Hour }, time.Hour)

		Expect(r.UnregIf("job3", func() bool { return false })).To(BeFalse())
		Expect(r.UnregIf("job3", func() bool { return true })).To(BeTrue())
		Expect(r.UnregIf("job3", func() bool { return true })).To(BeFalse())
	})
})
