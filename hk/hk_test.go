package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/walesch-yan/argussight/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("runs a registered job repeatedly at its interval", func() {
		var calls int32
		hk.Reg("test.repeat"+hk.NameSuffix, func() time.Duration {
			atomic.AddInt32(&calls, 1)
			return 50 * time.Millisecond
		}, 10*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&calls) }, 2*time.Second).Should(BeNumerically(">=", 2))
	})

	It("stops calling a job once it is unregistered", func() {
		var calls int32
		name := "test.unreg" + hk.NameSuffix
		hk.Reg(name, func() time.Duration {
			atomic.AddInt32(&calls, 1)
			return 10 * time.Millisecond
		}, 10*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&calls) }, time.Second).Should(BeNumerically(">=", 1))
		hk.Unreg(name)
		snap := atomic.LoadInt32(&calls)
		Consistently(func() int32 { return atomic.LoadInt32(&calls) }, 300*time.Millisecond).Should(Equal(snap))
	})

	It("isolates a panicking job instead of killing the housekeeper loop", func() {
		var otherCalls int32
		hk.Reg("test.panicky"+hk.NameSuffix, func() time.Duration {
			panic("boom")
		}, 10*time.Millisecond)
		hk.Reg("test.other"+hk.NameSuffix, func() time.Duration {
			atomic.AddInt32(&otherCalls, 1)
			return 10 * time.Millisecond
		}, 10*time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&otherCalls) }, 2*time.Second).Should(BeNumerically(">=", 2))
	})
})
