package dispatch_test

import (
	"sync/atomic"
	"time"

	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/dispatch"
	"github.com/walesch-yan/argussight/registry"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type fakeTerm struct {
	calls int32
	names chan string
}

func newFakeTerm() *fakeTerm { return &fakeTerm{names: make(chan string, 32)} }

func (f *fakeTerm) Terminate(name string, _ bool) error {
	atomic.AddInt32(&f.calls, 1)
	f.names <- name
	return nil
}

func echoWorker(cmdCh chan core.Command, respCh chan core.Result) {
	for cmd := range cmdCh {
		respCh <- core.Result{Value: cmd.Name}
	}
}

var _ = Describe("Dispatcher", func() {
	It("completes a well-behaved command within the deadline (happy dispatch)", func() {
		cmdCh := make(chan core.Command)
		respCh := make(chan core.Result)
		go echoWorker(cmdCh, respCh)

		h := &registry.Handle{Name: "W", CmdCh: cmdCh, RespCh: respCh}
		term := newFakeTerm()
		d := dispatch.New(term, nil)

		val, err := d.Submit(h, "W", "print", []any{"hi"}, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal("print"))
		Expect(atomic.LoadInt32(&term.calls)).To(BeZero())
	})

	It("terminates the worker and surfaces a deadline error when it never replies", func() {
		cmdCh := make(chan core.Command)
		respCh := make(chan core.Result)
		go func() { <-cmdCh }() // accepts the command but never answers

		h := &registry.Handle{Name: "Slow", CmdCh: cmdCh, RespCh: respCh}
		term := newFakeTerm()
		d := dispatch.New(term, nil)

		_, err := d.Submit(h, "Slow", "sleep", nil, 100*time.Millisecond)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("could not be executed in time"))
		Eventually(term.names, time.Second).Should(Receive(Equal("Slow")))
	})

	It("reports worker-busy when neither processed nor failed fires in time", func() {
		cmdCh := make(chan core.Command) // nothing ever reads it
		respCh := make(chan core.Result)

		h := &registry.Handle{Name: "Busy", CmdCh: cmdCh, RespCh: respCh}
		d := dispatch.New(newFakeTerm(), nil)

		_, err := d.Submit(h, "Busy", "anything", nil, 80*time.Millisecond)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("busy"))
	})

	It("fails fast once the per-worker FIFO is already at capacity", func() {
		cmdCh := make(chan core.Command) // the manager blocks forever trying to send #1
		respCh := make(chan core.Result)

		h := &registry.Handle{Name: "Full", CmdCh: cmdCh, RespCh: respCh}
		d := dispatch.New(newFakeTerm(), nil)

		const n = 30
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				_, err := d.Submit(h, "Full", "noop", nil, 3*time.Second)
				errs <- err
			}()
		}

		var rejected int
		for i := 0; i < n; i++ {
			if err := <-errs; err != nil && contains(err.Error(), "too many commands") {
				rejected++
			}
		}
		Expect(rejected).To(BeNumerically(">=", 1))
	})
})

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
