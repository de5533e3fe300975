package supervisor_test

import (
	"context"
	"time"

	"github.com/walesch-yan/argussight/config"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/supervisor"
	"github.com/walesch-yan/argussight/workers"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeBus stands in for a real Redis connection: each Subscribe gets its
// own frame channel, closed when its context is cancelled, matching
// bus.Client's "no automatic reconnect" contract closely enough to drive
// the worker runtime loop under test.
type fakeBus struct {
	published chan publishedMsg
}

type publishedMsg struct {
	channel string
	payload []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(chan publishedMsg, 16)}
}

func (b *fakeBus) Subscribe(ctx context.Context) (<-chan core.Frame, error) {
	out := make(chan core.Frame)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (b *fakeBus) Publish(channel string, payload []byte) error {
	b.published <- publishedMsg{channel: channel, payload: payload}
	return nil
}

// echoDescriptor is a minimal accessible, non-streaming worker type used to
// exercise Start/Terminate without pulling in workers/types, whose real
// behaviors are unnecessary for these specs.
func echoDescriptor() workers.TypeDescriptor {
	return workers.TypeDescriptor{
		TypeName:           "echo",
		Accessible:         true,
		CommandPollTimeout: func() int64 { return int64(20 * time.Millisecond) },
		New: func(params *core.ParamSet, args []string, deps workers.Deps) (workers.Behavior, error) {
			return &echoBehavior{}, nil
		},
		ParamLayers: func() []core.ParamLayer { return nil },
	}
}

// restrictedDescriptor is identical to echoDescriptor but Accessible=false,
// used to exercise the restricted/protected-restart paths.
func restrictedDescriptor() workers.TypeDescriptor {
	d := echoDescriptor()
	d.TypeName = "restricted-echo"
	d.Accessible = false
	return d
}

type echoBehavior struct{}

func (*echoBehavior) ProcessFrame(core.NormalizedFrame)   {}
func (*echoBehavior) CheckConflict(map[string]any) error  { return nil }
func (*echoBehavior) PrepareSettingChange(string) error    { return nil }
func (*echoBehavior) Close()                               {}
func (*echoBehavior) Commands() map[string]workers.CommandHandler {
	return map[string]workers.CommandHandler{
		"echo": func(args []any) (any, error) { return args, nil },
	}
}

func newTestSupervisor(configured []config.Process) *supervisor.Supervisor {
	catalog := map[string]workers.TypeDescriptor{
		"echo":            echoDescriptor(),
		"restricted-echo": restrictedDescriptor(),
	}
	return supervisor.New(catalog, configured, []int{9001, 9002}, newFakeBus(), nil, "/v1/streams/")
}

var _ = Describe("Supervisor", func() {
	It("rejects starting two workers under the same name", func() {
		s := newTestSupervisor(nil)
		Expect(s.Start("w1", "echo", nil, false)).To(Succeed())
		err := s.Start("w1", "echo", nil, false)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("already exists"))
	})

	It("rejects starting a restricted type from an external caller", func() {
		s := newTestSupervisor(nil)
		err := s.Start("r1", "restricted-echo", nil, false)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("restricted"))
	})

	It("allows an internal caller to start a restricted type", func() {
		s := newTestSupervisor(nil)
		Expect(s.Start("r1", "restricted-echo", nil, true)).To(Succeed())
	})

	It("round-trips start, manage and terminate for an accessible worker", func() {
		s := newTestSupervisor(nil)
		Expect(s.Start("w1", "echo", nil, false)).To(Succeed())

		val, err := s.ManageProcess("w1", "echo", []any{"hi"}, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal([]any{"hi"}))

		Expect(s.Terminate("w1", false)).To(Succeed())
		_, err = s.ManageProcess("w1", "echo", nil, time.Second)
		Expect(err).To(HaveOccurred())
	})

	It("reports not-found with a suggestion for a near-miss name", func() {
		s := newTestSupervisor(nil)
		Expect(s.Start("worker1", "echo", nil, false)).To(Succeed())
		_, err := s.ManageProcess("worker2", "echo", nil, time.Second)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("worker1"))
	})

	It("exhausts the stream-port pool across StreamCapable types", func() {
		streaming := echoDescriptor()
		streaming.TypeName = "streaming-echo"
		streaming.StreamCapable = true

		catalog := map[string]workers.TypeDescriptor{"streaming-echo": streaming}
		s := supervisor.New(catalog, nil, []int{9001}, newFakeBus(), nil, "/v1/streams/")

		Expect(s.Start("a", "streaming-echo", nil, false)).To(Succeed())
		err := s.Start("b", "streaming-echo", nil, false)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("all streaming ports are taken"))
	})

	It("protected-restarts a restricted worker after it is terminated", func() {
		configured := []config.Process{{Name: "r1", Type: "restricted-echo", Args: nil}}
		s := newTestSupervisor(configured)
		Expect(s.Start("r1", "restricted-echo", nil, true)).To(Succeed())

		Expect(s.Terminate("r1", true)).To(Succeed())

		Eventually(func() error {
			_, err := s.ManageProcess("r1", "echo", nil, 200*time.Millisecond)
			return err
		}, 2*time.Second).Should(Succeed())
	})

	It("leaves the liveness sweep nothing to restart after Terminate's own protected-restart", func() {
		configured := []config.Process{{Name: "r1", Type: "restricted-echo", Args: nil}}
		s := newTestSupervisor(configured)
		Expect(s.Start("r1", "restricted-echo", nil, true)).To(Succeed())

		// An internal Terminate of a restricted worker restarts it at once,
		// so a following ReconcileProtected finds nothing missing and the
		// worker keeps answering commands.
		Expect(s.Terminate("r1", true)).To(Succeed())
		Eventually(func() error {
			_, err := s.ManageProcess("r1", "echo", nil, 200*time.Millisecond)
			return err
		}, 2*time.Second).Should(Succeed())

		Expect(s.Terminate("r1", true)).To(Succeed())
		restarted := s.ReconcileProtected()
		Expect(restarted).To(Equal(0), "Terminate's own protected-restart should have already restored r1")

		_, err := s.ManageProcess("r1", "echo", nil, 200*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
	})

	It("lists running workers and available types via GetProcesses", func() {
		s := newTestSupervisor(nil)
		Expect(s.Start("w1", "echo", nil, false)).To(Succeed())

		snap := s.GetProcesses()
		Expect(snap.Running).To(HaveKey("w1"))
		Expect(snap.Running["w1"].Type).To(Equal("echo"))
		Expect(snap.AvailableTypes).To(HaveKey("echo"))
		Expect(snap.AvailableTypes).To(HaveKey("restricted-echo"))
	})
})
