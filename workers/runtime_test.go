package workers_test

import (
	"context"
	"sync"
	"time"

	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/workers"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingBehavior struct {
	mu             sync.Mutex
	frames         []core.NormalizedFrame
	closed         bool
	conflictErr    error
	preparedKeys   []string
	prepareErr     error
}

func (b *recordingBehavior) ProcessFrame(f core.NormalizedFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, f)
}

func (b *recordingBehavior) CheckConflict(map[string]any) error { return b.conflictErr }

func (b *recordingBehavior) PrepareSettingChange(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.preparedKeys = append(b.preparedKeys, key)
	return b.prepareErr
}

func (b *recordingBehavior) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *recordingBehavior) Commands() map[string]workers.CommandHandler {
	return map[string]workers.CommandHandler{
		"echo": func(args []any) (any, error) { return args, nil },
		"boom": func(args []any) (any, error) { panic("kaboom") },
	}
}

func (b *recordingBehavior) frameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func newTestRuntime(behavior *recordingBehavior, exposed map[string]core.ParamSpec) (*workers.Runtime, chan core.Command, chan core.Result, chan core.Frame) {
	cmdCh := make(chan core.Command)
	respCh := make(chan core.Result)
	frameCh := make(chan core.Frame)
	internal := make(map[string]core.ParamSpec, len(exposed))
	for k, v := range exposed {
		internal[k] = v
	}
	params := core.NewParamSet(internal, exposed)
	rt := workers.NewRuntime("w", "recording", core.FormatRaw, 10*time.Millisecond, cmdCh, respCh, frameCh, params, behavior, nil)
	return rt, cmdCh, respCh, frameCh
}

var _ = Describe("Runtime", func() {
	It("processes frames and answers commands interleaved, and exits cleanly on cancel", func() {
		behavior := &recordingBehavior{}
		rt, cmdCh, respCh, frameCh := newTestRuntime(behavior, nil)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() { rt.Run(ctx); close(done) }()

		frameCh <- core.Frame{Seq: 0, Width: 1, Height: 1, Channels: 3, RGB: []byte{1, 2, 3}}
		Eventually(behavior.frameCount, time.Second).Should(Equal(1))

		cmdCh <- core.Command{Name: "echo", Args: []any{"hi"}}
		Eventually(respCh, time.Second).Should(Receive(Equal(core.Result{Value: []any{"hi"}})))

		cancel()
		Eventually(done, time.Second).Should(BeClosed())
		Expect(behavior.closed).To(BeTrue())
	})

	It("recovers a panicking command handler into an error result", func() {
		behavior := &recordingBehavior{}
		rt, cmdCh, respCh, _ := newTestRuntime(behavior, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		cmdCh <- core.Command{Name: "boom"}
		var res core.Result
		Eventually(respCh, time.Second).Should(Receive(&res))
		Expect(res.Err).To(HaveOccurred())
		Expect(res.Err.Error()).To(ContainSubstring("panicked"))
	})

	It("rejects an unknown command name with a validation error", func() {
		behavior := &recordingBehavior{}
		rt, cmdCh, respCh, _ := newTestRuntime(behavior, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		cmdCh <- core.Command{Name: "nope"}
		var res core.Result
		Eventually(respCh, time.Second).Should(Receive(&res))
		Expect(res.Err).To(HaveOccurred())
		Expect(res.Err.Error()).To(ContainSubstring("not known"))
	})

	It("tracks missed frames across a sequence gap", func() {
		behavior := &recordingBehavior{}
		rt, _, _, frameCh := newTestRuntime(behavior, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		frameCh <- core.Frame{Seq: 0, Width: 1, Height: 1, Channels: 3, RGB: []byte{0, 0, 0}}
		frameCh <- core.Frame{Seq: 3, Width: 1, Height: 1, Channels: 3, RGB: []byte{1, 1, 1}}
		Eventually(func() int64 {
			if behavior.frameCount() < 2 {
				return -1
			}
			behavior.mu.Lock()
			defer behavior.mu.Unlock()
			return behavior.frames[1].MissedFrames
		}, time.Second).Should(Equal(int64(2)))
	})

	It("exits when the frame bus channel is closed", func() {
		behavior := &recordingBehavior{}
		rt, _, _, frameCh := newTestRuntime(behavior, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() { rt.Run(ctx); close(done) }()

		close(frameCh)
		Eventually(done, time.Second).Should(BeClosed())
	})
})

var _ = Describe("Runtime settings command", func() {
	It("rejects a change to a key that is not exposed", func() {
		behavior := &recordingBehavior{}
		rt, cmdCh, respCh, _ := newTestRuntime(behavior, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		cmdCh <- core.Command{Name: "settings", Args: []any{map[string]any{"secret": 1}}}
		var res core.Result
		Eventually(respCh, time.Second).Should(Receive(&res))
		Expect(res.Err).To(HaveOccurred())
		Expect(res.Err.Error()).To(ContainSubstring("not an exposed parameter"))
	})

	It("aborts the whole change when CheckConflict rejects it", func() {
		behavior := &recordingBehavior{conflictErr: assertErr("conflict")}
		exposed := map[string]core.ParamSpec{"threshold": {Value: int64(1), Exposed: true, Mutable: true}}
		rt, cmdCh, respCh, _ := newTestRuntime(behavior, exposed)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		cmdCh <- core.Command{Name: "settings", Args: []any{map[string]any{"threshold": int64(2)}}}
		var res core.Result
		Eventually(respCh, time.Second).Should(Receive(&res))
		Expect(res.Err).To(HaveOccurred())
		Expect(behavior.preparedKeys).To(BeEmpty())
	})

	It("applies a changed exposed key after preparing it", func() {
		behavior := &recordingBehavior{}
		exposed := map[string]core.ParamSpec{"threshold": {Value: int64(1), Exposed: true, Mutable: true}}
		rt, cmdCh, respCh, _ := newTestRuntime(behavior, exposed)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		cmdCh <- core.Command{Name: "settings", Args: []any{map[string]any{"threshold": int64(2)}}}
		var res core.Result
		Eventually(respCh, time.Second).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(behavior.preparedKeys).To(ConsistOf("threshold"))
		Expect(rt.Params.Exposed()["threshold"]).To(Equal(int64(2)))
	})

	It("is a no-op that still replies ok when nothing actually changes", func() {
		behavior := &recordingBehavior{}
		exposed := map[string]core.ParamSpec{"threshold": {Value: int64(1), Exposed: true, Mutable: true}}
		rt, cmdCh, respCh, _ := newTestRuntime(behavior, exposed)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go rt.Run(ctx)

		cmdCh <- core.Command{Name: "settings", Args: []any{map[string]any{"threshold": int64(1)}}}
		var res core.Result
		Eventually(respCh, time.Second).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(behavior.preparedKeys).To(BeEmpty())
	})
})

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
