package workers

import (
	"context"
	"time"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
)

// Metrics is the narrow observability surface the runtime reports through;
// satisfied by the metrics package, passed in to avoid an import cycle.
type Metrics interface {
	FrameProcessed(worker string)
	FramesMissed(worker string, missed int64)
	CommandHandled(worker, command string, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) FrameProcessed(string)             {}
func (noopMetrics) FramesMissed(string, int64)        {}
func (noopMetrics) CommandHandled(string, string, bool) {}

// Runtime is the single loop every worker goroutine executes: bounded
// command polling interleaved with frame intake (spec §4.2). One Runtime
// backs exactly one worker; the goroutine it runs on stands in for the
// "separate OS-level process" of spec §4.2 per DESIGN.md's open-question
// resolution.
type Runtime struct {
	Name        string
	Type        string
	Format      core.FrameFormat
	PollTimeout time.Duration

	CmdCh   chan core.Command
	RespCh  chan core.Result
	FrameCh <-chan core.Frame

	Params   *core.ParamSet
	Behavior Behavior
	Metrics  Metrics

	commands map[string]CommandHandler
	lastSeq  int64
	missed   int64
}

// NewRuntime wires a Behavior's own command table together with the
// universal built-in `settings` command (spec §4.2, "every worker type
// inherits a built-in command `settings`").
func NewRuntime(name, typ string, fmtKind core.FrameFormat, pollTimeout time.Duration,
	cmdCh chan core.Command, respCh chan core.Result, frameCh <-chan core.Frame,
	params *core.ParamSet, behavior Behavior, m Metrics) *Runtime {
	if m == nil {
		m = noopMetrics{}
	}
	rt := &Runtime{
		Name: name, Type: typ, Format: fmtKind, PollTimeout: pollTimeout,
		CmdCh: cmdCh, RespCh: respCh, FrameCh: frameCh,
		Params: params, Behavior: behavior, Metrics: m,
		lastSeq: -1,
	}
	rt.commands = make(map[string]CommandHandler, len(behavior.Commands())+1)
	for name, h := range behavior.Commands() {
		rt.commands[name] = h
	}
	rt.commands["settings"] = rt.handleSettings
	return rt
}

// Run executes the runtime loop until ctx is cancelled (the Supervisor
// killing this worker, spec §4.2's "process" in the goroutine mapping),
// FrameCh is closed (bus connection lost, spec §4.1), or CmdCh is closed by
// its caller. It never drops a command silently: every received envelope
// produces exactly one response (spec §4.2).
func (rt *Runtime) Run(ctx context.Context) {
	defer rt.Behavior.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-rt.CmdCh:
			if !ok {
				return
			}
			rt.handleCommand(cmd)
			continue
		case <-time.After(rt.PollTimeout):
		}

		select {
		case <-ctx.Done():
			return
		case frame, ok := <-rt.FrameCh:
			if !ok {
				nlog.Infof("worker %s: frame bus closed, exiting", rt.Name)
				return
			}
			rt.handleFrame(frame)
		}
	}
}

func (rt *Runtime) handleFrame(frame core.Frame) {
	if rt.lastSeq != -1 && frame.Seq > rt.lastSeq+1 {
		gap := frame.Seq - rt.lastSeq - 1
		rt.missed += gap
		rt.Metrics.FramesMissed(rt.Name, gap)
		nlog.Warningf("worker %s: missed %d frames (total %d)", rt.Name, gap, rt.missed)
	}
	rt.lastSeq = frame.Seq

	norm := core.NormalizedFrame{
		Seq: frame.Seq, Width: frame.Width, Height: frame.Height, Channels: frame.Channels,
		TimeStr: frame.TimeStr, Pixels: core.Normalize(&frame, rt.Format), MissedFrames: rt.missed,
	}
	rt.Behavior.ProcessFrame(norm)
	rt.Metrics.FrameProcessed(rt.Name)
}

// handleCommand looks up the command name in the per-worker-type command
// table; unknown names produce a structured error, never a silent drop
// (spec §4.2).
func (rt *Runtime) handleCommand(cmd core.Command) {
	handler, ok := rt.commands[cmd.Name]
	if !ok {
		err := cos.NewErrValidation("command %q is not known for worker type %q", cmd.Name, rt.Type)
		rt.Metrics.CommandHandled(rt.Name, cmd.Name, false)
		rt.respond(core.Result{Err: err})
		return
	}
	val, err := rt.safeInvoke(handler, cmd.Args)
	rt.Metrics.CommandHandled(rt.Name, cmd.Name, err == nil)
	rt.respond(core.Result{Value: val, Err: err})
}

// safeInvoke captures a panicking handler (the Go analogue of the
// original's "captured exception") as an error result instead of letting
// it kill the worker goroutine (spec §4.2, §7: "Internal programming
// errors inside a command handler... do not kill the worker").
func (rt *Runtime) safeInvoke(h CommandHandler, args []any) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cos.NewErrValidation("command handler panicked: %v", r)
		}
	}()
	return h(args)
}

func (rt *Runtime) respond(res core.Result) {
	// Every received envelope must produce exactly one response (spec
	// §4.2); block rather than drop if the manager is momentarily slow
	// to read.
	rt.RespCh <- res
}
