// Package workers implements the Worker Runtime (spec §4.2): the
// cooperative loop that interleaves frame intake and bounded command
// polling inside each worker, and the per-worker-type behavior it
// parameterizes over. Per the flattening design note in spec §9, the
// original's deep class hierarchy (generic worker -> saver ->
// buffer/recorder -> specific algorithm) becomes a single Behavior
// interface implemented once per worker type, plus one shared Runtime.
/*
 * Copyright (c) 2024, argussight authors.
 */
package workers

import (
	"github.com/walesch-yan/argussight/core"
)

// CommandHandler executes one command against a worker's live state and
// returns the value to place on the response channel, or an error.
type CommandHandler func(args []any) (any, error)

// Behavior is the small interface every worker type implements in place of
// the original's inheritance chain (spec §9).
type Behavior interface {
	// ProcessFrame is the opaque, type-specific per-frame computation
	// (optical flow, buffering, ...). Synchronous; may be arbitrarily
	// expensive (spec §4.2) and is the tuning knob for CommandPollTimeout.
	ProcessFrame(frame core.NormalizedFrame)

	// CheckConflict runs against a tentative merged parameter view before
	// any change is committed (spec §4.2 step 2). A non-nil error aborts
	// the whole settings change.
	CheckConflict(tentative map[string]any) error

	// PrepareSettingChange is called once per key whose value is actually
	// changing, before the atomic apply (spec §4.2 step 3). It may reset
	// algorithmic state (clear a buffer, drop tracked points, ...).
	PrepareSettingChange(key string) error

	// Commands returns this worker type's command table, keyed by command
	// name (spec §4.2, "per-worker-type command table").
	Commands() map[string]CommandHandler

	// Close releases any resources the behavior holds open (thread pools,
	// sidecar processes, open files). Called when the worker is killed.
	Close()
}

// CommandDescriptor documents one entry of a worker type's command table
// for introspection, replacing runtime reflection per spec §9.
type CommandDescriptor struct {
	Name     string
	ArgNames []string
}

// TypeDescriptor is the static, compile-time catalog entry for a worker
// type (spec §9 design note: "each worker type declares a static
// descriptor... no runtime reflection required").
type TypeDescriptor struct {
	TypeName      string
	Accessible    bool // false => restricted, spec §3/§4.6
	StreamCapable bool // true => worker publishes a derived stream and needs a port
	InitArgs      []string
	Commands      []CommandDescriptor

	// Format is the pixel layout ProcessFrame wants to receive, selected
	// once at worker construction (spec §4.2). Zero value is FormatRaw.
	Format core.FrameFormat

	// CommandPollTimeout bounds how long the runtime waits for a command
	// before moving on to frame intake (spec §4.2: "a worker-type
	// constant, e.g. 20-1000ms").
	CommandPollTimeout func() int64 // nanoseconds; a fixed per-type constant

	// New constructs a fresh Behavior for one worker instance.
	New func(params *core.ParamSet, args []string, deps Deps) (Behavior, error)

	// ParamLayers is this type's ordered configuration-layer chain,
	// ancestors first (spec §4.3/§9).
	ParamLayers func() []core.ParamLayer
}

// Deps carries the handful of capabilities a Behavior may need at
// construction time beyond its own parameters: a way to publish a derived
// frame, and the stream port allocated to it (if StreamCapable).
type Deps struct {
	StreamID   string
	StreamPort int
	Publish    func(channel string, payload []byte) error
}
