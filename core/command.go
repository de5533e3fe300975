package core

import (
	"time"

	"github.com/walesch-yan/argussight/cmn/mono"
)

// Command is what the Dispatcher forwards to a worker's command channel:
// a name and an opaque argument payload (spec §3, "Command envelope").
type Command struct {
	Name string
	Args []any
}

// Result is what a worker places on its response channel after handling a
// Command: either a value or an error, never both.
type Result struct {
	Value any
	Err   error
}

// Envelope is the in-flight, caller-facing half of a command: it lives
// inside the Dispatcher's per-worker FIFO from submission until the
// Dispatcher surfaces a result or declares failure (spec §3).
type Envelope struct {
	Command
	SubmittedAt time.Time
	// submittedMono is a monotonic reading of SubmittedAt, used for age
	// checks so a wall-clock adjustment can never shrink or stretch a
	// command's effective deadline (spec §4.5 step 4).
	submittedMono int64
	MaxWait       time.Duration

	// Processed is closed once the manager has forwarded the command to
	// the worker's command channel.
	Processed chan struct{}
	// Reply carries the worker's Result once the manager has received it.
	// On a timeout or worker failure nothing is sent on Reply; the caller
	// learns of it through its own deadline or the manager's failed signal.
	Reply chan Result
}

// NewEnvelope allocates an Envelope ready for submission to a manager.
func NewEnvelope(name string, args []any, maxWait time.Duration) *Envelope {
	return &Envelope{
		Command:       Command{Name: name, Args: args},
		SubmittedAt:   time.Now(),
		submittedMono: mono.NanoTime(),
		MaxWait:       maxWait,
		Processed:     make(chan struct{}),
		Reply:         make(chan Result, 1),
	}
}

// Expired reports whether the envelope has been sitting in a FIFO longer
// than its caller-supplied deadline allows (spec §4.5 step 4).
func (e *Envelope) Expired() bool {
	return mono.Since(e.submittedMono) > e.MaxWait
}

// Age returns how long this envelope has existed, monotonic-clock based.
func (e *Envelope) Age() time.Duration {
	return mono.Since(e.submittedMono)
}
