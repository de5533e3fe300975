package dispatch

import (
	"sync"
	"time"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/registry"
)

// manager owns one worker's bounded pending-command FIFO and drives it
// through the worker's command/response channel pair (spec §4.5:
// "Manager. The per-worker Dispatcher component that owns the bounded
// pending-command FIFO and drives a single worker through its command
// channel").
type manager struct {
	name string
	h    *registry.Handle
	term Terminator

	mu       sync.Mutex
	queue    []*core.Envelope
	draining bool

	failed   chan struct{}
	finished chan struct{}
	failOnce sync.Once
}

func newManager(name string, h *registry.Handle, term Terminator) *manager {
	m := &manager{
		name:     name,
		h:        h,
		term:     term,
		failed:   make(chan struct{}),
		finished: make(chan struct{}),
	}
	go m.run()
	return m
}

// enqueue appends env to the FIFO (spec §4.5 step 3), failing fast if the
// FIFO is already at capacity or this manager is already draining (the
// caller must re-acquire a fresh manager in that case, handled by
// Dispatcher.acquireManager).
func (m *manager) enqueue(env *core.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) >= fifoCap {
		return cos.NewErrResourceExhausted("too many commands in waiting list for worker %q", m.name)
	}
	m.queue = append(m.queue, env)
	return nil
}

func (m *manager) isDraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draining
}

// run pops envelopes in FIFO order (spec §4.5 step 4 onward) until the
// queue drains, then sets finished. A forward or reply that doesn't
// complete within the envelope's own deadline declares the worker failed
// and abandons any remaining queued envelopes (spec §4.5 step 6).
func (m *manager) run() {
	defer close(m.finished)
	for {
		env, ok := m.pop()
		if !ok {
			return
		}
		if env.Expired() {
			// expired-in-queue: dropped without a response (spec §4.5 step
			// 4, §8: "exactly one of {expired-in-queue, response-delivered,
			// worker-failed}").
			continue
		}

		select {
		case m.h.CmdCh <- env.Command:
		case <-time.After(env.MaxWait):
			m.fail()
			return
		}
		close(env.Processed)

		select {
		case res := <-m.h.RespCh:
			env.Reply <- res
		case <-time.After(env.MaxWait):
			m.fail()
			return
		}
	}
}

// fail declares the worker dead by closing m.failed exactly once (spec
// §4.5 step 6), so both dispatcher.go's await select and watch() below can
// observe it without a double-close panic if a forward and a reply
// timeout race each other.
func (m *manager) fail() {
	m.failOnce.Do(func() { close(m.failed) })
}

// pop removes and returns the head of the FIFO. Once it observes an empty
// queue it marks the manager draining and returns false: per spec §4.5 a
// manager exits (rather than idling) when its FIFO drains.
func (m *manager) pop() (*core.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.draining = true
		return nil, false
	}
	env := m.queue[0]
	m.queue = m.queue[1:]
	return env, true
}

// watch implements the watcher half of spec §4.5's Manager lifecycle: once
// finished, if the manager also declared the worker failed, trigger
// termination (and, per §4.6, protected-restart if applicable).
func (m *manager) watch() {
	select {
	case <-m.failed:
		nlog.Warningf("dispatcher: worker %q failed to respond in time, terminating", m.name)
		if err := m.term.Terminate(m.name, true); err != nil {
			nlog.Errorf("dispatcher: terminate %q after failure: %v", m.name, err)
		}
	default:
	}
}
