// Package dispatch implements the Dispatcher (spec §4.5): the per-worker
// manager that mediates between bursty control callers and a single
// serialized worker, bounding end-to-end waiting time and handling
// slow/dead workers.
/*
 * Copyright (c) 2024, argussight authors.
 */
package dispatch

import (
	"sync"
	"time"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/registry"
)

// fifoCap is the bounded capacity of a manager's pending-command FIFO
// (spec §4.5: "capacity 20").
const fifoCap = 20

// Terminator is the narrow slice of the Supervisor the Dispatcher needs: a
// way to kill a worker whose manager has declared it dead (spec §4.5 step
// 6, §7's "watcher observes the failed signal and triggers termination").
// Defined here (rather than imported from supervisor) so the Supervisor can
// depend on Dispatcher without a import cycle; the Supervisor implements
// this interface and hands itself to New.
type Terminator interface {
	Terminate(name string, internal bool) error
}

// Metrics is the narrow observability surface the dispatcher reports
// through; satisfied by the metrics package, passed in to avoid an import
// cycle.
type Metrics interface {
	ObserveDispatchWait(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDispatchWait(time.Duration) {}

// Dispatcher owns at most one manager per worker name at a time (spec
// §4.5's "Manager lifecycle": a drained manager is dropped so the next
// command creates a fresh one).
type Dispatcher struct {
	term Terminator
	m    Metrics

	mu       sync.Mutex
	managers map[string]*manager
}

func New(term Terminator, m Metrics) *Dispatcher {
	if m == nil {
		m = noopMetrics{}
	}
	return &Dispatcher{term: term, m: m, managers: make(map[string]*manager)}
}

// Submit runs the full per-command protocol of spec §4.5 against worker
// name, whose live handle is h: ensure a manager, enqueue with deadline
// bookkeeping, then wait for the outcome the caller is promised.
func (d *Dispatcher) Submit(h *registry.Handle, name, command string, args []any, maxWait time.Duration) (any, error) {
	env := core.NewEnvelope(command, args, maxWait)
	mgr := d.acquireManager(name, h)
	if err := mgr.enqueue(env); err != nil {
		return nil, err
	}
	val, err := d.await(mgr, env, maxWait, name)
	d.m.ObserveDispatchWait(env.Age())
	return val, err
}

// acquireManager ensures a manager exists for name, creating one on first
// use (spec §4.5 step 2). If the current manager has already started
// draining (its FIFO emptied and it is on its way out), a fresh one
// replaces it so the new command is not lost.
func (d *Dispatcher) acquireManager(name string, h *registry.Handle) *manager {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mgr, ok := d.managers[name]; ok && !mgr.isDraining() {
		return mgr
	}
	mgr := newManager(name, h, d.term)
	d.managers[name] = mgr
	go d.reap(name, mgr)
	return mgr
}

// reap drops mgr from the table once it has finished, so the next
// Submit for the same worker builds a fresh one (spec §4.5 "Manager
// lifecycle").
func (d *Dispatcher) reap(name string, mgr *manager) {
	<-mgr.finished
	d.mu.Lock()
	if d.managers[name] == mgr {
		delete(d.managers, name)
	}
	d.mu.Unlock()
	mgr.watch()
}

// await implements the caller-side half of spec §4.5 step 7.
func (d *Dispatcher) await(mgr *manager, env *core.Envelope, maxWait time.Duration, name string) (any, error) {
	select {
	case <-env.Processed:
		select {
		case res := <-env.Reply:
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Value, nil
		case <-time.After(maxWait):
			err := cos.NewErrDeadline(true, "command could not be executed in time, terminating worker %q", name)
			if terr := d.term.Terminate(name, true); terr != nil {
				nlog.Errorf("dispatcher: terminate %q after reply timeout: %v", name, terr)
			}
			return nil, err
		}
	case <-mgr.failed:
		return nil, cos.NewErrDeadline(false, "worker %q is no longer alive", name)
	case <-time.After(maxWait):
		return nil, cos.NewErrDeadline(false, "worker %q is busy; try later", name)
	}
}
