// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"sync"
	"time"

	"github.com/walesch-yan/argussight/cmn/nlog"
)

// NameSuffix is conventionally appended to a job name registered by a
// subsystem, so log lines naming the job read as "<subsystem>.gc".
const NameSuffix = ".gc"

// Default intervals for housekeeping jobs. cmd/argusd registers the
// Supervisor's protected-worker liveness sweep (§8 "protected-restart
// liveness") at DelOldIval. The Dispatcher registers no housekeeping job:
// each of its managers is removed by its own reap goroutine.
const (
	PruneActiveIval = 10 * time.Second
	DelOldIval      = time.Minute
)

const tick = 100 * time.Millisecond

type job struct {
	name string
	f    func() time.Duration
	due  time.Time
}

// HK runs a set of named, independently-intervaled callbacks. Each callback
// returns the delay until it should run again, mirroring aistore's own
// `hk.Reg(name, callback, interval)` housekeeper.
type HK struct {
	mu      sync.Mutex
	jobs    map[string]*job
	startCh chan struct{}
	started sync.Once
	stopCh  chan struct{}
}

// DefaultHK is the process-wide housekeeper every subsystem registers
// against; main() starts it once with `go hk.DefaultHK.Run()`.
var DefaultHK = New()

func New() *HK {
	return &HK{
		jobs:    make(map[string]*job),
		startCh: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Reg registers f to run first one interval from now; after each run, the
// duration f returns is the delay until its next run.
func Reg(name string, f func() time.Duration, interval time.Duration) {
	DefaultHK.Reg(name, f, interval)
}

// Unreg removes a previously registered job; a no-op if name is unknown.
func Unreg(name string) { DefaultHK.Unreg(name) }

func (hk *HK) Reg(name string, f func() time.Duration, interval time.Duration) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	hk.jobs[name] = &job{name: name, f: f, due: time.Now().Add(interval)}
}

func (hk *HK) Unreg(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	delete(hk.jobs, name)
}

// Run drives every registered job until Stop is called. Intended to be
// launched once, in its own goroutine, by the daemon's main().
func (hk *HK) Run() {
	hk.started.Do(func() { close(hk.startCh) })
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-hk.stopCh:
			return
		case now := <-ticker.C:
			hk.runDue(now)
		}
	}
}

func (hk *HK) runDue(now time.Time) {
	hk.mu.Lock()
	var due []*job
	for _, j := range hk.jobs {
		if !now.Before(j.due) {
			due = append(due, j)
		}
	}
	hk.mu.Unlock()

	for _, j := range due {
		next := hk.callSafe(j)
		hk.mu.Lock()
		if _, ok := hk.jobs[j.name]; ok {
			j.due = time.Now().Add(next)
		}
		hk.mu.Unlock()
	}
}

// callSafe isolates a panicking job from the housekeeper loop itself,
// rescheduling it a minute out rather than losing it silently.
func (hk *HK) callSafe(j *job) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("hk: job %q panicked: %v", j.name, r)
			next = time.Minute
		}
	}()
	return j.f()
}

// Stop terminates Run's loop. Safe to call at most once per HK instance.
func (hk *HK) Stop() { close(hk.stopCh) }

// TestInit replaces DefaultHK with a fresh instance, for test isolation.
func TestInit() { DefaultHK = New() }

// WaitStarted blocks until DefaultHK.Run has begun ticking.
func WaitStarted() { <-DefaultHK.startCh }
