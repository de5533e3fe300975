// Package registry implements the Worker Registry (spec §4.4): the
// in-process map from worker name to worker handle that the Supervisor and
// Dispatcher share, with edit-distance lookup-failure suggestions.
/*
 * Copyright (c) 2024, argussight authors.
 */
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/debug"
	"github.com/walesch-yan/argussight/core"
)

// Handle is the Registry's view of one live worker (spec §3 "Worker
// record"): everything the Dispatcher and Supervisor need without reaching
// into the worker goroutine's own internal state.
type Handle struct {
	Name       string
	Type       string
	Restricted bool

	CmdCh  chan core.Command
	RespCh chan core.Result
	Params *core.ParamSet

	StreamID   string
	StreamPort int
	HasPort    bool

	// Cancel tears down the worker goroutine; Done is closed once it has
	// actually exited. Together these stand in for "OS-level termination"
	// of spec §4.6 under the goroutine worker model (see DESIGN.md).
	Cancel context.CancelFunc
	Done   <-chan struct{}
}

// Registry maps worker name -> Handle. All reads and writes are
// serialized; per spec §4.4 it is touched only by the Supervisor and
// Dispatcher, both running in the control-plane process.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Handle
}

func New() *Registry {
	return &Registry{m: make(map[string]*Handle)}
}

// Insert adds h, failing if its name is already present (spec §3: "Names
// are globally unique across live workers").
func (r *Registry) Insert(h *Handle) error {
	debug.Assert(h.Name != "", "registry: inserting a handle with an empty name")
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[h.Name]; ok {
		return cos.NewErrExists("worker " + h.Name)
	}
	r.m[h.Name] = h
	return nil
}

// Remove deletes name, failing if it is absent.
func (r *Registry) Remove(name string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.m[name]
	if !ok {
		return nil, cos.NewErrNotFound("worker "+name, "")
	}
	delete(r.m, name)
	return h, nil
}

// Lookup returns name's handle, or a not-found error carrying an
// edit-distance suggestion (threshold 3) when a close match exists among
// known names (spec §4.4/§7).
func (r *Registry) Lookup(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.m[name]; ok {
		return h, nil
	}
	names := make([]string, 0, len(r.m))
	for n := range r.m {
		names = append(names, n)
	}
	return nil, cos.NewErrNotFound("worker "+name, cos.Suggest(name, names, 3))
}

// List enumerates live workers, sorted by name for deterministic output.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.m))
	for _, h := range r.m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports the number of live workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
