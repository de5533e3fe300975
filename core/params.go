package core

import "sync"

// ParamSpec is a single entry in a worker type's parameter schema, as
// loaded from its per-type configuration file (spec §4.3).
type ParamSpec struct {
	Value    any
	Exposed  bool
	Mutable  bool // whether ChangeSettings may write this key; defaults true when Exposed
}

// ParamLayer is one step of a worker type's configuration-layer chain
// (spec §9: "an explicit ordered list of configuration layers per worker
// type, resolved at construction", replacing the original's class MRO
// walk). Layers are merged ancestors-first, so a later layer overrides an
// earlier one.
type ParamLayer map[string]ParamSpec

// MergeLayers walks layers in order (most generic first) and returns the
// full internal map plus the exposed subset, per spec §4.3.
func MergeLayers(layers ...ParamLayer) (internal map[string]ParamSpec, exposed map[string]ParamSpec) {
	internal = make(map[string]ParamSpec)
	for _, layer := range layers {
		for k, v := range layer {
			internal[k] = v
		}
	}
	exposed = make(map[string]ParamSpec)
	for k, v := range internal {
		if v.Exposed {
			exposed[k] = v
		}
	}
	return internal, exposed
}

// ParamSet is a worker's live, mutable parameter record: the internal map
// (complete set used by the worker's algorithm) and the exposed subset
// (visible to and mutable by the control plane). Both share keys with the
// internal superset (spec §3).
type ParamSet struct {
	mu       sync.RWMutex
	internal map[string]ParamSpec
	exposed  map[string]ParamSpec
}

func NewParamSet(internal, exposed map[string]ParamSpec) *ParamSet {
	return &ParamSet{internal: internal, exposed: exposed}
}

// Get reads a single internal value, for use by a worker's own algorithm.
func (p *ParamSet) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	spec, ok := p.internal[key]
	if !ok {
		return nil, false
	}
	return spec.Value, true
}

// Exposed returns a snapshot of the exposed map's current values, for
// GetProcesses (spec §4.7).
func (p *ParamSet) Exposed() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.exposed))
	for k, spec := range p.exposed {
		out[k] = spec.Value
	}
	return out
}

// IsExposed reports whether key is in the exposed set.
func (p *ParamSet) IsExposed(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.exposed[key]
	return ok
}

// Tentative builds a proposed internal view with the given changes applied,
// without mutating the live set, so that check_conflict (spec §4.2 step 2)
// can run against the "what if" state.
func (p *ParamSet) Tentative(changes map[string]any) map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.internal))
	for k, spec := range p.internal {
		out[k] = spec.Value
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}

// Changed returns the subset of changes whose value actually differs from
// the current one, per spec §4.2 step 3 ("For each key whose value
// actually changes...").
func (p *ParamSet) Changed(changes map[string]any) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var changed []string
	for k, v := range changes {
		if spec, ok := p.internal[k]; !ok || spec.Value != v {
			changed = append(changed, k)
		}
	}
	return changed
}

// Apply atomically updates both the exposed map and the internal map with
// every key in changes (spec §4.2 step 4: "all-or-nothing and
// consistent"). Callers must have already run check_conflict and any
// prepare_setting_change hooks.
func (p *ParamSet) Apply(changes map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range changes {
		if spec, ok := p.internal[k]; ok {
			spec.Value = v
			p.internal[k] = spec
		}
		if spec, ok := p.exposed[k]; ok {
			spec.Value = v
			p.exposed[k] = spec
		}
	}
}
