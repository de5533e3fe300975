package workers

import (
	"github.com/walesch-yan/argussight/cmn/cos"
)

// handleSettings implements the universal built-in `settings` command
// (spec §4.2): reject unknown keys, tentatively merge and run the
// type-specific conflict check, run prepare_setting_change per actually
// changed key, then atomically apply. All-or-nothing.
func (rt *Runtime) handleSettings(args []any) (any, error) {
	if len(args) != 1 {
		return nil, cos.NewErrValidation("settings command expects exactly one argument (a settings map)")
	}
	changes, ok := args[0].(map[string]any)
	if !ok {
		return nil, cos.NewErrValidation("settings command argument must be a map[string]any")
	}

	for key := range changes {
		if !rt.Params.IsExposed(key) {
			return nil, cos.NewErrValidation("settings key %q is not an exposed parameter of worker type %q", key, rt.Type)
		}
	}

	tentative := rt.Params.Tentative(changes)
	if err := rt.Behavior.CheckConflict(tentative); err != nil {
		return nil, err
	}

	changed := rt.Params.Changed(changes)
	if len(changed) == 0 {
		// no-op second call to ChangeSettings(name, x) is observable as
		// such: nothing to prepare, nothing to apply (spec §8 round-trip).
		return map[string]bool{"ok": true}, nil
	}
	for _, key := range changed {
		if err := rt.Behavior.PrepareSettingChange(key); err != nil {
			return nil, err
		}
	}

	rt.Params.Apply(changes)
	return map[string]bool{"ok": true}, nil
}
