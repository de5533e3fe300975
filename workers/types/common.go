package types

import (
	"time"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/core"
)

// baseLayer is the generic configuration layer every worker type's chain
// starts from (spec SPEC_FULL §4.3: "base -> the concrete type's own
// file"). It carries the one setting shared by every type,
// command_timeout_ms. The runtime's command-poll timeout does not read it:
// that timeout is each descriptor's own CommandPollTimeout constant.
func baseLayer() core.ParamLayer {
	return core.ParamLayer{
		"command_timeout_ms": core.ParamSpec{Value: int64(200), Exposed: false},
	}
}

func constPoll(d time.Duration) func() int64 {
	return func() int64 { return int64(d) }
}

func errArgCount(command string, want, got int) error {
	return cos.NewErrValidation("command %q expects %d argument(s), got %d", command, want, got)
}

// toInt64 accepts any of the numeric shapes a parameter's Value may arrive
// as (an int64 when set from a ParamSpec default, a float64 when it
// round-tripped through JSON) and normalizes it to int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
