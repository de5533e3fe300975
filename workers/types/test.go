// Package types holds the concrete worker-type catalog: the compiled-in
// Behavior implementations and their static TypeDescriptors, replacing the
// original's dynamically-imported worker classes (spec §4.8/§9).
/*
 * Copyright (c) 2024, argussight authors.
 */
package types

import (
	"time"

	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/workers"
)

// testBehavior is the trivial worker used by spec §8 scenario 1 ("Happy
// dispatch") and grounded directly in original_source's `Test` class: its
// only command, `print`, writes its argument to the log and sleeps briefly
// to make its effect observable to a concurrent caller.
type testBehavior struct{}

func newTest(_ *core.ParamSet, _ []string, _ workers.Deps) (workers.Behavior, error) {
	return &testBehavior{}, nil
}

func (*testBehavior) ProcessFrame(core.NormalizedFrame) {}
func (*testBehavior) CheckConflict(map[string]any) error { return nil }
func (*testBehavior) PrepareSettingChange(string) error   { return nil }
func (*testBehavior) Close()                              {}

func (t *testBehavior) Commands() map[string]workers.CommandHandler {
	return map[string]workers.CommandHandler{
		"print": t.print,
	}
}

func (*testBehavior) print(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errArgCount("print", 1, len(args))
	}
	text, _ := args[0].(string)
	nlog.Infof("test worker: %s", text)
	time.Sleep(2 * time.Second)
	return map[string]bool{"ok": true}, nil
}

// TestDescriptor is the static catalog entry for the `test` worker type.
var TestDescriptor = workers.TypeDescriptor{
	TypeName:   "test",
	Accessible: true,
	InitArgs:   nil,
	Commands: []workers.CommandDescriptor{
		{Name: "print", ArgNames: []string{"text"}},
	},
	CommandPollTimeout: constPoll(200 * time.Millisecond),
	New:                newTest,
	ParamLayers: func() []core.ParamLayer {
		return []core.ParamLayer{baseLayer()}
	},
}
