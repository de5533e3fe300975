package types

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/walesch-yan/argussight/bus"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/workers"
)

// flowBehavior is the streaming, StreamCapable worker type: on every frame
// it sums each pixel's per-channel difference from the previous frame (a
// stand-in for original_source's optical_flow.py, whose actual flow
// algorithm is the external, opaque computation spec §1 excludes) and
// republishes a black-and-white mask, white where that sum reaches the
// sensitivity threshold, on its own stream channel.
// `pause`/`resume` gate whether ProcessFrame does any work at all, grounded
// in original_source's motion_detector.py pause/resume pair.
type flowBehavior struct {
	mu          sync.Mutex
	prev        []byte
	width       int
	height      int
	paused      bool
	sensitivity int64

	streamChannel string
	publish       func(channel string, payload []byte) error
}

func newFlow(params *core.ParamSet, _ []string, deps workers.Deps) (workers.Behavior, error) {
	sensitivity := int64(10)
	if v, ok := params.Get("sensitivity"); ok {
		if n, ok := toInt64(v); ok {
			sensitivity = n
		}
	}
	return &flowBehavior{
		sensitivity:   sensitivity,
		streamChannel: deps.StreamID,
		publish:       deps.Publish,
	}, nil
}

func (f *flowBehavior) ProcessFrame(frame core.NormalizedFrame) {
	f.mu.Lock()
	paused := f.paused
	threshold := f.sensitivity
	prev := f.prev
	f.mu.Unlock()
	if paused {
		return
	}

	vis := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	if prev != nil && len(prev) == len(frame.Pixels) {
		n := frame.Width * frame.Height
		for px := 0; px < n; px++ {
			i := px * frame.Channels
			if i+2 >= len(frame.Pixels) {
				break
			}
			delta := absDiff(frame.Pixels[i], prev[i]) +
				absDiff(frame.Pixels[i+1], prev[i+1]) +
				absDiff(frame.Pixels[i+2], prev[i+2])
			v := uint8(0)
			if int64(delta) >= threshold {
				v = 255
			}
			vis.SetGray(px%frame.Width, px/frame.Width, color.Gray{Y: v})
		}
	}

	f.mu.Lock()
	f.prev = frame.Pixels
	f.width, f.height = frame.Width, frame.Height
	f.mu.Unlock()

	if f.publish == nil || f.streamChannel == "" {
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, vis, &jpeg.Options{Quality: 80}); err != nil {
		nlog.Errorf("flow: encode visualization: %v", err)
		return
	}
	payload := bus.EncodeStreamPayload(buf.Bytes(), [3]int{frame.Width, frame.Height, 1})
	if err := f.publish(f.streamChannel, payload); err != nil {
		nlog.Errorf("flow: publish derived stream: %v", err)
	}
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func (*flowBehavior) CheckConflict(map[string]any) error { return nil }

// PrepareSettingChange drops the previous-frame baseline whenever
// sensitivity changes, so the new threshold never compares against a frame
// captured under the old one.
func (f *flowBehavior) PrepareSettingChange(key string) error {
	if key == "sensitivity" {
		f.mu.Lock()
		f.prev = nil
		f.mu.Unlock()
	}
	return nil
}

func (f *flowBehavior) Close() {}

func (f *flowBehavior) Commands() map[string]workers.CommandHandler {
	return map[string]workers.CommandHandler{
		"pause":  f.pause,
		"resume": f.resume,
	}
}

func (f *flowBehavior) pause([]any) (any, error) {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
	return map[string]bool{"ok": true}, nil
}

func (f *flowBehavior) resume([]any) (any, error) {
	f.mu.Lock()
	f.paused = false
	f.prev = nil
	f.mu.Unlock()
	return map[string]bool{"ok": true}, nil
}

// FlowDescriptor is the static catalog entry for the `flow` worker type:
// restricted (spec §4.6's accessible/restricted split exercised by a
// StreamCapable type), so it is only ever started from the static
// configuration or via protected-restart.
var FlowDescriptor = workers.TypeDescriptor{
	TypeName:      "flow",
	Accessible:    false,
	StreamCapable: true,
	InitArgs:      nil,
	Format:        core.FormatRGB,
	Commands: []workers.CommandDescriptor{
		{Name: "pause"},
		{Name: "resume"},
	},
	CommandPollTimeout: constPoll(50 * time.Millisecond),
	New:                newFlow,
	ParamLayers: func() []core.ParamLayer {
		return []core.ParamLayer{
			baseLayer(),
			core.ParamLayer{
				"sensitivity": core.ParamSpec{Value: int64(10), Exposed: true},
			},
		}
	},
}
