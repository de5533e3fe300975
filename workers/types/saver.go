package types

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/workers"
)

// saverBehavior buffers the last N frames in memory and can flush them to
// disk as individual JPEGs, a single encoded clip, or both. It flattens
// original_source's video_saver.py / video_recorder.py / stream_buffer.py
// family into the one worker type spec §9's design note calls for, and
// keeps that family's own concurrency idiom: saving to disk runs on a
// small bounded thread pool (size 5) so it never blocks frame intake
// (SPEC_FULL §5, grounded in video_saver.py's
// `concurrent.futures.ThreadPoolExecutor(max_workers=5)`).
type saverBehavior struct {
	mu         sync.Mutex
	buf        []core.NormalizedFrame
	maxLen     int
	saveFolder string
	recording  bool

	pool chan struct{} // bounded semaphore standing in for the thread pool
	wg   sync.WaitGroup
}

func newSaver(params *core.ParamSet, _ []string, _ workers.Deps) (workers.Behavior, error) {
	maxLen := 200
	if v, ok := params.Get("queue_max_length"); ok {
		if n, ok := v.(int64); ok {
			maxLen = int(n)
		}
	}
	folder := "./queue"
	if v, ok := params.Get("save_folder"); ok {
		if s, ok := v.(string); ok {
			folder = s
		}
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("saver: cannot create save folder %q: %w", folder, err)
	}
	return &saverBehavior{
		maxLen:     maxLen,
		saveFolder: folder,
		recording:  true,
		pool:       make(chan struct{}, 5),
	}, nil
}

func (s *saverBehavior) ProcessFrame(frame core.NormalizedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return
	}
	s.buf = append(s.buf, frame)
	if len(s.buf) > s.maxLen {
		s.buf = s.buf[len(s.buf)-s.maxLen:]
	}
}

func (*saverBehavior) CheckConflict(map[string]any) error { return nil }

func (s *saverBehavior) PrepareSettingChange(key string) error {
	if key == "save_format" {
		return nil
	}
	return nil
}

func (s *saverBehavior) Close() { s.wg.Wait() }

func (s *saverBehavior) Commands() map[string]workers.CommandHandler {
	return map[string]workers.CommandHandler{
		"save":            s.save,
		"start_recording": s.startRecording,
		"stop_recording":  s.stopRecording,
	}
}

func (s *saverBehavior) startRecording([]any) (any, error) {
	s.mu.Lock()
	s.recording = true
	s.mu.Unlock()
	return map[string]bool{"ok": true}, nil
}

func (s *saverBehavior) stopRecording([]any) (any, error) {
	s.mu.Lock()
	s.recording = false
	s.mu.Unlock()
	return map[string]bool{"ok": true}, nil
}

// save flushes the current buffer to disk. The snapshot+copy happens
// synchronously (so the caller's response reflects a consistent buffer),
// the (potentially slow) disk writes run on the bounded pool.
func (s *saverBehavior) save(args []any) (any, error) {
	format := "both"
	if len(args) == 1 {
		if f, ok := args[0].(string); ok {
			format = f
		}
	}
	s.mu.Lock()
	snapshot := make([]core.NormalizedFrame, len(s.buf))
	copy(snapshot, s.buf)
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return nil, cos.NewErrValidation("saver has no buffered frames to save")
	}

	s.pool <- struct{}{}
	s.wg.Add(1)
	go func() {
		defer func() { <-s.pool; s.wg.Done() }()
		if err := s.flush(snapshot, format); err != nil {
			nlog.Errorf("saver: flush failed: %v", err)
		}
	}()
	return map[string]bool{"ok": true}, nil
}

func (s *saverBehavior) flush(frames []core.NormalizedFrame, format string) error {
	first, last := frames[0], frames[len(frames)-1]
	if format == "frames" || format == "both" {
		dir := filepath.Join(s.saveFolder, fmt.Sprintf("frames_%s-%s", first.TimeStr, last.TimeStr))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, f := range frames {
			if err := saveFrameJPEG(f, filepath.Join(dir, "img"+f.TimeStr+".jpg")); err != nil {
				return err
			}
		}
	}
	if format == "video" || format == "both" {
		// Real clip encoding is the external, opaque concern the spec
		// excludes (spec §1); recorded here as one concatenated marker
		// file per clip so the on-disk contract (one artifact per save)
		// is still observable and testable.
		dir := filepath.Join(s.saveFolder, "videos")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("video_%s-%s.clip", first.TimeStr, last.TimeStr))
		return os.WriteFile(name, []byte(fmt.Sprintf("%d frames\n", len(frames))), 0o644)
	}
	return nil
}

func saveFrameJPEG(f core.NormalizedFrame, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	for px := 0; px < n && px*f.Channels+2 < len(f.Pixels); px++ {
		i := px * f.Channels
		o := px * 4
		img.Pix[o] = f.Pixels[i]
		img.Pix[o+1] = f.Pixels[i+1]
		img.Pix[o+2] = f.Pixels[i+2]
		img.Pix[o+3] = 0xff
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return jpeg.Encode(out, img, &jpeg.Options{Quality: 90})
}

// SaverDescriptor is the static catalog entry for the `saver` worker type.
var SaverDescriptor = workers.TypeDescriptor{
	TypeName:   "saver",
	Accessible: true,
	InitArgs:   nil,
	Commands: []workers.CommandDescriptor{
		{Name: "save", ArgNames: []string{"format"}},
		{Name: "start_recording"},
		{Name: "stop_recording"},
	},
	CommandPollTimeout: constPoll(40 * time.Millisecond),
	New:                newSaver,
	ParamLayers: func() []core.ParamLayer {
		return []core.ParamLayer{
			baseLayer(),
			core.ParamLayer{
				"queue_max_length": core.ParamSpec{Value: int64(200), Exposed: true},
				"save_folder":      core.ParamSpec{Value: "./queue", Exposed: true},
				"save_format":      core.ParamSpec{Value: "both", Exposed: true},
			},
		}
	},
}
