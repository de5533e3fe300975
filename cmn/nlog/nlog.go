// Package nlog is argussight's own logger: buffered, timestamped,
// severity-leveled, with optional file output and size-based rotation.
/*
 * Copyright (c) 2024, argussight authors.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChar = "IWE"

// MaxSize is the per-file size threshold that triggers rotation.
var MaxSize int64 = 4 * 1024 * 1024

type logger struct {
	mu      sync.Mutex
	w       *bufio.Writer
	file    *os.File
	written int64
	last    atomic.Int64
	sev     severity
}

var (
	toStderr     bool
	alsoToStderr bool
	logDir       string
	title        string
	role         = "argusd"

	loggers       [3]*logger
	onceInitFiles sync.Once
	mw            sync.Mutex // guards loggers[*].file creation
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

// SetLogDirRole sets the directory log files are written under and the
// role name embedded in log file names (analogous to a daemon's kind).
func SetLogDirRole(dir, r string) { logDir, role = dir, r }

func SetTitle(s string) { title = s }

func initFiles() {
	for s := sevInfo; s <= sevErr; s++ {
		l := &logger{sev: s}
		l.w = bufio.NewWriterSize(io(nil), 64*1024)
		loggers[s] = l
	}
}

// io returns os.Stderr as a placeholder sink until the first real file is
// opened lazily on first write (or never, if -logtostderr is set).
func io(_ *os.File) *os.File { return os.Stderr }

func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }

func log(sev severity, depth int, format string, args ...any) {
	onceInitFiles.Do(initFiles)

	line := formatLine(sev, depth+1, format, args...)

	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	if alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}

	l := loggers[sev]
	l.mu.Lock()
	l.writeLocked(line)
	l.mu.Unlock()

	// warnings/errors are additionally appended to the info stream so a
	// single tail of the info log carries everything
	if sev != sevInfo {
		info := loggers[sevInfo]
		info.mu.Lock()
		info.writeLocked(line)
		info.mu.Unlock()
	}
}

func (l *logger) writeLocked(line string) {
	if l.file == nil && logDir != "" {
		l.openLocked()
	}
	if l.file == nil {
		return
	}
	n, _ := l.w.WriteString(line)
	l.written += int64(n)
	l.last.Store(time.Now().UnixNano())
	if l.written >= MaxSize {
		l.rotateLocked()
	}
}

func (l *logger) openLocked() {
	name, _ := logName(sevChar[l.sev:l.sev+1], time.Now())
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	l.file = f
	l.w = bufio.NewWriterSize(f, 64*1024)
	fmt.Fprintf(l.w, "Started up at %s, %s for %s/%s\n", time.Now().Format("2006/01/02 15:04:05"),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if title != "" {
		l.w.WriteString(title + "\n")
	}
}

func (l *logger) rotateLocked() {
	if l.w != nil {
		l.w.Flush()
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	l.written = 0
	l.openLocked()
}

func logName(tag string, t time.Time) (name, link string) {
	host, _ := os.Hostname()
	name = fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d",
		role, host, tag, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), os.Getpid())
	return name, role + "." + tag
}

func formatLine(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 2); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	return b.String()
}

// Flush flushes all buffered log output; if exit is true, the underlying
// files are also synced and closed (used on fatal-error / shutdown paths).
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	for _, l := range loggers {
		if l == nil {
			continue
		}
		l.mu.Lock()
		if l.w != nil {
			l.w.Flush()
		}
		if ex && l.file != nil {
			l.file.Sync()
			l.file.Close()
			l.file = nil
		}
		l.mu.Unlock()
	}
}

// Since returns the longest time elapsed since any one severity's logger
// last wrote.
func Since() time.Duration {
	now := time.Now().UnixNano()
	var maxAge int64
	for _, l := range loggers {
		if l == nil {
			continue
		}
		if age := now - l.last.Load(); age > maxAge {
			maxAge = age
		}
	}
	return time.Duration(maxAge)
}
