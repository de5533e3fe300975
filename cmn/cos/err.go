// Package cos provides common low-level types, typed errors and small
// utilities shared by every other package in this module.
/*
 * Copyright (c) 2024, argussight authors.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	ratomic "sync/atomic"

	"github.com/walesch-yan/argussight/cmn/nlog"
)

type (
	// ErrNotFound is returned by registry lookups; Suggestion is filled in
	// when an edit-distance match was found among known names (spec §4.4/§7).
	ErrNotFound struct {
		what       string
		Suggestion string
	}

	// ErrExists signals a uniqueness violation (duplicate worker name).
	ErrExists struct {
		what string
	}

	// ErrValidation covers synchronous, non-disruptive rejections: unknown
	// worker type, unknown command, disallowed settings key, restricted
	// access from an external caller.
	ErrValidation struct {
		msg string
	}

	// ErrResourceExhausted covers recoverable resource-exhaustion failures:
	// no free stream port, a full per-worker command FIFO.
	ErrResourceExhausted struct {
		msg string
	}

	// ErrDeadline covers the dispatcher's bounded-wait failures:
	// no-reply-in-time, worker-no-longer-alive, worker-busy. A command
	// that expires in the queue is dropped without an error of its own;
	// its caller sees worker-busy once its wait runs out.
	ErrDeadline struct {
		msg string
		// Fatal, when true, means the dispatcher must also terminate the
		// worker (the "no reply in time" case).
		Fatal bool
	}

	// Errs accumulates up to a small number of distinct errors, e.g. while
	// terminating a batch of workers where some may fail independently.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

func NewErrNotFound(what, suggestion string) *ErrNotFound {
	return &ErrNotFound{what: what, Suggestion: suggestion}
}

func (e *ErrNotFound) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s does not exist (did you mean %q?)", e.what, e.Suggestion)
	}
	return e.what + " does not exist"
}

func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func NewErrExists(what string) *ErrExists { return &ErrExists{what: what} }
func (e *ErrExists) Error() string        { return e.what + " already exists" }
func IsErrExists(err error) bool {
	var e *ErrExists
	return errors.As(err, &e)
}

func NewErrValidation(format string, a ...any) *ErrValidation {
	return &ErrValidation{msg: fmt.Sprintf(format, a...)}
}
func (e *ErrValidation) Error() string { return e.msg }
func IsErrValidation(err error) bool {
	var e *ErrValidation
	return errors.As(err, &e)
}

func NewErrResourceExhausted(format string, a ...any) *ErrResourceExhausted {
	return &ErrResourceExhausted{msg: fmt.Sprintf(format, a...)}
}
func (e *ErrResourceExhausted) Error() string { return e.msg }
func IsErrResourceExhausted(err error) bool {
	var e *ErrResourceExhausted
	return errors.As(err, &e)
}

func NewErrDeadline(fatal bool, format string, a ...any) *ErrDeadline {
	return &ErrDeadline{msg: fmt.Sprintf(format, a...), Fatal: fatal}
}
func (e *ErrDeadline) Error() string { return e.msg }
func IsErrDeadline(err error) bool {
	var e *ErrDeadline
	return errors.As(err, &e)
}

// Errs

const maxErrs = 4

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}

//
// abnormal termination
//

const fatalPrefix = "FATAL ERROR: "

// ExitLogf logs a fatal error (if logging has been initialized) and exits
// the process with a non-zero status, per the CLI contract in spec §6.
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
