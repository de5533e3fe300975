//go:build !debug

// Package debug provides invariant-checking helpers that compile away to
// no-ops unless the binary is built with the `debug` build tag.
/*
 * Copyright (c) 2024, argussight authors.
 */
package debug

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool, _ ...any) {}
