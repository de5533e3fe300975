//go:build debug

package debug

import "fmt"

func Assert(cond bool, args ...any) {
	if !cond {
		panic("assertion failed" + sprint(args))
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: " + err.Error())
	}
}

func AssertFunc(f func() bool, args ...any) {
	if !f() {
		panic("assertion failed" + sprint(args))
	}
}

func sprint(args []any) string {
	if len(args) == 0 {
		return ""
	}
	return fmt.Sprintf(": %v", args)
}
