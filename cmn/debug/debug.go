// Package debug provides cheap assertions, gated by the Enabled switch,
// used on hot paths throughout the cluster runtime.
package debug

import "fmt"

// Enabled turns every assertion in this package on; it is off by default.
// It is a plain var (rather than a const) so code and tests can toggle it;
// while it is false the helpers return without checking anything.
var Enabled = false

func Assert(cond bool, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
}

func Assertf(cond bool, format string, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf("assertion failed: "+format, args...))
}

func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(err)
}

func Func(f func()) {
	if Enabled {
		f()
	}
}
