//go:build !release

// Package assert checks internal invariants. Checks panic in development builds and compile
// to nothing when built with the release tag.
package assert

import "fmt"

func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Unreachable panics unconditionally. Use it in switch defaults over closed enums.
func Unreachable(format string, args ...any) {
	panic("unreachable: " + fmt.Sprintf(format, args...))
}
