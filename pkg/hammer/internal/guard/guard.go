// Package guard runs extension code and turns its panics into errors.
package guard

import (
	"github.com/rotisserie/eris"
)

// Call runs fn and returns its error. A panic inside fn is recovered and returned as an
// error carrying the stack of the panicking goroutine.
func Call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = eris.Wrap(rerr, "recovered from panic")
				return
			}
			err = eris.Errorf("recovered from panic: %v", r)
		}
	}()
	return fn()
}

// Run is Call for functions that do not return an error.
func Run(fn func()) error {
	return Call(func() error {
		fn()
		return nil
	})
}
