package logsink

import (
	"errors"
	"fmt"
)

// Tag keys attached to reported failures.
const (
	TagModule  = "module"
	TagCommand = "command"
	TagEvent   = "event"
)

type taggedError struct {
	err   error
	key   string
	value string
}

// WithTag attaches key=value to err for exception sinks. A nil err stays nil.
func WithTag(err error, key, value string) error {
	if err == nil {
		return nil
	}
	return &taggedError{err: err, key: key, value: value}
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

// Format hands %+v to the wrapped error so eris.ToString still prints its trace.
func (e *taggedError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%+v", e.err)
		return
	}
	fmt.Fprint(s, e.err.Error())
}

// Tags collects the tags attached to err with WithTag. The outermost value of a key wins.
func Tags(err error) map[string]string {
	tags := map[string]string{}
	for err != nil {
		var t *taggedError
		if !errors.As(err, &t) {
			break
		}
		if _, ok := tags[t.key]; !ok {
			tags[t.key] = t.value
		}
		err = t.err
	}
	return tags
}
