package guard

import "reflect"

// Comparable reports whether v can be compared with == without panicking. Handlers are
// registered by identity, so a value of a slice, map or func type can never be found again.
func Comparable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}
