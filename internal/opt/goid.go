package opt

import "github.com/petermattis/goid"

// CurrentID returns an identifier of the calling goroutine.
// It is never zero, so zero can be used as "no owner".
func CurrentID() int64 {
	return goid.Get()
}
