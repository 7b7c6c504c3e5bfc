package rwlock

import (
	"context"
	"math"
	"time"
)

// Deadline bounds how long a TryLock call may block.
//
// The zero Deadline has already expired, so passing it makes a TryLock call
// non-blocking. Forever() never expires.
type Deadline struct {
	t       time.Time
	forever bool
}

// Forever returns a Deadline that never expires.
func Forever() Deadline {
	return Deadline{forever: true}
}

// After returns a Deadline d from now. A negative d means Forever, and zero
// means already expired.
func After(d time.Duration) Deadline {
	if d < 0 {
		return Forever()
	}
	return Deadline{t: time.Now().Add(d)}
}

// At returns a Deadline that expires at t.
func At(t time.Time) Deadline {
	return Deadline{t: t}
}

// deadlineOf returns the deadline of ctx, or Forever if it has none.
func deadlineOf(ctx context.Context) Deadline {
	if t, ok := ctx.Deadline(); ok {
		return At(t)
	}
	return Forever()
}

// IsForever reports whether d never expires.
func (d Deadline) IsForever() bool {
	return d.forever
}

// HasExpired reports whether d is in the past.
func (d Deadline) HasExpired() bool {
	return !d.forever && !time.Now().Before(d.t)
}

// Remaining returns the time left until d, zero once expired, and the
// largest Duration for Forever.
func (d Deadline) Remaining() time.Duration {
	if d.forever {
		return math.MaxInt64
	}
	return max(time.Until(d.t), 0)
}

// Time returns the absolute expiry time. It is the zero Time for Forever.
func (d Deadline) Time() time.Time {
	return d.t
}
