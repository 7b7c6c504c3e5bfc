package rwlock

import "github.com/cockroachdb/errors"

// ErrLockHeld is returned by Close when the lock is still held or waited
// for. The lock state is left in place.
var ErrLockHeld = errors.New("rwlock: close of held lock")

func wrapContextErr(err error, op string) error {
	return errors.Wrapf(err, "rwlock: %s", op)
}
