package auth

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrStale marks a correctly signed request whose claimed timestamp is
	// outside the acceptable skew window. Reported as 403, distinct from a
	// signature failure.
	ErrStale = errors.New("stale_timestamp")

	// ErrBadTimestamp marks a timestamp header that is not unix seconds.
	ErrBadTimestamp = errors.New("invalid_timestamp")
)

// CheckFreshness validates the claimed unix-seconds timestamp against the
// server time. It runs after signature verification, so an attacker cannot
// probe the window without possessing a valid signature.
func CheckFreshness(claimed string, now time.Time, window time.Duration) error {
	ts, err := strconv.ParseInt(claimed, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}

	// Compare raw seconds. Converting the difference to a Duration would
	// overflow int64 nanoseconds for extreme claimed timestamps and let them
	// slip through as fresh.
	windowSec := int64(window / time.Second)
	if ts < now.Unix()-windowSec || ts > now.Unix()+windowSec {
		return ErrStale
	}
	return nil
}
