package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed credential checks to a common duration so that
// an unknown account and a wrong code take about as long to reject.
type FailureDelay struct {
	Base   time.Duration
	Jitter time.Duration
}

// NewFailureDelay returns nil when base and jitter are both zero, which
// disables the delay.
func NewFailureDelay(base, jitter time.Duration) *FailureDelay {
	if base <= 0 && jitter <= 0 {
		return nil
	}
	return &FailureDelay{Base: base, Jitter: jitter}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

// target picks this call's total duration: Base plus a random share of Jitter.
func (d *FailureDelay) target() time.Duration {
	total := d.Base
	if d.Jitter > 0 {
		if n, err := cryptoRandIntn(int64(d.Jitter)); err == nil {
			total += time.Duration(n)
		}
	}
	return total
}

// WaitFrom sleeps until at least the target duration has passed since
// start, or until ctx is done. A nil FailureDelay returns immediately.
func (d *FailureDelay) WaitFrom(ctx context.Context, start time.Time) {
	if d == nil {
		return
	}

	remaining := d.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
