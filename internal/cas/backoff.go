package cas

import (
	"fmt"
	"time"
)

// BackoffConfig governs the spacing of remote RPC retries.
type BackoffConfig struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// NewBackoffConfig validates and returns a backoff policy. Initial must not
// exceed Max and Multiplier must be at least 1.0.
func NewBackoffConfig(initial time.Duration, multiplier float64, max time.Duration) (BackoffConfig, error) {
	if initial > max {
		return BackoffConfig{}, fmt.Errorf("backoff initial delay %v exceeds max delay %v", initial, max)
	}
	if multiplier < 1.0 {
		return BackoffConfig{}, fmt.Errorf("backoff multiplier %v is less than 1.0", multiplier)
	}
	return BackoffConfig{Initial: initial, Multiplier: multiplier, Max: max}, nil
}

// DefaultBackoff is the store's conservative default retry spacing. The
// retry count is caller-configured but the spacing is fixed.
func DefaultBackoff() BackoffConfig {
	cfg, err := NewBackoffConfig(10*time.Millisecond, 1.0, 10*time.Millisecond)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Delay returns the wait before retry attempt n (0-based: Delay(0) spaces
// the first retry).
func (b BackoffConfig) Delay(n int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < n; i++ {
		d *= b.Multiplier
		if d >= float64(b.Max) {
			return b.Max
		}
	}
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
