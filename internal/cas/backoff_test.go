package cas

import (
	"testing"
	"time"
)

func TestNewBackoffConfigValidation(t *testing.T) {
	tests := []struct {
		name       string
		initial    time.Duration
		multiplier float64
		max        time.Duration
		wantErr    bool
	}{
		{"valid", 10 * time.Millisecond, 1.0, 10 * time.Millisecond, false},
		{"growing", 5 * time.Millisecond, 2.0, time.Second, false},
		{"initial exceeds max", 20 * time.Millisecond, 1.0, 10 * time.Millisecond, true},
		{"multiplier below one", 10 * time.Millisecond, 0.5, time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBackoffConfig(tt.initial, tt.multiplier, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewBackoffConfig(%v, %v, %v) error = %v, wantErr %v",
					tt.initial, tt.multiplier, tt.max, err, tt.wantErr)
			}
		})
	}
}

// The store default is intentionally fixed even though the retry count is
// configurable; pin the literals.
func TestDefaultBackoffLiterals(t *testing.T) {
	cfg := DefaultBackoff()
	if cfg.Initial != 10*time.Millisecond {
		t.Errorf("default initial = %v, want 10ms", cfg.Initial)
	}
	if cfg.Multiplier != 1.0 {
		t.Errorf("default multiplier = %v, want 1.0", cfg.Multiplier)
	}
	if cfg.Max != 10*time.Millisecond {
		t.Errorf("default max = %v, want 10ms", cfg.Max)
	}
}

func TestDelayIsCappedAtMax(t *testing.T) {
	cfg, err := NewBackoffConfig(10*time.Millisecond, 2.0, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewBackoffConfig: %v", err)
	}

	if got := cfg.Delay(0); got != 10*time.Millisecond {
		t.Errorf("Delay(0) = %v, want 10ms", got)
	}
	if got := cfg.Delay(1); got != 20*time.Millisecond {
		t.Errorf("Delay(1) = %v, want 20ms", got)
	}
	if got := cfg.Delay(10); got != 50*time.Millisecond {
		t.Errorf("Delay(10) = %v, want capped 50ms", got)
	}
}
