package auth

import (
	"fmt"
	"sync"
	"time"
)

const (
	MinSessionDuration = 5 * time.Minute
	MaxSessionDuration = 24 * time.Hour
)

var errDurationRange = fmt.Errorf("%w: session duration must be between %d and %d seconds",
	ErrInvalidInput, int64(MinSessionDuration/time.Second), int64(MaxSessionDuration/time.Second))

// DurationFromSeconds converts a client-supplied lifetime, rejecting values
// outside the allowed window before any multiplication can overflow.
func DurationFromSeconds(secs int64) (time.Duration, error) {
	if secs < int64(MinSessionDuration/time.Second) || secs > int64(MaxSessionDuration/time.Second) {
		return 0, errDurationRange
	}
	return time.Duration(secs) * time.Second, nil
}

// SessionConfig holds the session token lifetime. Changes live in process
// memory only and reset to the configured default on restart.
type SessionConfig struct {
	mu       sync.RWMutex
	duration time.Duration
}

func NewSessionConfig(d time.Duration) *SessionConfig {
	return &SessionConfig{duration: d}
}

func (c *SessionConfig) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duration
}

func (c *SessionConfig) SetDuration(d time.Duration) error {
	if d < MinSessionDuration || d > MaxSessionDuration {
		return errDurationRange
	}
	c.mu.Lock()
	c.duration = d
	c.mu.Unlock()
	return nil
}
