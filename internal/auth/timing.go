package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on successful login
}

// TimingDelay pads failed admin logins so that an unknown username, a wrong
// password and a guard denial all take about the same time
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a random number in [0, n)
func cryptoRandIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(randomBytes) % uint64(n)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if v, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(v) * time.Millisecond
		}
	}
	return delay
}

// Wait sleeps for baseDelay + randomDelay unless the operation succeeded
// and DelayOnSuccess is off
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps until at least the target delay has passed since startTime
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	targetDelay := td.target()
	if elapsed := time.Since(startTime); elapsed < targetDelay {
		time.Sleep(targetDelay - elapsed)
	}
}
