package common

import "errors"

var (
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrCooldownActive = errors.New("operation in cooldown period")
)

// AbuseConfig defines the sliding-window limits enforced per caller address.
// Zero values disable the corresponding check.
type AbuseConfig struct {
	MaxOperations  uint32
	WindowSize     uint64
	CooldownPeriod uint64
}

// DefaultAbuseConfig returns the limits applied until an admin overrides them.
func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{
		MaxOperations:  10,
		WindowSize:     3600,
		CooldownPeriod: 60,
	}
}

// AbuseState captures the current usage counters for one caller address.
type AbuseState struct {
	OperationCount uint32
	WindowStart    uint64
	LastOperation  uint64
}

// CheckRateLimit verifies whether one more operation fits within the
// configured limits. The returned AbuseState reflects the updated counters
// when the operation is allowed; on denial the previous state is returned
// unchanged so callers persist nothing.
func CheckRateLimit(cfg AbuseConfig, now uint64, prev AbuseState) (AbuseState, error) {
	if cfg.CooldownPeriod > 0 && prev.LastOperation > 0 && now < prev.LastOperation+cfg.CooldownPeriod {
		return prev, ErrCooldownActive
	}
	next := prev
	if now >= prev.WindowStart+cfg.WindowSize {
		next.WindowStart = now
		next.OperationCount = 1
	} else {
		if cfg.MaxOperations > 0 && prev.OperationCount >= cfg.MaxOperations {
			return prev, ErrRateLimited
		}
		next.OperationCount++
	}
	next.LastOperation = now
	return next, nil
}
