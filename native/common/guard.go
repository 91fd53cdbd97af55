package common

import "errors"

// ErrReentrancy is returned when a mutating entry point is re-entered before
// the current invocation completes.
var ErrReentrancy = errors.New("reentrant call rejected")

// ReentrancyGuard is a per-instance exclusion flag protecting mutating entry
// points. The flag is true only for the duration of one call: Enter sets it
// and hands back a release closure the caller must defer, so the guard clears
// on every exit path including error returns.
//
// The guard protects against re-entry through external transfer hooks, not
// against thread-level concurrency; the host serialises invocations.
type ReentrancyGuard struct {
	locked bool
}

// Enter acquires the guard. It fails with ErrReentrancy when the guard is
// already held.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g.locked {
		return nil, ErrReentrancy
	}
	g.locked = true
	return func() { g.locked = false }, nil
}

// Locked reports whether a call is currently inside the guard.
func (g *ReentrancyGuard) Locked() bool {
	return g.locked
}
