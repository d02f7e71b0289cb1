// Package auth asks the operating system to confirm the user before stored
// secrets leave the profile store in plaintext.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultGracePeriod is how long one confirmation unlocks secrets.
const DefaultGracePeriod = 5 * time.Minute

// ErrUnavailable is returned when no OS prompt exists on this machine.
var ErrUnavailable = errors.New("OS authentication is not available on this system")

// Prompter shows an OS-level confirmation (Touch ID, polkit, Windows
// credential prompt). reason is displayed to the user.
type Prompter interface {
	Prompt(reason string) error
	Available() bool
}

// Gate remembers a successful confirmation for a grace period.
type Gate struct {
	mu       sync.Mutex
	prompter Prompter
	grace    time.Duration
	until    time.Time
	now      func() time.Time
}

// NewGate returns a gate backed by the platform prompter.
func NewGate(grace time.Duration) *Gate {
	return NewGateWithPrompter(platformPrompter(), grace)
}

// NewGateWithPrompter returns a gate backed by p.
func NewGateWithPrompter(p Prompter, grace time.Duration) *Gate {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Gate{prompter: p, grace: grace, now: time.Now}
}

// Require prompts the user unless a previous confirmation is still valid.
func (g *Gate) Require(reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Before(g.until) {
		return nil
	}
	if !g.prompter.Available() {
		return ErrUnavailable
	}
	if err := g.prompter.Prompt(reason); err != nil {
		g.until = time.Time{}
		log.Warn().Err(err).Msg("OS authentication declined")
		return fmt.Errorf("authentication failed: %w", err)
	}
	g.until = now.Add(g.grace)
	return nil
}

// Unlocked reports whether a confirmation is still valid.
func (g *Gate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.until)
}

// Remaining returns the rest of the grace period, or 0.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d := g.until.Sub(g.now()); d > 0 {
		return d
	}
	return 0
}

// Lock forgets the last confirmation.
func (g *Gate) Lock() {
	g.mu.Lock()
	g.until = time.Time{}
	g.mu.Unlock()
}
