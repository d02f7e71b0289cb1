package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrompter struct {
	available bool
	err       error
	calls     int
}

func (f *fakePrompter) Prompt(reason string) error {
	f.calls++
	return f.err
}

func (f *fakePrompter) Available() bool { return f.available }

func TestGate_GracePeriod(t *testing.T) {
	p := &fakePrompter{available: true}
	g := NewGateWithPrompter(p, time.Minute)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	assert.False(t, g.Unlocked())
	require.NoError(t, g.Require("reveal"))
	require.NoError(t, g.Require("reveal"))
	assert.Equal(t, 1, p.calls, "second call falls inside the grace period")
	assert.Equal(t, time.Minute, g.Remaining())

	clock = clock.Add(2 * time.Minute)
	assert.False(t, g.Unlocked())
	assert.Zero(t, g.Remaining())
	require.NoError(t, g.Require("reveal"))
	assert.Equal(t, 2, p.calls)

	g.Lock()
	assert.False(t, g.Unlocked())
}

func TestGate_Failures(t *testing.T) {
	g := NewGateWithPrompter(&fakePrompter{}, 0)
	assert.ErrorIs(t, g.Require("x"), ErrUnavailable)
	assert.Equal(t, DefaultGracePeriod, g.grace)

	declined := errors.New("user cancelled")
	g = NewGateWithPrompter(&fakePrompter{available: true, err: declined}, time.Minute)
	assert.ErrorIs(t, g.Require("x"), declined)
	assert.False(t, g.Unlocked())
}
