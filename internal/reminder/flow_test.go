package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrobot/internal/transport"
)

func TestFlowResolve(t *testing.T) {
	m := NewFlows(time.Minute, func(Flow) { t.Error("unexpected timeout") })
	defer m.Close()

	f := m.Open(42, "ana")
	assert.Equal(t, AwaitingChoice, f.State)
	assert.NotEmpty(t, f.Token)
	m.SetPrompt(f.Token, transport.MessageRef{ChatID: 42, MessageID: 9})

	_, err := m.Resolve(f.Token, 43)
	assert.ErrorIs(t, err, ErrNotFlowOwner)

	got, err := m.Resolve(f.Token, 42)
	require.NoError(t, err)
	assert.Equal(t, Resolved, got.State)
	assert.Equal(t, 9, got.Prompt.MessageID)
	assert.Zero(t, m.Pending())

	_, err = m.Resolve(f.Token, 42)
	assert.ErrorIs(t, err, ErrFlowExpired)
}

func TestFlowTimeout(t *testing.T) {
	expired := make(chan Flow, 1)
	m := NewFlows(20*time.Millisecond, func(f Flow) { expired <- f })
	defer m.Close()

	f := m.Open(7, "x")
	select {
	case got := <-expired:
		assert.Equal(t, f.Token, got.Token)
		assert.Equal(t, TimedOut, got.State)
	case <-time.After(2 * time.Second):
		t.Fatal("flow did not time out")
	}

	_, err := m.Resolve(f.Token, 7)
	assert.ErrorIs(t, err, ErrFlowExpired)
	assert.Zero(t, m.Pending())
}

func TestFlowUnknownToken(t *testing.T) {
	m := NewFlows(0, nil)
	_, err := m.Resolve("missing", 1)
	assert.ErrorIs(t, err, ErrFlowExpired)
}

func TestFlowCloseDisarms(t *testing.T) {
	fired := make(chan struct{}, 1)
	m := NewFlows(20*time.Millisecond, func(Flow) { fired <- struct{}{} })
	m.Open(1, "a")
	m.Close()

	select {
	case <-fired:
		t.Fatal("timeout fired after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFlowStateString(t *testing.T) {
	assert.Equal(t, "awaiting_choice", AwaitingChoice.String())
	assert.Equal(t, "timed_out", TimedOut.String())
}
