package reminder

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"hydrobot/internal/transport"
)

var (
	// ErrFlowExpired is returned for a choice on a flow that timed out, was
	// already resolved, or never existed.
	ErrFlowExpired  = errors.New("registration flow expired")
	ErrNotFlowOwner = errors.New("registration flow belongs to another user")
)

type FlowState int

const (
	AwaitingChoice FlowState = iota
	Resolved
	TimedOut
)

func (s FlowState) String() string {
	switch s {
	case AwaitingChoice:
		return "awaiting_choice"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Flow is one pending "pick your frequency" prompt.
type Flow struct {
	Token       string
	UserID      int64
	DisplayName string
	Prompt      transport.MessageRef
	OpenedAt    time.Time
	State       FlowState
}

type flowEntry struct {
	Flow
	timer *time.Timer
}

// Flows tracks open registration flows. A flow leaves AwaitingChoice exactly
// once: either a choice resolves it or the timeout abandons it.
type Flows struct {
	timeout   time.Duration
	onTimeout func(Flow)
	newToken  func() string

	mu    sync.Mutex
	flows map[string]*flowEntry
}

// NewFlows creates a tracker; onTimeout runs on its own goroutine for every
// abandoned flow.
func NewFlows(timeout time.Duration, onTimeout func(Flow)) *Flows {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Flows{
		timeout:   timeout,
		onTimeout: onTimeout,
		newToken:  uuid.NewString,
		flows:     map[string]*flowEntry{},
	}
}

// Open starts a flow for userID and arms its timeout.
func (m *Flows) Open(userID int64, displayName string) Flow {
	e := &flowEntry{Flow: Flow{
		Token:       m.newToken(),
		UserID:      userID,
		DisplayName: displayName,
		OpenedAt:    time.Now(),
		State:       AwaitingChoice,
	}}
	m.mu.Lock()
	m.flows[e.Token] = e
	e.timer = time.AfterFunc(m.timeout, func() { m.expire(e.Token) })
	m.mu.Unlock()
	return e.Flow
}

// SetPrompt records the message carrying the choice buttons so a timeout can
// edit it.
func (m *Flows) SetPrompt(token string, ref transport.MessageRef) {
	m.mu.Lock()
	if e, ok := m.flows[token]; ok {
		e.Prompt = ref
	}
	m.mu.Unlock()
}

// Resolve completes the flow for a choice made by userID.
func (m *Flows) Resolve(token string, userID int64) (Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.flows[token]
	if !ok || e.State != AwaitingChoice {
		return Flow{}, ErrFlowExpired
	}
	if e.UserID != userID {
		return Flow{}, ErrNotFlowOwner
	}
	e.timer.Stop()
	e.State = Resolved
	delete(m.flows, token)
	return e.Flow, nil
}

// Pending is the number of flows awaiting a choice.
func (m *Flows) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flows)
}

// Close disarms every timer without firing onTimeout.
func (m *Flows) Close() {
	m.mu.Lock()
	for token, e := range m.flows {
		e.timer.Stop()
		delete(m.flows, token)
	}
	m.mu.Unlock()
}

func (m *Flows) expire(token string) {
	m.mu.Lock()
	e, ok := m.flows[token]
	if !ok || e.State != AwaitingChoice {
		m.mu.Unlock()
		return
	}
	e.State = TimedOut
	delete(m.flows, token)
	f := e.Flow
	m.mu.Unlock()

	if m.onTimeout != nil {
		m.onTimeout(f)
	}
}
