package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lcrispim/hush/internal/bus"
)

// Phase is a bootstrap phase of the sync engine.
type Phase string

const (
	// Uninitialized: nothing loaded yet.
	Uninitialized Phase = "UNINITIALIZED"
	// LocalReady: the local cache has been read and can be shown.
	LocalReady Phase = "LOCAL_READY"
	// Reconciled: the server's authoritative chat list has been merged in.
	Reconciled Phase = "RECONCILED"
	// FullSyncReady: derived artifacts that depend on full history (such as
	// recomputed new-chat suggestions) have arrived. Flicker-prone renders
	// gate on this phase.
	FullSyncReady Phase = "FULL_SYNC_READY"
)

// validPhaseTransitions defines allowed phase transitions. Logout resets to
// Uninitialized from anywhere.
var validPhaseTransitions = map[Phase][]Phase{
	Uninitialized: {LocalReady},
	LocalReady:    {Reconciled, Uninitialized},
	Reconciled:    {FullSyncReady, Uninitialized},
	FullSyncReady: {Uninitialized},
}

// PhaseMachine tracks and enforces bootstrap phase transitions.
type PhaseMachine struct {
	mu      sync.RWMutex
	current Phase
	bus     *bus.Bus
}

// NewPhaseMachine creates a phase machine starting in Uninitialized.
func NewPhaseMachine(b *bus.Bus) *PhaseMachine {
	return &PhaseMachine{
		current: Uninitialized,
		bus:     b,
	}
}

// Current returns the current phase.
func (m *PhaseMachine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AtLeast reports whether the current phase has reached p.
func (m *PhaseMachine) AtLeast(p Phase) bool {
	order := map[Phase]int{Uninitialized: 0, LocalReady: 1, Reconciled: 2, FullSyncReady: 3}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return order[m.current] >= order[p]
}

// Advance attempts to move to a new phase. Returns an error if the transition
// is invalid.
func (m *PhaseMachine) Advance(to Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validPhaseTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid phase transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "sync.phase_changed",
			Timestamp: time.Now(),
			Payload:   PhaseChange{From: from, To: to},
		})
	}
	return nil
}

// Reset returns the machine to Uninitialized (logout).
func (m *PhaseMachine) Reset() {
	m.mu.Lock()
	from := m.current
	m.current = Uninitialized
	m.mu.Unlock()
	if m.bus != nil && from != Uninitialized {
		m.bus.Publish(bus.Event{
			Kind:      "sync.phase_changed",
			Timestamp: time.Now(),
			Payload:   PhaseChange{From: from, To: Uninitialized},
		})
	}
}

// PhaseChange is the payload for phase change events.
type PhaseChange struct {
	From Phase
	To   Phase
}
