// Package status holds the two state machines of the client core: the
// per-message lifecycle and the process-wide bootstrap phase.
package status

// Message is a message lifecycle status.
type Message string

const (
	// Sending: accepted locally, not yet confirmed by the relay.
	Sending Message = "sending"
	// WaitingForInternet: send attempted while the relay is unreachable.
	WaitingForInternet Message = "waiting_for_internet"
	// Processing: the relay confirmed an AI task was initiated for this message.
	Processing Message = "processing"
	// Streaming: the first content chunk of the answer has arrived.
	Streaming Message = "streaming"
	// Synced: terminal. Final chunk seen, or the assistant started responding.
	Synced Message = "synced"
)

// rank orders statuses along the lifecycle. WaitingForInternet shares
// Sending's rank: the side branch returns to Sending on reconnect, and
// neither may overwrite a later status.
var rank = map[Message]int{
	Sending:            0,
	WaitingForInternet: 0,
	Processing:         1,
	Streaming:          2,
	Synced:             3,
}

// Rank returns the lifecycle position of s, or -1 for an unknown status.
func Rank(s Message) int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether s is a known status.
func Valid(s Message) bool {
	_, ok := rank[s]
	return ok
}

// CanAdvance reports whether writing "to" over current "from" is allowed.
// A write never moves a message backward; callers re-read the persisted
// status immediately before writing and discard regressions.
func CanAdvance(from, to Message) bool {
	rf, tf := Rank(from), Rank(to)
	if rf < 0 || tf < 0 {
		return false
	}
	if tf > rf {
		return true
	}
	// Same rank: only the sending <-> waiting_for_internet branch may toggle.
	if tf == rf && rf == 0 && from != to {
		return true
	}
	return false
}

// Merge returns the status that should be persisted given the stored and the
// incoming status: the incoming one when it advances, otherwise the stored one.
func Merge(stored, incoming Message) Message {
	if CanAdvance(stored, incoming) {
		return incoming
	}
	return stored
}
