package bus

import "time"

// Event is a domain event published on the bus. Kind is a dot-separated
// name whose leading segment acts as a namespace, e.g. "relay.event",
// "chat.updated", "sync.phase_changed". Subscribers filter by prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
