package bus

import "time"

// Event is a domain event published on the bus. Kind is dot-namespaced, for
// example "sync.progress" or "status.changed".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
