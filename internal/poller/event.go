package poller

import "time"

// EventType classifies poll cycle events.
type EventType string

const (
	EventCycleStarted   EventType = "cycle_started"
	EventCycleSkipped   EventType = "cycle_skipped"   // run lock was held
	EventCycleCompleted EventType = "cycle_completed" // all accounts settled
	EventAccountPolled  EventType = "account_polled"  // per-account summary
)

// Event carries a cycle or account outcome to observers (the websocket
// broadcaster). Status is set for account events only.
type Event struct {
	Type       EventType      `json:"type"`
	Time       time.Time      `json:"time"`
	Account    string         `json:"account,omitempty"`
	Status     *AccountStatus `json:"status,omitempty"`
	DurationMS int64          `json:"durationMs,omitempty"`
}

// EventSink receives poll events. Implementations must not block: the
// poller publishes from its cycle goroutines.
type EventSink interface {
	Publish(ev Event)
}
