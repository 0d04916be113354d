package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Table is the single outbox table shared by all modules. Business code
// never touches it directly; the Command Executor writes rows and the Relay
// drains them.
const Table = "outbox_entries"

// Entry statuses. An entry is created 'pending' in the same transaction as
// the business write, transitions to 'published' after successful dispatch,
// or to 'dead_letter' once retries are exhausted.
const (
	StatusPending    = "pending"
	StatusPublished  = "published"
	StatusDeadLetter = "dead_letter"
)

// Message is the unit enqueued into the outbox.
type Message struct {
	TenantID       uuid.UUID
	EventType      string
	EventID        uuid.UUID
	IdempotencyKey string
	Payload        json.RawMessage
}

// Meta is the stable dispatch metadata delivered alongside the payload.
// EventID is the consumer-side deduplication key: delivery is at-least-once.
type Meta struct {
	TenantID       uuid.UUID
	EventType      string
	EventID        uuid.UUID
	IdempotencyKey string
	OccurredAt     time.Time
	Sequence       int64
	Attempts       int
}

// DispatchedMessage is the unit delivered by Relay to a Dispatcher.
type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}
