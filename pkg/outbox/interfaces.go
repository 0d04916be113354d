package outbox

import "context"

// Dispatcher delivers a claimed entry to its subscribers. A nil return marks
// the entry published; an error schedules a retry (or dead-letters the entry
// once attempts are exhausted). Implementations must tolerate redelivery of
// the same EventID.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}
