package worker

import "fmt"

// BatchError reports the item that aborted a bulk event. Items before Index
// were persisted, the rest were not.
type BatchError struct {
	Event     string
	AccountID string
	Index     int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s for %s: item %d: %v", e.Event, e.AccountID, e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
