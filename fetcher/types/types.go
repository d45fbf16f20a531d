package types

import (
	"context"
	"errors"
	"time"
)

// ErrTransport marks a remote fetch that could not complete or returned an unrecognized status
var ErrTransport = errors.New("transport failure")

// Status classifies the result of a fetch
type Status int

const (
	// Failed covers transport errors, timeouts and unexpected statuses
	Failed Status = iota
	// NotModified means the remote confirmed the cached copy is current
	NotModified
	// Modified means new content is available in the payload
	Modified
)

func (s Status) String() string {
	switch s {
	case NotModified:
		return "not_modified"
	case Modified:
		return "modified"
	default:
		return "failed"
	}
}

// Hint carries what is known about the cached copy, used for conditional requests
type Hint struct {
	LastWrite time.Time
	ETag      string
}

// Outcome is the result of a single fetch
type Outcome struct {
	Status  Status
	Payload []byte
	ETag    string // Freshness token of the new payload, may be empty
	Err     error  // Set when Status is Failed
}

// FailedOutcome wraps err as a transport failure
func FailedOutcome(err error) Outcome {
	if !errors.Is(err, ErrTransport) {
		err = errors.Join(ErrTransport, err)
	}
	return Outcome{Status: Failed, Err: err}
}

// Fetcher performs a conditional remote fetch.
// A nil hint requests the resource unconditionally.
type Fetcher interface {
	Fetch(ctx context.Context, location string, hint *Hint) Outcome
}
