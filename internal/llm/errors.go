package llm

import "errors"

// Failure classes the Judge cares about: timeouts and transport errors both
// fail open, but are counted separately.
var (
	// ErrTimeout means the backend did not answer within the deadline.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrTransport means the backend was unreachable or returned a
	// non-success status.
	ErrTransport = errors.New("llm: transport failure")

	// ErrParse means the backend answered but no usable structure could be
	// extracted from its output.
	ErrParse = errors.New("llm: unparseable response")
)
