package tracepool

import "errors"

var (
	// ErrActivation is returned by a traced unit whose capture could not be
	// reactivated. The unit's delegate does not run.
	ErrActivation = errors.New("tracepool: activate trace context")

	// ErrCaptureUnsupported is returned when a backend reports detached
	// continuations but its trace context does not implement Capturer.
	ErrCaptureUnsupported = errors.New("tracepool: trace context cannot be captured")

	// ErrContinuationConsumed is returned when a one-shot traced unit runs a
	// second time, or runs after it was discarded.
	ErrContinuationConsumed = errors.New("tracepool: continuation already consumed")
)
