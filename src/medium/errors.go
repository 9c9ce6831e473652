package medium

import "errors"

var (
	// ErrWaitTimeout is returned when no request bytes arrive within the
	// configured idle timeout.
	ErrWaitTimeout = errors.New("medium: timed out waiting for bytes")

	// ErrServerStopped is returned from a wait that was interrupted by a
	// stop request.
	ErrServerStopped = errors.New("medium: server stopped")

	// ErrTooManyConcurrentRequests is returned by GetRequest while another
	// request on the same medium has not finished. Stream mediums carry one
	// request at a time; wanting two is a bug in the caller, not a network
	// condition.
	ErrTooManyConcurrentRequests = errors.New("medium: a request is already in flight")

	// ErrWritingCompleted is returned when bytes are written to a request
	// whose write side was already finished.
	ErrWritingCompleted = errors.New("medium: request writing already completed")

	// ErrWritingNotComplete is returned when a response read is attempted
	// before the request write side was finished.
	ErrWritingNotComplete = errors.New("medium: request writing not complete")

	// ErrReadingCompleted is returned when a response read is attempted
	// after the read side was finished.
	ErrReadingCompleted = errors.New("medium: response reading already completed")
)
