// Package errors provides the structured error taxonomy used across workkit.
//
// Every failure the background-work subsystem can observe is classified by an
// ErrorCode and an ErrorCategory. Only INVALID_ARGUMENT (and CLOSED, after a
// service has been stopped) ever reaches a submitter synchronously; every other
// code is detected asynchronously, logged at the point of detection, and
// discarded.
//
// # Codes
//
//	INVALID_ARGUMENT    nil work item handed to Submit
//	CANCELLED           the process-wide context fired while waiting on the queue
//	EXECUTION_FAILED    a work item returned an error or panicked
//	ADMISSION_REJECTED  the admission gate is closed
//	DRAIN_TIMEOUT       the drain window elapsed with tasks still in flight
//
// # Usage
//
// Packages declare sentinels with New and callers match them with the standard
// library errors.Is, which compares by code:
//
//	var ErrInvalidItem = errors.New(errors.ErrCodeInvalidArgument, "work item is nil")
//
//	if stderrors.Is(err, queue.ErrInvalidItem) { ... }
//
// Wrap attaches context while keeping the code of the wrapped error:
//
//	err = errors.Wrap(ctx.Err(), "waiting for work")  // code CANCELLED
package errors
