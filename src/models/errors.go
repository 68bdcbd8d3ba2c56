package models

import "errors"

// Domain-level sentinel errors for business logic
// These errors should not contain HTTP-specific information

var (
	// ErrSessionNotFound indicates that a session with the given ID does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrAssignmentNotFound indicates that an assignment with the given ID does not exist
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrTaskNotFound indicates that a task with the given ID does not exist
	ErrTaskNotFound = errors.New("task not found")

	// ErrAlreadyClosed indicates an attempt to close a session twice
	ErrAlreadyClosed = errors.New("session is already closed")

	// ErrNotActive indicates an attempt to cancel a session that is not active
	ErrNotActive = errors.New("session is not active")

	// ErrWorkerBusy indicates that the worker already holds an open session
	ErrWorkerBusy = errors.New("worker already has an open session")

	// ErrMergeUnavailable indicates that the merge gateway failed or is missing
	// inputs; conclusion proceeds without a merge
	ErrMergeUnavailable = errors.New("merge unavailable")

	// ErrNotConcluded indicates a merge was requested for an assignment that
	// has not concluded yet
	ErrNotConcluded = errors.New("assignment is not concluded")

	// ErrTxConflict indicates transient store contention (lock timeout or
	// serialization failure); the caller should retry the whole transaction
	ErrTxConflict = errors.New("transaction conflict")
)
