package models

import "time"

// SessionState is the derived lifecycle state of a session. It is computed
// from timestamps and result presence, never stored.
type SessionState string

const (
	StateOpenActive       SessionState = "OPEN_ACTIVE"
	StateOpenExpired      SessionState = "OPEN_EXPIRED"
	StateClosedWithResult SessionState = "CLOSED_WITH_RESULT"
	StateClosedSkipped    SessionState = "CLOSED_SKIPPED"
	StateClosedExpired    SessionState = "CLOSED_EXPIRED"
)

// Session is one worker's time-boxed attempt at an assignment.
//
// StartTime, ExpirationDeadline, AssignmentID and WorkerID are immutable
// after creation. CloseTime transitions from nil to a timestamp exactly
// once; ResultRef is set at most once, at close time.
type Session struct {
	ID                 string     `json:"id"`
	AssignmentID       string     `json:"assignment_id"`
	WorkerID           string     `json:"worker_id"`
	StartTime          time.Time  `json:"start_time"`
	ExpirationDeadline time.Time  `json:"expiration_deadline"`
	CloseTime          *time.Time `json:"close_time,omitempty"`
	ResultRef          string     `json:"result_ref,omitempty"`
}

// Closed reports whether the session has been explicitly closed.
func (s *Session) Closed() bool {
	return s.CloseTime != nil
}

// HasResult reports whether a result was attached at close time.
func (s *Session) HasResult() bool {
	return s.ResultRef != ""
}

// referenceTime is the instant the session's time budget is judged
// against: the close time once closed, otherwise now.
func (s *Session) referenceTime(now time.Time) time.Time {
	if s.CloseTime != nil {
		return *s.CloseTime
	}
	return now
}

// ExpiredAt reports whether the session's time budget had elapsed as of
// now (or as of its close time, if closed earlier). Expiry is monotonic:
// once true it stays true, because both reference instants only move
// forward.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.referenceTime(now).After(s.ExpirationDeadline)
}

// ActiveAt reports whether the session is open and not expired.
func (s *Session) ActiveAt(now time.Time) bool {
	return !s.Closed() && !s.ExpiredAt(now)
}

// SkippedAt reports whether the session was closed in time but without a
// result.
func (s *Session) SkippedAt(now time.Time) bool {
	return s.Closed() && !s.ExpiredAt(now) && !s.HasResult()
}

// StateAt computes the derived lifecycle state.
func (s *Session) StateAt(now time.Time) SessionState {
	expired := s.ExpiredAt(now)
	if !s.Closed() {
		if expired {
			return StateOpenExpired
		}
		return StateOpenActive
	}
	switch {
	case s.HasResult():
		return StateClosedWithResult
	case expired:
		return StateClosedExpired
	default:
		return StateClosedSkipped
	}
}

// RemainingTime is the time left until expiration, floored at zero.
func (s *Session) RemainingTime(now time.Time) time.Duration {
	remaining := s.ExpirationDeadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close records the close transition on the in-memory session. The
// resultRef is kept only when the session was still within its deadline;
// a late submission is discarded, expiration wins.
//
// It fails with ErrAlreadyClosed on a second close. Persistence is the
// caller's job.
func (s *Session) Close(now time.Time, resultRef string) error {
	if s.Closed() {
		return ErrAlreadyClosed
	}
	expired := s.ExpiredAt(now)
	closeTime := now
	s.CloseTime = &closeTime
	if !expired && resultRef != "" {
		s.ResultRef = resultRef
	}
	return nil
}

// EnsureCancelable fails with ErrNotActive unless the session is currently
// active. Cancel is a true retraction: the caller deletes the row, freeing
// the worker and the assignment slot.
func (s *Session) EnsureCancelable(now time.Time) error {
	if !s.ActiveAt(now) {
		return ErrNotActive
	}
	return nil
}
