package repository

import (
	"errors"
	"strings"

	"crowdseg-service/src/models"

	"github.com/lib/pq"
)

// TranslateError classifies a driver-level failure as a domain sentinel
// error. The service layer uses it for transaction commit errors, which
// surface outside any repository call.
func TranslateError(err error) error {
	return translateError(err)
}

// translateError maps driver-level failures to domain sentinel errors.
// Unique violations on the open-session index mean the worker already
// holds a session; serialization and deadlock failures are transient and
// retried by the service layer.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			if pqErr.Constraint == "one_open_session_per_worker" {
				return models.ErrWorkerBusy
			}
			return err
		case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
			return models.ErrTxConflict
		}
		return err
	}

	// modernc.org/sqlite reports constraint and busy failures by message
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return models.ErrWorkerBusy
	}
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return models.ErrTxConflict
	}
	return err
}
