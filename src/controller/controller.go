package controller

import (
	"errors"
	"net/http"

	"crowdseg-service/src/models"
	"crowdseg-service/src/schemas"

	"github.com/gin-gonic/gin"
)

// respondDomainError translates domain sentinel errors into RFC 7807
// responses. Anything unrecognized is an internal error.
func respondDomainError(ctx *gin.Context, err error, instance string) {
	var resp *schemas.ErrorResponse
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		resp = schemas.NewNotFoundError("session not found", instance)
	case errors.Is(err, models.ErrAssignmentNotFound):
		resp = schemas.NewNotFoundError("assignment not found", instance)
	case errors.Is(err, models.ErrTaskNotFound):
		resp = schemas.NewNotFoundError("task not found", instance)
	case errors.Is(err, models.ErrAlreadyClosed):
		resp = schemas.SessionAlreadyClosedError("session is already closed", instance)
	case errors.Is(err, models.ErrNotActive):
		resp = schemas.SessionNotActiveError("session is not active", instance)
	case errors.Is(err, models.ErrWorkerBusy):
		resp = schemas.WorkerBusyError("worker already has an open session", instance)
	case errors.Is(err, models.ErrNotConcluded):
		resp = schemas.NewConflictError("assignment has not concluded yet", instance)
	case errors.Is(err, models.ErrMergeUnavailable):
		resp = schemas.NewBadGatewayError("merge service is unavailable", instance)
	case errors.Is(err, models.ErrTxConflict):
		resp = schemas.NewErrorResponse(http.StatusServiceUnavailable,
			"Store Contention", "allocation retries exhausted, try again", instance)
	default:
		resp = schemas.NewInternalError(err.Error(), instance)
	}
	ctx.JSON(resp.Status, resp)
}
