package controller

import (
	"log/slog"
	"net/http"

	"crowdseg-service/src/service"
	"crowdseg-service/src/utils"

	"github.com/gin-gonic/gin"
)

// WorkerController exposes the worker-facing operations: poll for a
// session, close it, cancel it.
type WorkerController struct {
	Allocation *service.AllocationService
	Sessions   *service.SessionService
}

// NewWorkerController creates a new worker controller
func NewWorkerController(allocation *service.AllocationService, sessions *service.SessionService) *WorkerController {
	return &WorkerController{
		Allocation: allocation,
		Sessions:   sessions,
	}
}

// CloseSessionRequest represents the request body for closing a session.
// Result carries the raw annotation image, base64 encoded; omitted or
// empty means the worker skipped.
type CloseSessionRequest struct {
	Result []byte `json:"result,omitempty"`
}

// SessionActionResponse represents the response for close and cancel
type SessionActionResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// GetSession returns the single session the calling worker should act on
// next, allocating one if needed. No available work is a normal outcome,
// answered with 204, never an error.
func (wc *WorkerController) GetSession(ctx *gin.Context) {
	workerID := ctx.GetHeader("X-Worker-ID")
	if workerID == "" {
		utils.SendError(ctx, http.StatusBadRequest, "Bad Request",
			"X-Worker-ID header is required",
			"https://crowdseg-service.com/validation-error", ctx.FullPath())
		return
	}

	view, err := wc.Allocation.GetByWorker(ctx.Request.Context(), workerID)
	if err != nil {
		slog.Error("Failed to allocate session",
			"worker_id", workerID,
			"error", err.Error())
		respondDomainError(ctx, err, "/worker/session")
		return
	}
	if view == nil {
		ctx.Status(http.StatusNoContent)
		return
	}

	ctx.JSON(http.StatusOK, view)
}

// CloseSession closes the session, attaching the submitted result when
// one arrives before the expiration deadline.
func (wc *WorkerController) CloseSession(ctx *gin.Context) {
	sessionID := ctx.Param("id")

	var req CloseSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		slog.Error("Invalid request body", "error", err.Error())
		utils.SendError(ctx, http.StatusBadRequest, "Bad Request",
			"Invalid JSON format: "+err.Error(),
			"https://crowdseg-service.com/validation-error", ctx.FullPath())
		return
	}

	err := wc.Sessions.Close(ctx.Request.Context(), sessionID, req.Result)
	if err != nil {
		slog.Error("Failed to close session",
			"session_id", sessionID,
			"error", err.Error())
		respondDomainError(ctx, err, "/worker/session/"+sessionID+"/close")
		return
	}

	slog.Info("Session close accepted", "session_id", sessionID)
	ctx.JSON(http.StatusOK, SessionActionResponse{
		Message:   "Session closed successfully",
		SessionID: sessionID,
	})
}

// CancelSession retracts an active session entirely.
func (wc *WorkerController) CancelSession(ctx *gin.Context) {
	sessionID := ctx.Param("id")

	err := wc.Sessions.Cancel(ctx.Request.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to cancel session",
			"session_id", sessionID,
			"error", err.Error())
		respondDomainError(ctx, err, "/worker/session/"+sessionID+"/cancel")
		return
	}

	ctx.JSON(http.StatusOK, SessionActionResponse{
		Message:   "Session cancelled",
		SessionID: sessionID,
	})
}
