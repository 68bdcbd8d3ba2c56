package controller

import (
	"log/slog"
	"net/http"

	"crowdseg-service/src/service"

	"github.com/gin-gonic/gin"
)

// AdminController exposes read-only introspection and the maintenance
// entry points for reporting and admin tooling.
type AdminController struct {
	Allocation *service.AllocationService
	Conclusion *service.ConclusionService
}

// NewAdminController creates a new admin controller
func NewAdminController(allocation *service.AllocationService, conclusion *service.ConclusionService) *AdminController {
	return &AdminController{
		Allocation: allocation,
		Conclusion: conclusion,
	}
}

// GetAvailability reports whether an assignment currently accepts new
// sessions and how many results it still needs.
func (ac *AdminController) GetAvailability(ctx *gin.Context) {
	assignmentID := ctx.Param("id")

	view, err := ac.Allocation.Availability(ctx.Request.Context(), assignmentID)
	if err != nil {
		respondDomainError(ctx, err, "/assignments/"+assignmentID+"/availability")
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// EnforceConcluded runs the reconciliation sweep on demand.
func (ac *AdminController) EnforceConcluded(ctx *gin.Context) {
	if err := ac.Conclusion.EnforceConcluded(ctx.Request.Context()); err != nil {
		slog.Error("Sweep failed", "error", err.Error())
		respondDomainError(ctx, err, "/maintenance/enforce-concluded")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "sweep completed"})
}

// MergeAssignment recomputes the consensus merge for a concluded
// assignment, the retry path when the merge was unavailable at
// conclusion time.
func (ac *AdminController) MergeAssignment(ctx *gin.Context) {
	assignmentID := ctx.Param("id")

	if err := ac.Conclusion.MergeAssignment(ctx.Request.Context(), assignmentID); err != nil {
		slog.Error("Merge request failed",
			"assignment_id", assignmentID,
			"error", err.Error())
		respondDomainError(ctx, err, "/assignments/"+assignmentID+"/merge")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "merge stored", "assignment_id": assignmentID})
}
