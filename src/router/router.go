package router

import (
	"time"

	"crowdseg-service/src/controller"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Router struct {
	Logger *logrus.Logger
	Worker *controller.WorkerController
	Admin  *controller.AdminController
}

// SetUpRouter sets up the router for the scheduling service.
// It creates a new gin.Engine, registers the worker and admin routes,
// and returns the router.
func (r Router) SetUpRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.Use(r.accessLog())

	router.GET("/worker/session", r.Worker.GetSession)
	router.POST("/worker/session/:id/close", r.Worker.CloseSession)
	router.POST("/worker/session/:id/cancel", r.Worker.CancelSession)

	router.GET("/assignments/:id/availability", r.Admin.GetAvailability)
	router.POST("/assignments/:id/merge", r.Admin.MergeAssignment)
	router.POST("/maintenance/enforce-concluded", r.Admin.EnforceConcluded)

	return router, nil
}

func (r Router) accessLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		r.Logger.WithFields(logrus.Fields{
			"method":   ctx.Request.Method,
			"path":     ctx.FullPath(),
			"status":   ctx.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}
