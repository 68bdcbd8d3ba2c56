package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crowdseg-service/logger"
	"crowdseg-service/src/clock"
	"crowdseg-service/src/config"
	"crowdseg-service/src/controller"
	"crowdseg-service/src/db"
	"crowdseg-service/src/rabbitmq"
	"crowdseg-service/src/repository"
	"crowdseg-service/src/router"
	"crowdseg-service/src/service"
	"crowdseg-service/src/storage"
)

// Server represents the HTTP server and the background sweep
type Server struct {
	config          *config.GlobalConfig
	database        *db.DB
	publisher       *rabbitmq.AMQPPublisher
	conclusion      *service.ConclusionService
	http            *http.Server
	sweeper         *Sweeper
	shutdownHandler ShutdownHandlerInterface
}

// NewServer creates a new server instance and wires the scheduling core.
func NewServer(cfg *config.GlobalConfig) (*Server, error) {
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	publisher, err := rabbitmq.NewAMQPPublisher(cfg.RabbitURL)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	server := &Server{
		config:    cfg,
		database:  database,
		publisher: publisher,
	}

	// Create and assign shutdown handler
	server.shutdownHandler = NewShutdownHandler(server)

	return server, nil
}

// Run starts the server with graceful shutdown using ShutdownHandler
func (s *Server) Run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	serverDone := s.startServerGoroutine()

	return s.shutdownHandler.HandleShutdown(serverDone, osSignals)
}

// startServerGoroutine starts the HTTP server in a goroutine and returns a channel for errors
func (s *Server) startServerGoroutine() chan error {
	serverDone := make(chan error, 1)

	go func() {
		sysClock := clock.SystemClock{}

		tasks := repository.NewTaskRepository(s.database)
		assignments := repository.NewAssignmentRepository(s.database)
		sessions := repository.NewSessionRepository(s.database)
		results := storage.NewResultStore(s.config.ResultBaseURL)

		conclusion := service.NewConclusionService(s.database, assignments, sessions,
			results, service.NewHTTPMergeGateway(s.config.MergeServiceAddr),
			s.publisher, s.config.ConcludedExchange, sysClock)
		s.conclusion = conclusion

		allocation := service.NewAllocationService(s.database, tasks, assignments,
			sessions, sysClock)
		sessionService := service.NewSessionService(s.database, tasks, assignments,
			sessions, results, service.NewHTTPPreprocessor(s.config.PreprocessServiceAddr),
			conclusion, sysClock)

		logger.Init()
		r := router.Router{
			Logger: logger.Logger,
			Worker: controller.NewWorkerController(allocation, sessionService),
			Admin:  controller.NewAdminController(allocation, conclusion),
		}
		engine, err := r.SetUpRouter()
		if err != nil {
			serverDone <- err
			return
		}

		s.sweeper = NewSweeper(conclusion, s.config.SweepInterval)
		s.sweeper.Start()

		httpServer := &http.Server{
			Addr:    fmt.Sprintf("%s:%s", s.config.GetHost(), s.config.GetPort()),
			Handler: engine,
		}
		s.http = httpServer

		slog.Info("Starting crowdseg service",
			"host", s.config.GetHost(),
			"port", s.config.GetPort(),
			"sweep_interval", s.config.SweepInterval)

		serverDone <- s.startServer()
	}()

	return serverDone
}

// startServer starts the HTTP server and handles errors
func (s *Server) startServer() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
