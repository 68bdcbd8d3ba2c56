package main

import (
	"log"
	"log/slog"
	"os"

	"crowdseg-service/src/config"
	"crowdseg-service/src/server"
)

func main() {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)
	srv := createServer(cfg)
	runServer(srv)
}

func loadConfig() *config.GlobalConfig {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func setupLogging(level string) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	}))
	slog.SetDefault(logger)
}

func createServer(cfg *config.GlobalConfig) *server.Server {
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

func runServer(srv *server.Server) {
	if err := srv.Run(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
