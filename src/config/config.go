package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds the connection settings for the session store.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

func (c DatabaseConfig) GetDriver() string   { return c.Driver }
func (c DatabaseConfig) GetHost() string     { return c.Host }
func (c DatabaseConfig) GetPort() int        { return c.Port }
func (c DatabaseConfig) GetUser() string     { return c.User }
func (c DatabaseConfig) GetPassword() string { return c.Password }
func (c DatabaseConfig) GetDBName() string   { return c.DBName }

// GlobalConfig holds the full service configuration, loaded from the
// environment at startup.
type GlobalConfig struct {
	LogLevel string

	Database DatabaseConfig

	Host string
	Port string

	RabbitURL         string
	ConcludedExchange string

	MergeServiceAddr      string
	PreprocessServiceAddr string

	ResultBaseURL string

	SweepInterval time.Duration
}

func (c *GlobalConfig) GetDatabaseConfig() DatabaseConfig { return c.Database }
func (c *GlobalConfig) GetHost() string                   { return c.Host }
func (c *GlobalConfig) GetPort() string                   { return c.Port }

// NewConfig loads the service configuration from environment variables.
// Connection settings have no sane defaults and are required; tuning
// knobs fall back to defaults.
func NewConfig() (*GlobalConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("CONCLUDED_EXCHANGE", "assignment.concluded")
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 300)

	required := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASS", "DB_NAME",
		"PORT",
		"RABBITMQ_URL",
		"MERGE_SERVICE_ADDR",
		"PREPROCESS_SERVICE_ADDR",
		"RESULT_BASE_URL",
	}
	for _, key := range required {
		if v.GetString(key) == "" {
			return nil, fmt.Errorf("%s environment variable is required", key)
		}
	}

	return &GlobalConfig{
		LogLevel: v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASS"),
			DBName:   v.GetString("DB_NAME"),
		},
		Host:                  v.GetString("HOST"),
		Port:                  v.GetString("PORT"),
		RabbitURL:             v.GetString("RABBITMQ_URL"),
		ConcludedExchange:     v.GetString("CONCLUDED_EXCHANGE"),
		MergeServiceAddr:      v.GetString("MERGE_SERVICE_ADDR"),
		PreprocessServiceAddr: v.GetString("PREPROCESS_SERVICE_ADDR"),
		ResultBaseURL:         v.GetString("RESULT_BASE_URL"),
		SweepInterval:         time.Duration(v.GetInt("SWEEP_INTERVAL_SECONDS")) * time.Second,
	}, nil
}
