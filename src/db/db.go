package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"crowdseg-service/src/config"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavor the store runs on. Postgres is the
// production target; sqlite backs the integration tests.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB represents the database connection and operations
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// NewDB creates a new database connection from the service configuration.
func NewDB(cfg *config.GlobalConfig) (*DB, error) {
	dbConfig := cfg.GetDatabaseConfig()
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.GetHost(),
		dbConfig.GetPort(),
		dbConfig.GetUser(),
		dbConfig.GetPassword(),
		dbConfig.GetDBName(),
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Set connection pool settings
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection established",
		"host", dbConfig.GetHost(),
		"database", dbConfig.GetDBName())

	return &DB{conn: conn, dialect: DialectPostgres}, nil
}

// NewSQLiteDB opens an embedded sqlite database at the given DSN.
// Used by integration tests; sqlite serializes writers, so the
// Postgres row-lock clause is not emitted on this dialect.
func NewSQLiteDB(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps in-memory databases alive and avoids
	// sqlite write contention.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &DB{conn: conn, dialect: DialectSQLite}, nil
}

// GetConnection returns the underlying sql.DB connection.
func (d *DB) GetConnection() *sql.DB {
	return d.conn
}

// Dialect returns the SQL dialect this connection speaks.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// ForUpdate returns the row-lock suffix for the current dialect.
// sqlite has no FOR UPDATE; its single-writer model gives the same
// guarantee inside a transaction.
func (d *DB) ForUpdate() string {
	if d.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// BeginTx starts a transaction with the store's default isolation.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.conn.BeginTx(ctx, nil)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
