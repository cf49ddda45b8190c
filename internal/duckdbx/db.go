// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package duckdbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
)

// DB manages a pool of DuckDB connections to a single shared database.
// All connections come from one connector and thus share the same
// in-process database instance, including an in-memory one.
type DB struct {
	dbPath         string // empty for an in-memory database
	cleanupOnClose bool   // whether to remove the database directory on Close
	name           string

	// config (used to build DSN)
	poolSize int
	dsn      string // full DSN with all settings

	pool *connectionPool

	// metrics
	metricsPeriod time.Duration
	metricsCtx    context.Context
	metricsCancel context.CancelFunc
	metricsDone   chan struct{}

	connMaxAge time.Duration // max lifetime for a pooled physical connection
}

type connectionPool struct {
	parent *DB
	size   int

	db        *sql.DB
	dbOnce    sync.Once
	dbErr     error
	connector *duckdb.Connector
}

// DuckDBSettings holds DuckDB-specific settings for DSN construction.
// This mirrors config.DuckDBConfig to avoid circular imports.
type DuckDBSettings struct {
	MemoryLimitMB        int64  // Memory limit in MB (0 = unlimited)
	TempDirectory        string // Directory for temporary files
	MaxTempDirectorySize string // Max size for temp directory (e.g., "10GB" or bytes as string)
	PoolSize             int    // Connection pool size (0 = use default)
	Threads              int    // Total threads (0 = use default)
}

type dbConfig struct {
	dbPath        *string
	inMemory      bool
	name          string
	metricsPeriod time.Duration
	metricsCtx    context.Context
	connMaxAge    time.Duration
	duckdb        *DuckDBSettings
}

// DBOption is a functional option for configuring DB
type DBOption func(*dbConfig)

// WithDatabasePath sets the database path for DB.
// The path must not be empty.
func WithDatabasePath(path string) DBOption {
	return func(cfg *dbConfig) {
		if path == "" {
			panic("WithDatabasePath: path must not be empty")
		}
		cfg.dbPath = &path
	}
}

// WithInMemory keeps the database in memory. DuckDB still spills to its
// temp directory when the memory limit is reached.
func WithInMemory() DBOption {
	return func(cfg *dbConfig) {
		cfg.inMemory = true
	}
}

// WithName labels the database in logs and metrics.
func WithName(name string) DBOption {
	return func(cfg *dbConfig) {
		cfg.name = name
	}
}

// WithMetrics enables periodic polling of DuckDB memory metrics.
// If period is 0, uses default of 30 seconds.
func WithMetrics(period time.Duration) DBOption {
	return func(cfg *dbConfig) {
		if period == 0 {
			period = 30 * time.Second
		}
		cfg.metricsPeriod = period
	}
}

// WithMetricsContext sets the context used for metrics polling.
// If not set, uses context.Background().
func WithMetricsContext(ctx context.Context) DBOption {
	return func(cfg *dbConfig) {
		cfg.metricsCtx = ctx
	}
}

// WithConnectionMaxAge sets the maximum lifetime for a pooled physical connection.
func WithConnectionMaxAge(d time.Duration) DBOption {
	return func(cfg *dbConfig) {
		if d < time.Minute {
			d = time.Minute
		}
		cfg.connMaxAge = d
	}
}

// WithDuckDBSettings sets DuckDB-specific configuration for DSN construction.
func WithDuckDBSettings(settings DuckDBSettings) DBOption {
	return func(cfg *dbConfig) {
		cfg.duckdb = &settings
	}
}

// NewDB creates a new DB instance with a shared database.
// Database location behavior:
//   - No options provided: creates a temporary file database, removed on Close
//   - WithDatabasePath("/path/to/db"): uses specified file database
//   - WithInMemory(): uses an in-memory database
func NewDB(opts ...DBOption) (*DB, error) {
	cfg := &dbConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var dbPath string
	var cleanupOnClose bool
	switch {
	case cfg.inMemory:
	case cfg.dbPath != nil:
		dbPath = *cfg.dbPath
	default:
		dbDir, err := os.MkdirTemp("", "companygen-duckdb-")
		if err != nil {
			return nil, fmt.Errorf("create temp dir for DB: %w", err)
		}
		dbPath = filepath.Join(dbDir, "global.ddb")
		cleanupOnClose = true
	}

	settings := cfg.duckdb
	if settings == nil {
		settings = &DuckDBSettings{}
	}

	// Pool size: from settings, or default (half cores, capped at 8, min 2)
	poolSize := settings.PoolSize
	if poolSize <= 0 {
		poolSize = min(8, max(2, runtime.GOMAXPROCS(0)/2))
	}

	threads := settings.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	connMaxAge := 25 * time.Minute
	if cfg.connMaxAge > 0 {
		connMaxAge = cfg.connMaxAge
	}

	dsn := buildDSN(dbPath, settings, threads)

	slog.Info("duckdbx: single shared database",
		"name", cfg.name,
		"inMemory", dbPath == "",
		"dbPath", dbPath,
		"dsn", dsn,
		"poolSize", poolSize,
		"threads", threads,
		"connMaxAge", connMaxAge,
	)

	d := &DB{
		dbPath:         dbPath,
		cleanupOnClose: cleanupOnClose,
		name:           cfg.name,
		poolSize:       poolSize,
		dsn:            dsn,
		metricsPeriod:  cfg.metricsPeriod,
		connMaxAge:     connMaxAge,
	}
	d.pool = &connectionPool{
		parent: d,
		size:   poolSize,
	}

	if cfg.metricsPeriod > 0 {
		ctx := cfg.metricsCtx
		if ctx == nil {
			ctx = context.Background()
		}
		d.metricsCtx, d.metricsCancel = context.WithCancel(ctx)
		d.metricsDone = make(chan struct{})
		go func() {
			defer close(d.metricsDone)
			d.pollMemoryMetrics(d.metricsCtx)
		}()
	}

	return d, nil
}

// Close stops metrics polling, closes every connection and removes the
// database directory if NewDB created it.
func (d *DB) Close() error {
	if d.metricsCancel != nil {
		d.metricsCancel()
		<-d.metricsDone
	}

	var err error
	if d.pool != nil {
		err = d.pool.closeAll()
	}

	// Never remove user-provided paths
	if d.cleanupOnClose && d.dbPath != "" {
		_ = os.RemoveAll(filepath.Dir(d.dbPath))
	}
	return err
}

// GetDatabasePath returns the path to the database file, or "" when the
// database is in memory.
func (d *DB) GetDatabasePath() string {
	return d.dbPath
}

// Name returns the label given with WithName.
func (d *DB) Name() string {
	return d.name
}

// GetConnection returns a pooled connection and its release function.
func (d *DB) GetConnection(ctx context.Context) (*sql.Conn, func(), error) {
	return d.pool.acquire(ctx)
}

// NewAppender opens a DuckDB appender for table on conn. The caller must
// close the appender before releasing the connection.
func NewAppender(conn *sql.Conn, schema, table string) (*duckdb.Appender, error) {
	var appender *duckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		rawConn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("failed to get driver connection")
		}
		var appErr error
		appender, appErr = duckdb.NewAppenderFromConn(rawConn, schema, table)
		return appErr
	}); err != nil {
		return nil, fmt.Errorf("create appender: %w", err)
	}
	return appender, nil
}

// ---------- connectionPool implementation ----------

func (p *connectionPool) ensureDB(ctx context.Context) error {
	p.dbOnce.Do(func() {
		connector, err := duckdb.NewConnector(p.parent.dsn, nil)
		if err != nil {
			p.dbErr = fmt.Errorf("create connector: %w", err)
			return
		}
		p.connector = connector

		db := sql.OpenDB(connector)
		db.SetMaxOpenConns(p.size)
		db.SetMaxIdleConns(p.size)
		db.SetConnMaxLifetime(p.parent.connMaxAge)
		p.db = db

		if err := p.parent.applyPostConnectSettings(ctx, db); err != nil {
			p.dbErr = err
			return
		}
	})
	return p.dbErr
}

func (p *connectionPool) acquire(ctx context.Context) (*sql.Conn, func(), error) {
	if err := p.ensureDB(ctx); err != nil {
		return nil, nil, err
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}

	return conn, func() { _ = conn.Close() }, nil
}

// closeAll closes the sql.DB, which also closes the connector.
func (p *connectionPool) closeAll() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// ---------- DB setup ----------

// buildDSN constructs a DuckDB DSN with the provided settings.
// See https://duckdb.org/docs/api/go.html for supported parameters.
func buildDSN(dbPath string, settings *DuckDBSettings, threads int) string {
	var params []string

	if settings.MemoryLimitMB > 0 {
		params = append(params, fmt.Sprintf("memory_limit=%dMB", settings.MemoryLimitMB))
	}

	params = append(params, fmt.Sprintf("threads=%d", threads))

	if settings.TempDirectory != "" {
		params = append(params, "temp_directory="+settings.TempDirectory)
	}

	if settings.MaxTempDirectorySize != "" {
		params = append(params, "max_temp_directory_size="+settings.MaxTempDirectorySize)
	}

	return dbPath + "?" + strings.Join(params, "&")
}

// applyPostConnectSettings applies settings that cannot be set via DSN.
func (d *DB) applyPostConnectSettings(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn for setup: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if d.dbPath != "" {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET home_directory='%s';", EscapeSingle(filepath.Dir(d.dbPath)))); err != nil {
			slog.Warn("Failed to set home_directory", "error", err)
		}
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA enable_object_cache;"); err != nil {
		return fmt.Errorf("enable_object_cache: %w", err)
	}

	return nil
}

// EscapeSingle doubles single quotes so s can be embedded in a SQL string
// literal.
func EscapeSingle(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
