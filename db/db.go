package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database and makes sure the schema exists.
// An empty postgres dsn is built from the DB_* environment variables.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*DB, error) {
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			dsn = postgresDSNFromEnv()
		}
	case DriverSQLite:
		if dsn == "" {
			dsn = "apartments.db"
		}
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, driver: driver, logger: logger}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func postgresDSNFromEnv() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "apartments")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "apartments")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// sqliteDSN enables WAL so readers keep seeing the previous snapshot while
// a replacement is being written
func sqliteDSN(path string) string {
	if regexp.MustCompile(`[?&]_pragma=`).MatchString(path) {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites postgres placeholders for sqlite
func (db *DB) rebind(query string) string {
	if db.driver != DriverSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

func (db *DB) initSchema(ctx context.Context) error {
	id, num, ts := "SERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMP"
	if db.driver == DriverSQLite {
		id, num, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "DATETIME"
	}

	_, err := db.conn.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS apartments (
			id %[1]s,
			project_name TEXT NOT NULL,
			project_link TEXT NOT NULL DEFAULT '',
			price %[2]s NOT NULL DEFAULT 0,
			sq_meters %[2]s NOT NULL DEFAULT 0,
			rooms_count INTEGER NOT NULL DEFAULT 0,
			floor INTEGER NOT NULL DEFAULT 0,
			plan TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '[]',
			created_at %[3]s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, id, num, ts))
	if err != nil {
		return fmt.Errorf("failed to create apartments table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS sync_runs (
			id %[1]s,
			source VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'in_progress',
			listings_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			started_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at %[2]s,
			CONSTRAINT valid_status CHECK (status IN ('in_progress', 'done', 'empty', 'failed'))
		)
	`, id, ts))
	if err != nil {
		return fmt.Errorf("failed to create sync_runs table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_apartments_rooms_count ON apartments(rooms_count)`,
		`CREATE INDEX IF NOT EXISTS idx_apartments_project_name ON apartments(project_name)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			db.logger.Warn("failed to create index", "stmt", stmt, "err", err)
		}
	}

	db.logger.Debug("database schema initialized", "driver", db.driver)
	return nil
}
