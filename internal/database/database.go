package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"

	"ecoaction/internal/config"
)

// Connect opens the database selected by cfg.DBDriver and makes sure the
// schema exists.
func Connect(cfg *config.Config) (*sqlx.DB, error) {
	if cfg.DBDriver == config.DriverSQLite {
		return OpenSQLite(cfg.SQLitePath)
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("connected to database", slog.String("driver", "postgres"), slog.String("host", cfg.DBHost))
	return db, nil
}

// OpenSQLite opens a SQLite database at path (":memory:" works) and
// migrates it. The pool is limited to one connection: every connection
// to ":memory:" is a separate database, and SQLite serialises writers
// anyway.
func OpenSQLite(path string) (*sqlx.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		// Store timestamps as sortable "2006-01-02 15:04:05.999999999-07:00" text.
		dsn += sep + "_time_format=sqlite"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	// "sqlite3" selects sqlx's question-mark bind type.
	db := sqlx.NewDb(conn, "sqlite3")

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("connected to database", slog.String("driver", "sqlite"), slog.String("path", path))
	return db, nil
}
