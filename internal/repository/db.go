package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// Store owns the ledger connection. Jobs is a no-op repository when no DSN
// is configured.
type Store struct {
	Jobs ExtractJobRepository

	db   *sql.DB
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects to the configured ledger database and ensures its schema.
// An empty DSN yields a Store whose Jobs discards every write.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		logger.Info("ledger disabled: no database url configured")
		return &Store{Jobs: NoopExtractJobRepository{}, log: logger}, nil
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql", "pgx":
		pool, err := openPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		// Wrap pool as *sql.DB so both dialects share one repository.
		db := stdlib.OpenDBFromPool(pool)
		if err := migrate(ctx, db, dialectPostgres); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{Jobs: newSQLJobRepo(db, dialectPostgres, logger), db: db, pool: pool, log: logger}, nil
	case "sqlite", "sqlite3":
		db, err := OpenSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Jobs: newSQLJobRepo(db, dialectSQLite, logger), db: db, log: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
}

// openPool creates a pgx pool tuned from cfg.
func openPool(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database url", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "warrantyvault-ai"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return pool, nil
}

// OpenSQLite opens an embedded ledger file and ensures its schema.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening embedded ledger", "dsn", dsn)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db, dialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks the ledger connection. A disabled ledger is always healthy.
func (s *Store) Ping(ctx context.Context, timeout time.Duration) error {
	if s.db == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return s.db.PingContext(ctx)
}

// Enabled reports whether writes reach a database.
func (s *Store) Enabled() bool { return s.db != nil }

// Close closes the database connections gracefully
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	s.log.Info("closing database connections")
	if err := s.db.Close(); err != nil {
		s.log.Error("failed to close database", "error", err)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.log.Info("database connections closed")
}
