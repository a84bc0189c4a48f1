package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/itchan-dev/ideamarket/backend/internal/storage/pg/migrations"
	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/logger"
	sharedpg "github.com/itchan-dev/ideamarket/shared/storage/pg"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

type Querier = sharedpg.Querier

type Storage struct {
	db *sql.DB
}

func New(ctx context.Context, cfg config.Pg, connCfg sharedpg.ConnectionConfig) (*Storage, error) {
	logger.Log.Info("connecting to database", "host", cfg.Host, "dbname", cfg.Dbname)
	db, err := sharedpg.Connect(ctx, cfg, connCfg)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("successfully connected to database")
	return &Storage{db: db}, nil
}

// NewFromDB wraps an existing pool. Used by tests.
func NewFromDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Migrate applies every embedded migration that has not run yet.
func (s *Storage) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Cleanup() error {
	return s.db.Close()
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return sharedpg.WithTx(ctx, s.db, fn)
}
