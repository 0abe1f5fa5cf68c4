// Command dcb-migrate installs and evolves the event store schema: the
// base event table and per-identifier columns for every registered
// schema, the listener/snapshot tables, and the HASH-to-BTREE index
// rebuild for deployments created before that migration shipped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-dcb/examples/account"
	"go-dcb/internal/config"
	"go-dcb/internal/logging"
	"go-dcb/pkg/dcb/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	rebuildIndexes := flag.Bool("rebuild-indexes", false, "rebuild legacy HASH indexes as BTREE")
	backfillSeqDefault := flag.Bool("backfill-sequence-default", false, "attach the event_id sequence as a column default")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()
	logger := logging.L()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	schemas := postgres.NewSchemaSet()
	if err := schemas.Register(account.Schema()); err != nil {
		return fmt.Errorf("register account schema: %w", err)
	}

	migrator := postgres.NewMigrator(pool, schemas, logger)

	if err := migrator.InitEventStore(ctx); err != nil {
		return fmt.Errorf("init event store: %w", err)
	}
	if err := migrator.InitListener(ctx); err != nil {
		return fmt.Errorf("init listener: %w", err)
	}
	if err := account.CreateBalanceTable(ctx, pool); err != nil {
		return fmt.Errorf("init account_balance table: %w", err)
	}

	if *rebuildIndexes {
		if err := migrator.MigrateHashIndexesToBTree(ctx); err != nil {
			return fmt.Errorf("rebuild indexes: %w", err)
		}
	}
	if *backfillSeqDefault {
		if err := migrator.BackfillSequenceDefault(ctx); err != nil {
			return fmt.Errorf("backfill sequence default: %w", err)
		}
	}

	logger.Info("migration complete")
	return nil
}
