package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// MigrateHashIndexesToBTree rebuilds any HASH index on the event table's
// identifier columns as a BTREE index, concurrently and idempotently.
// Grounded on migrator.rs's migrate_v2_1_0_to_v3_0_0: detect the current
// access method via the pg_class/pg_am catalogs, build a new BTREE index
// CONCURRENTLY under a temporary name, drop the old one CONCURRENTLY, and
// rename the new one into its place. Safe to re-run: if the index is
// already BTREE, it is left untouched.
func (m *Migrator) MigrateHashIndexesToBTree(ctx context.Context) error {
	rows, err := m.pool.Query(ctx, `
		SELECT ic.relname AS index_name, a.amname AS access_method
		FROM pg_class ic
		JOIN pg_index i ON i.indexrelid = ic.oid
		JOIN pg_class tc ON tc.oid = i.indrelid
		JOIN pg_am a ON a.oid = ic.relam
		WHERE tc.relname = 'event' AND ic.relname LIKE 'idx_event_%'
	`)
	if err != nil {
		return classifyError("Migrator.MigrateHashIndexesToBTree", err)
	}

	type indexRow struct {
		name   string
		method string
	}
	var toRebuild []indexRow
	for rows.Next() {
		var r indexRow
		if err := rows.Scan(&r.name, &r.method); err != nil {
			rows.Close()
			return classifyError("Migrator.MigrateHashIndexesToBTree", err)
		}
		if r.method == "hash" {
			toRebuild = append(toRebuild, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classifyError("Migrator.MigrateHashIndexesToBTree", err)
	}

	for _, idx := range toRebuild {
		if err := m.rebuildIndexAsBTree(ctx, idx.name); err != nil {
			return err
		}
	}
	m.logger.Info("rebuilt hash indexes as btree", zap.Int("count", len(toRebuild)))
	return nil
}

func (m *Migrator) rebuildIndexAsBTree(ctx context.Context, indexName string) error {
	col, err := m.indexedColumn(ctx, indexName)
	if err != nil {
		return err
	}

	tmpName := pgx.Identifier{indexName + "_btree_tmp"}.Sanitize()
	colQuoted := pgx.Identifier{col}.Sanitize()

	createSQL := fmt.Sprintf(
		`CREATE INDEX CONCURRENTLY IF NOT EXISTS %s ON event USING btree (%s) WHERE %s IS NOT NULL`,
		tmpName, colQuoted, colQuoted)
	if _, err := m.pool.Exec(ctx, createSQL); err != nil {
		return classifyError("Migrator.rebuildIndexAsBTree", err)
	}

	dropSQL := fmt.Sprintf(`DROP INDEX CONCURRENTLY IF EXISTS %s`, pgx.Identifier{indexName}.Sanitize())
	if _, err := m.pool.Exec(ctx, dropSQL); err != nil {
		return classifyError("Migrator.rebuildIndexAsBTree", err)
	}

	renameSQL := fmt.Sprintf(`ALTER INDEX %s RENAME TO %s`, tmpName, pgx.Identifier{indexName}.Sanitize())
	if _, err := m.pool.Exec(ctx, renameSQL); err != nil {
		return classifyError("Migrator.rebuildIndexAsBTree", err)
	}
	return nil
}

func (m *Migrator) indexedColumn(ctx context.Context, indexName string) (string, error) {
	var col string
	err := m.pool.QueryRow(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = i.indkey[0]
		WHERE ic.relname = $1
	`, indexName).Scan(&col)
	if err != nil {
		return "", classifyError("Migrator.indexedColumn", err)
	}
	return col, nil
}

// BackfillSequenceDefault reattaches event_id's default to the sequence and
// fast-forwards the sequence past the table's current max id — the
// operation needed after restoring a dump that preserved the table's rows
// but not the sequence's generator state. Grounded on migrator.rs's
// migrate_v3_x_x_to_v4_0_0.
func (m *Migrator) BackfillSequenceDefault(ctx context.Context) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return classifyError("Migrator.BackfillSequenceDefault", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT setval('seq_event_event_id', COALESCE((SELECT MAX(event_id) FROM event), 1))`); err != nil {
		return classifyError("Migrator.BackfillSequenceDefault", err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE event ALTER COLUMN event_id SET DEFAULT nextval('seq_event_event_id')`); err != nil {
		return classifyError("Migrator.BackfillSequenceDefault", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyError("Migrator.BackfillSequenceDefault", err)
	}
	m.logger.Info("backfilled event_id sequence default")
	return nil
}
