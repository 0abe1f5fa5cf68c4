package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-dcb/pkg/dcb"
)

// Snapshotter is the Postgres-backed dcb.Snapshotter. Grounded on
// snapshotter.rs's PgSnapshotter: load_snapshot re-checks the stored row's
// name and query string against what the caller asked for and falls back
// to the zero-value default on any mismatch (a stale snapshot under a
// colliding key is simply ignored, never trusted); store_snapshot only
// fires past the configured threshold and uses a conditional UPDATE so a
// slower, stale writer can never regress a newer snapshot.
type Snapshotter struct {
	pool  *pgxpool.Pool
	every int64
}

// NewSnapshotter builds a Snapshotter over pool, writing a fresh snapshot
// roughly every `every` applied events.
func NewSnapshotter(pool *pgxpool.Pool, every int64) *Snapshotter {
	return &Snapshotter{pool: pool, every: every}
}

// LoadInto hydrates part in place from its stored snapshot row, if one
// exists under part's snapshot id and its name/query still match what's
// stored — part is left at its zero Version otherwise.
func (s *Snapshotter) LoadInto(ctx context.Context, part dcb.StatePartHandle) error {
	query := dcb.CanonicalQueryString(part.QueryFilter())
	id := dcb.SnapshotID(part.PartName(), part.QueryFilter())

	var (
		name    string
		storedQ string
		payload string
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT name, query, payload, version FROM snapshot WHERE id = $1`, id,
	).Scan(&name, &storedQ, &payload, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return classifyError("Snapshotter.LoadInto", err)
	}

	if name != part.PartName() || storedQ != query {
		return nil
	}
	return part.LoadSnapshotPayload([]byte(payload), version)
}

// Store writes part's current payload once its applied-events count has
// passed the snapshotter's threshold, via an upsert guarded so it never
// overwrites a snapshot with a higher version than the one being written.
func (s *Snapshotter) Store(ctx context.Context, part dcb.StatePartHandle) error {
	if part.PartAppliedEventsCount() <= s.every {
		return nil
	}

	payload, err := part.MarshalSnapshotPayload()
	if err != nil {
		return err
	}
	query := dcb.CanonicalQueryString(part.QueryFilter())
	id := dcb.SnapshotID(part.PartName(), part.QueryFilter())
	version := part.PartVersion()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshot (id, name, query, payload, version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = $2, query = $3, payload = $4, version = $5
		WHERE snapshot.version < $5
	`, id, part.PartName(), query, string(payload), version)
	if err != nil {
		return classifyError("Snapshotter.Store", err)
	}
	return nil
}
