package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-dcb/pkg/dcb"
)

// Runtime drives one or more registered dcb.Listeners against a Store's
// pool. Grounded on original_source/disintegrate-postgres/src/listener.rs's
// PgEventListener: a dedicated LISTEN connection watches for new_events
// notifications and wakes every registered executor; each executor also
// polls on its own interval so delivery degrades gracefully without
// NOTIFY support. Go's context.Context substitutes the source's
// CancellationToken for shutdown (SPEC_FULL.md §5).
type Runtime struct {
	pool      *pgxpool.Pool
	codec     Codec
	logger    *zap.Logger
	executors []*executor
}

// NewRuntime builds a Runtime over pool, decoding event payloads with codec.
func NewRuntime(pool *pgxpool.Pool, codec Codec, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{pool: pool, codec: codec, logger: logger}
}

// Register adds listener to the runtime under config, returning the Runtime
// for chaining — the Go analogue of the source's builder-style
// register_listener.
func (r *Runtime) Register(listener dcb.Listener, config dcb.ListenerConfig) *Runtime {
	r.executors = append(r.executors, &executor{
		pool:     r.pool,
		codec:    r.codec,
		listener: listener,
		config:   config,
		logger:   r.logger.With(zap.String("listener_id", listener.ID())),
	})
	return r
}

// Run registers every executor's cursor row, then blocks running each
// executor's poll loop (plus one shared notify watcher if any executor
// enabled it) until ctx is cancelled or an executor reports a permanent
// error.
func (r *Runtime) Run(ctx context.Context) error {
	for _, e := range r.executors {
		if err := e.init(ctx); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	notifyEnabled := false
	for _, e := range r.executors {
		if e.config.NotifyEnabled {
			notifyEnabled = true
			break
		}
	}
	var wake chan struct{}
	if notifyEnabled {
		wake = make(chan struct{}, 1)
		g.Go(func() error { return watchNotifications(ctx, r.pool, wake, r.logger) })
	}

	for _, e := range r.executors {
		e := e
		g.Go(func() error { return e.run(ctx, wake) })
	}
	return g.Wait()
}

// watchNotifications holds a dedicated connection LISTENing on new_events
// and pokes wake (non-blocking) whenever one arrives. It reconnects on any
// error other than context cancellation, mirroring the source's outer
// retry loop around PgListener::connect_with.
func watchNotifications(ctx context.Context, pool *pgxpool.Pool, wake chan<- struct{}, logger *zap.Logger) error {
	for {
		if err := listenOnce(ctx, pool, wake, logger); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("notify listener reconnecting", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		return nil
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, wake chan<- struct{}, logger *zap.Logger) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN new_events"); err != nil {
		return err
	}
	for {
		_, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// executor runs one listener's try-lock-handle-release cycle. Grounded on
// the source's PgEventListerExecutor: lock_event_listener (FOR UPDATE SKIP
// LOCKED), handle_events_from (stream the rebased query, handle each event,
// stop and remember the last good id on first failure),
// release_event_listener (persist the cursor, commit).
type executor struct {
	pool     *pgxpool.Pool
	codec    Codec
	listener dcb.Listener
	config   dcb.ListenerConfig
	logger   *zap.Logger
}

func (e *executor) init(ctx context.Context) error {
	_, err := e.pool.Exec(ctx,
		`INSERT INTO listener_cursor (id, last_processed_event_id) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`,
		e.listener.ID())
	if err != nil {
		return classifyError("executor.init", err)
	}
	return nil
}

func (e *executor) run(ctx context.Context, wake <-chan struct{}) error {
	poll := time.NewTicker(e.config.PollInterval)
	defer poll.Stop()
	for {
		if err := e.execute(ctx); err != nil && !dcb.IsTransientBackendError(err) {
			return err
		} else if err != nil {
			e.logger.Warn("listener tick failed, will retry", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
		case <-wakeOrNever(wake, e.config.NotifyEnabled):
		}
	}
}

func wakeOrNever(wake <-chan struct{}, enabled bool) <-chan struct{} {
	if !enabled || wake == nil {
		return nil
	}
	return wake
}

// execute runs exactly one try-lock-handle-release cycle. A Handle/decode
// failure only stops that cycle's fold early (the cursor commits up to the
// last event successfully handled, so the failed one is redelivered next
// tick) — it is logged, never propagated, mirroring release_event_listener
// always committing regardless of handle_events_from's outcome. Only a
// failure talking to Postgres itself propagates to run, which then decides
// whether to retry (transient) or abort (permanent) per spec.md §7.
func (e *executor) execute(ctx context.Context) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return classifyError("executor.execute", err)
	}
	defer tx.Rollback(ctx)

	var lastID int64
	err = tx.QueryRow(ctx,
		`SELECT last_processed_event_id FROM listener_cursor WHERE id = $1 FOR UPDATE SKIP LOCKED`,
		e.listener.ID(),
	).Scan(&lastID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // row locked by another process, or not yet registered
		}
		return classifyError("executor.execute", err)
	}

	newID, handleErr := e.handleEventsFrom(ctx, tx, lastID)
	if handleErr != nil {
		e.logger.Warn("event handling failed, cursor not advanced past it", zap.Error(handleErr))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE listener_cursor SET last_processed_event_id = $1, updated_at = now() WHERE id = $2`,
		newID, e.listener.ID(),
	); err != nil {
		return classifyError("executor.execute", err)
	}
	return classifyError("executor.execute", tx.Commit(ctx))
}

// handleEventsFrom streams up to config.BatchSize events past lastID and
// invokes Handle on each in order, stopping at the first failure and
// returning the last id successfully handled — the cursor only ever
// advances past events this listener actually processed, so a crash never
// loses the events after a failed one (at-least-once redelivery on retry).
func (e *executor) handleEventsFrom(ctx context.Context, tx pgx.Tx, lastID int64) (int64, error) {
	filter := dcb.And(e.listener.Filter(), dcb.Origin(lastID))
	whereSQL, args := BuildCriteria(filter)
	limit := e.config.BatchSize
	if limit <= 0 {
		limit = dcb.DefaultBatchSize
	}
	query := fmt.Sprintf("SELECT event_id, event_type, payload, inserted_at FROM event WHERE %s ORDER BY event_id ASC LIMIT %d", whereSQL, limit)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return lastID, classifyError("executor.handleEventsFrom", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			eventType  string
			payload    []byte
			insertedAt time.Time
		)
		if err := rows.Scan(&id, &eventType, &payload, &insertedAt); err != nil {
			return lastID, classifyError("executor.handleEventsFrom", err)
		}
		event, err := e.codec.Decode(eventType, payload)
		if err != nil {
			return lastID, err
		}
		pe := dcb.PersistedEvent{ID: id, Event: event, InsertedAt: insertedAt}
		if err := e.listener.Handle(ctx, pe); err != nil {
			return lastID, err
		}
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return lastID, classifyError("executor.handleEventsFrom", err)
	}
	return lastID, nil
}
