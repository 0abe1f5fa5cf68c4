package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"go-dcb/pkg/dcb"
)

// Store is the Postgres-backed dcb.EventStore. Grounded on the teacher's
// Append/Stream shape (pkg/dcb/append.go, pkg/dcb/read.go) restructured
// around the single-transaction EXISTS-then-insert algorithm spec.md §4.2
// specifies, in place of the teacher's stored-procedure call.
type Store struct {
	pool   *pgxpool.Pool
	codec  Codec
	logger *zap.Logger
}

// NewStore builds a Store over pool, encoding/decoding payloads with codec.
// A nil logger falls back to zap.NewNop().
func NewStore(pool *pgxpool.Pool, codec Codec, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, codec: codec, logger: logger}
}

// Head returns the store's highest assigned event id, 0 if empty.
func (s *Store) Head(ctx context.Context) (int64, error) {
	var head *int64
	err := s.pool.QueryRow(ctx, "SELECT MAX(event_id) FROM event").Scan(&head)
	if err != nil {
		return 0, classifyError("Store.Head", err)
	}
	if head == nil {
		return 0, nil
	}
	return *head, nil
}

// Stream lowers filter into a WHERE clause and returns rows ordered by
// event_id ascending. Deserialization happens lazily per row via the
// configured Codec; a decode failure surfaces a *dcb.DeserializationError
// and terminates the stream.
func (s *Store) Stream(ctx context.Context, filter dcb.StreamFilter) (dcb.EventStream, error) {
	whereSQL, args := BuildCriteria(filter)
	query := fmt.Sprintf("SELECT event_id, event_type, payload, inserted_at FROM event WHERE %s ORDER BY event_id ASC", whereSQL)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyError("Store.Stream", err)
	}
	return &rowStream{rows: rows, codec: s.codec}, nil
}

type rowStream struct {
	rows    pgx.Rows
	codec   Codec
	current dcb.PersistedEvent
	err     error
}

func (s *rowStream) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		return false
	}
	var (
		id         int64
		eventType  string
		payload    []byte
		insertedAt time.Time
	)
	if err := s.rows.Scan(&id, &eventType, &payload, &insertedAt); err != nil {
		s.err = classifyError("Store.Stream", err)
		return false
	}
	event, err := s.codec.Decode(eventType, payload)
	if err != nil {
		s.err = err
		return false
	}
	s.current = dcb.PersistedEvent{ID: id, Event: event, InsertedAt: insertedAt}
	return true
}

func (s *rowStream) Event() dcb.PersistedEvent { return s.current }

func (s *rowStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return classifyError("Store.Stream", s.rows.Err())
}

func (s *rowStream) Close() error {
	s.rows.Close()
	return nil
}

// Append implements spec.md §4.2's algorithm in one SERIALIZABLE
// transaction: lower `validationFilter AND Origin{expectedVersion}`, check
// existence, and if nothing matches, insert every event with a freshly
// fanned-out set of identifier columns (others left NULL), all in the same
// transaction so the existence check and the inserts are atomic.
func (s *Store) Append(ctx context.Context, events []dcb.Event, validationFilter dcb.StreamFilter, expectedVersion int64) ([]dcb.PersistedEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, classifyError("Store.Append", err)
	}
	defer tx.Rollback(ctx)

	conflictFilter := dcb.And(dcb.Origin(expectedVersion), validationFilter)
	whereSQL, args := BuildCriteria(conflictFilter)
	existsQuery := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM event WHERE %s)", whereSQL)

	var conflict bool
	if err := tx.QueryRow(ctx, existsQuery, args...).Scan(&conflict); err != nil {
		return nil, classifyError("Store.Append", err)
	}
	if conflict {
		return nil, dcb.NewConcurrencyError("Store.Append", expectedVersion)
	}

	insertSQL, insertArgs, err := buildInsert(events, s.codec)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, insertSQL, insertArgs...)
	if err != nil {
		if isConflictError(err) {
			return nil, dcb.NewConcurrencyError("Store.Append", expectedVersion)
		}
		return nil, classifyError("Store.Append", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, classifyError("Store.Append", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyError("Store.Append", err)
	}
	if len(ids) != len(events) {
		return nil, dcb.NewBackendError("Store.Append", fmt.Errorf("expected %d assigned ids, got %d", len(events), len(ids)), false)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflictError(err) {
			return nil, dcb.NewConcurrencyError("Store.Append", expectedVersion)
		}
		return nil, classifyError("Store.Append", err)
	}

	out := make([]dcb.PersistedEvent, len(events))
	for i, e := range events {
		out[i] = dcb.PersistedEvent{ID: ids[i], Event: e}
	}
	s.logger.Debug("appended events", zap.Int("count", len(events)), zap.Int64("expected_version", expectedVersion))
	return out, nil
}

func buildInsert(events []dcb.Event, codec Codec) (string, []any, error) {
	identSet := map[string]bool{}
	var identNames []string
	for _, e := range events {
		for _, name := range e.DomainIds().Names() {
			if !identSet[name] {
				identSet[name] = true
				identNames = append(identNames, name)
			}
		}
	}

	cols := append([]string{"event_type", "payload"}, identNames...)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var placeholders []string
	var args []any

	for _, e := range events {
		payload, err := codec.Encode(e)
		if err != nil {
			return "", nil, err
		}
		rowPlaceholders := make([]string, 0, len(cols))
		args = append(args, e.EventName())
		rowPlaceholders = append(rowPlaceholders, fmt.Sprintf("$%d", len(args)))
		args = append(args, payload)
		rowPlaceholders = append(rowPlaceholders, fmt.Sprintf("$%d", len(args)))
		ids := e.DomainIds()
		for _, name := range identNames {
			if v, ok := ids.Get(name); ok {
				args = append(args, v.DriverValue())
				rowPlaceholders = append(rowPlaceholders, fmt.Sprintf("$%d", len(args)))
			} else {
				rowPlaceholders = append(rowPlaceholders, "NULL")
			}
		}
		placeholders = append(placeholders, "("+joinComma(rowPlaceholders)+")")
	}

	query := fmt.Sprintf("INSERT INTO event (%s) VALUES %s RETURNING event_id", joinComma(quoted), joinComma(placeholders))
	return query, args, nil
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}

func isConflictError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"23505", // unique_violation
			"40P01": // deadlock_detected
			return true
		}
	}
	return false
}

// classifyError wraps err as a *dcb.BackendError, marking it transient for
// connection-level and pool-timeout failures and permanent otherwise —
// the distinction the listener runtime relies on to decide whether to
// swallow a tick or propagate.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	return dcb.NewBackendError(op, err, isTransientError(err))
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, pgx.ErrTxClosed) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 = connection exception, 53 = insufficient resources,
		// 57P03 = cannot_connect_now.
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53" || pgErr.Code == "57P03")
	}
	return false
}
