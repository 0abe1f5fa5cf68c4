package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"go-dcb/pkg/dcb"
)

// SchemaSet accumulates the global union of identifiers across every event
// schema a deployment registers, validating that a name never appears with
// conflicting types across schemas — the table has exactly one column per
// identifier name, shared by every event type that carries it.
type SchemaSet struct {
	types map[string]dcb.IdentifierType
}

// NewSchemaSet builds an empty SchemaSet.
func NewSchemaSet() *SchemaSet {
	return &SchemaSet{types: make(map[string]dcb.IdentifierType)}
}

// Register validates schema and merges its identifier union into the set.
func (s *SchemaSet) Register(schema dcb.EventSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	for _, info := range schema.DomainIds {
		name := info.Ident.String()
		if existing, ok := s.types[name]; ok && existing != info.Type {
			return dcb.NewValidationError("SchemaSet.Register", fmt.Errorf("identifier %q already registered as %s, cannot re-register as %s", name, existing, info.Type))
		}
		s.types[name] = info.Type
	}
	return nil
}

// Identifiers returns the set's identifiers sorted by name, for
// deterministic DDL generation.
func (s *SchemaSet) Identifiers() []dcb.DomainIdInfo {
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]dcb.DomainIdInfo, len(names))
	for i, name := range names {
		out[i] = dcb.DomainIdInfo{Ident: dcb.MustIdentifier(name), Type: s.types[name]}
	}
	return out
}

func sqlColumnType(t dcb.IdentifierType) string {
	switch t {
	case dcb.IdentifierTypeText:
		return "TEXT"
	case dcb.IdentifierTypeInt64:
		return "BIGINT"
	case dcb.IdentifierTypeUUID:
		return "UUID"
	default:
		return "TEXT"
	}
}

// Migrator installs and evolves the schema. Grounded on migrator.rs's
// init_event_store/init_listener, reimplemented with idempotent
// IF NOT EXISTS / ADD COLUMN IF NOT EXISTS statements in place of the
// source's panic-on-duplicate approach, since Go callers are expected to
// run setup on every deployment, not once at schema-authoring time.
type Migrator struct {
	pool    *pgxpool.Pool
	schemas *SchemaSet
	logger  *zap.Logger
}

// NewMigrator builds a Migrator over pool for the identifiers in schemas.
func NewMigrator(pool *pgxpool.Pool, schemas *SchemaSet, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{pool: pool, schemas: schemas, logger: logger}
}

// InitEventStore installs the sequence, base table, type index, and one
// nullable column plus partial index per registered identifier.
func (m *Migrator) InitEventStore(ctx context.Context) error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_event_event_id AS BIGINT CACHE 1`,
		`CREATE TABLE IF NOT EXISTS event (
			event_id BIGINT PRIMARY KEY DEFAULT nextval('seq_event_event_id'),
			event_type TEXT NOT NULL,
			payload BYTEA NOT NULL,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_event_type ON event (event_type)`,
	}
	if err := m.exec(ctx, stmts); err != nil {
		return err
	}

	for _, info := range m.schemas.Identifiers() {
		if err := m.addIdentifierColumn(ctx, info); err != nil {
			return err
		}
	}
	m.logger.Info("event store schema installed", zap.Int("identifier_columns", len(m.schemas.Identifiers())))
	return nil
}

func (m *Migrator) addIdentifierColumn(ctx context.Context, info dcb.DomainIdInfo) error {
	col := pgx.Identifier{info.Ident.String()}.Sanitize()
	idxName := pgx.Identifier{"idx_event_" + info.Ident.String()}.Sanitize()
	colType := sqlColumnType(info.Type)

	stmts := []string{
		fmt.Sprintf(`ALTER TABLE event ADD COLUMN IF NOT EXISTS %s %s`, col, colType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON event (%s) WHERE %s IS NOT NULL`, idxName, col, col),
	}
	return m.exec(ctx, stmts)
}

// InitListener installs the listener-cursor table, the snapshot table, and
// the NOTIFY trigger on insert.
func (m *Migrator) InitListener(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listener_cursor (
			id TEXT PRIMARY KEY,
			last_processed_event_id BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			query TEXT NOT NULL,
			payload TEXT NOT NULL,
			version BIGINT NOT NULL
		)`,
		`CREATE OR REPLACE FUNCTION fn_notify_new_events() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('new_events', NEW.event_id::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_notify_new_events ON event`,
		`CREATE TRIGGER trg_notify_new_events AFTER INSERT ON event
			FOR EACH ROW EXECUTE FUNCTION fn_notify_new_events()`,
	}
	if err := m.exec(ctx, stmts); err != nil {
		return err
	}
	m.logger.Info("listener schema installed")
	return nil
}

// RegisterListener upserts a listener_cursor row at 0 if absent, per §4.6's
// startup contract.
func (m *Migrator) RegisterListener(ctx context.Context, listenerID string) error {
	_, err := m.pool.Exec(ctx,
		`INSERT INTO listener_cursor (id, last_processed_event_id) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`,
		listenerID)
	if err != nil {
		return classifyError("Migrator.RegisterListener", err)
	}
	return nil
}

func (m *Migrator) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return classifyError("Migrator.exec", err)
		}
	}
	return nil
}
