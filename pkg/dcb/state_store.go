package dcb

import "context"

// Snapshotter loads and stores a single StatePart's folded payload, keyed
// by the part's name and canonical query string. Implementations live in
// package postgres; this package only depends on the interface.
type Snapshotter interface {
	// LoadInto attempts to hydrate part in place from a stored snapshot.
	// It is a no-op (part left at its zero Version) if no snapshot exists
	// or the stored name/query don't match what part's current name/query
	// require.
	LoadInto(ctx context.Context, part StatePartHandle) error
	// Store writes part's current payload if AppliedEventsCount exceeds
	// the snapshotter's configured threshold, using a conditional update
	// so a concurrent snapshotter can never regress a stored version.
	Store(ctx context.Context, part StatePartHandle) error
}

// StateStore folds a StateSet's composite query against an EventStore and
// persists a decision's resulting events back through it. Two variants
// share this interface: one that always folds from scratch, and one that
// first attempts to hydrate each part from a Snapshotter.
type StateStore interface {
	Load(ctx context.Context, set *StateSet) (version int64, err error)
	Persist(ctx context.Context, set *StateSet, loadedVersion int64, events []Event, validationFilter StreamFilter) ([]PersistedEvent, error)
}

// NoSnapshotStateStore folds state from the event log on every load, never
// consulting a snapshotter.
type NoSnapshotStateStore struct {
	EventStore EventStore
}

// NewNoSnapshotStateStore builds a StateStore backed directly by store.
func NewNoSnapshotStateStore(store EventStore) *NoSnapshotStateStore {
	return &NoSnapshotStateStore{EventStore: store}
}

func (s *NoSnapshotStateStore) Load(ctx context.Context, set *StateSet) (int64, error) {
	return foldFromLog(ctx, s.EventStore, set)
}

func (s *NoSnapshotStateStore) Persist(ctx context.Context, set *StateSet, loadedVersion int64, events []Event, validationFilter StreamFilter) ([]PersistedEvent, error) {
	return s.EventStore.Append(ctx, events, validationFilter, loadedVersion)
}

// SnapshottingStateStore first hydrates each of the StateSet's parts from
// Snapshotter (in place, via the type-erased StatePartHandle view), streams
// the remaining events from the rebased union query, then writes a fresh
// snapshot of each part back out.
type SnapshottingStateStore struct {
	EventStore  EventStore
	Snapshotter Snapshotter
}

// NewSnapshottingStateStore builds a StateStore that consults snapshotter
// before and after folding from store.
func NewSnapshottingStateStore(store EventStore, snapshotter Snapshotter) *SnapshottingStateStore {
	return &SnapshottingStateStore{EventStore: store, Snapshotter: snapshotter}
}

func (s *SnapshottingStateStore) Load(ctx context.Context, set *StateSet) (int64, error) {
	for _, p := range set.parts {
		if err := s.Snapshotter.LoadInto(ctx, p); err != nil {
			return 0, err
		}
	}
	version, err := foldFromLog(ctx, s.EventStore, set)
	if err != nil {
		return 0, err
	}
	for _, p := range set.parts {
		if err := s.Snapshotter.Store(ctx, p); err != nil {
			return 0, err
		}
	}
	return version, nil
}

func (s *SnapshottingStateStore) Persist(ctx context.Context, set *StateSet, loadedVersion int64, events []Event, validationFilter StreamFilter) ([]PersistedEvent, error) {
	return s.EventStore.Append(ctx, events, validationFilter, loadedVersion)
}

func foldFromLog(ctx context.Context, store EventStore, set *StateSet) (int64, error) {
	stream, err := store.Stream(ctx, set.QueryAll())
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	for stream.Next(ctx) {
		set.MutateAll(stream.Event())
	}
	if err := stream.Err(); err != nil {
		return 0, err
	}
	return set.Version(), nil
}
