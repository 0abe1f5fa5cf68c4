package dcb

import (
	"context"
	"time"
)

// PersistedEvent pairs a domain Event with the monotonic id the store
// assigned it at append time.
type PersistedEvent struct {
	ID        int64
	Event     Event
	InsertedAt time.Time
}

// AssignedID satisfies MatchableEvent.
func (p PersistedEvent) AssignedID() int64 { return p.ID }

// EventName satisfies MatchableEvent by delegating to the wrapped Event.
func (p PersistedEvent) EventName() string { return p.Event.EventName() }

// DomainIds satisfies MatchableEvent by delegating to the wrapped Event.
func (p PersistedEvent) DomainIds() DomainIdSet { return p.Event.DomainIds() }

// EventStream delivers PersistedEvent values in ascending id order. Next
// returns false when the stream is exhausted or an error occurred; callers
// must check Err after Next returns false. Close releases the underlying
// connection and must be called even after an error.
type EventStream interface {
	Next(ctx context.Context) bool
	Event() PersistedEvent
	Err() error
	Close() error
}

// EventStore is the persistent log: stream matching events in ascending id
// order, and append a batch under an optimistic-concurrency predicate.
//
// Append either persists every event in events, assigning each a fresh
// monotonic id and preserving input order in the returned slice, or — if
// any event matching validationFilter with id > expectedVersion exists at
// commit time — persists nothing and returns a *ConcurrencyError.
type EventStore interface {
	Stream(ctx context.Context, filter StreamFilter) (EventStream, error)
	Append(ctx context.Context, events []Event, validationFilter StreamFilter, expectedVersion int64) ([]PersistedEvent, error)
	// Head returns the store's highest assigned event id, 0 if empty.
	Head(ctx context.Context) (int64, error)
}

// ReadAll drains stream into a slice, closing it regardless of outcome.
// Intended for tests and small projections; production state folds should
// consume the stream incrementally.
func ReadAll(ctx context.Context, stream EventStream) ([]PersistedEvent, error) {
	defer stream.Close()
	var out []PersistedEvent
	for stream.Next(ctx) {
		out = append(out, stream.Event())
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
