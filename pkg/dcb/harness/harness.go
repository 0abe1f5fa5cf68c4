// Package harness provides given/when/then helpers for testing decisions
// and state folds without any database — pure in-memory application of a
// history of events followed by a process function, matched against an
// expected list of produced events or a domain error.
package harness

import (
	"errors"
	"reflect"

	"go-dcb/pkg/dcb"
)

// Given folds history onto initial in order, returning the resulting
// payload. It exercises exactly the same Mutate method the state store's
// fold uses, so a passing Given(history) alongside a passing store-backed
// load against the same history is the round-trip property the test suite
// leans on.
func Given[E dcb.Event, S dcb.DomainState[E]](initial S, history ...E) S {
	state := initial
	for _, event := range history {
		state.Mutate(event)
	}
	return state
}

// Case is the outcome of driving a decision function against a state
// produced by Given, ready for assertion against expected events or a
// domain error.
type Case struct {
	Events []dcb.Event
	Err    error
}

// When invokes process (typically a decision's Process closed over the
// already-folded state) and captures its result for Then/ThenError.
func When(process func() ([]dcb.Event, error)) Case {
	events, err := process()
	return Case{Events: events, Err: err}
}

// Then asserts the case produced exactly the expected events, compared by
// deep equality in order, with no error.
func (c Case) Then(expected ...dcb.Event) error {
	if c.Err != nil {
		return errors.New("expected success, got error: " + c.Err.Error())
	}
	if len(c.Events) != len(expected) {
		return errors.New("event count mismatch")
	}
	for i := range expected {
		if !reflect.DeepEqual(c.Events[i], expected[i]) {
			return errors.New("event at index does not match expected")
		}
	}
	return nil
}

// ThenError asserts the case failed as a domain error.
func (c Case) ThenError() error {
	if c.Err == nil {
		return errors.New("expected a domain error, got success")
	}
	if !dcb.IsDomainError(c.Err) {
		return errors.New("expected a *dcb.DomainError, got a different error kind")
	}
	return nil
}
