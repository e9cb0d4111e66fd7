package es

import (
	"errors"
	"fmt"
)

// counterAgg is a minimal deciding aggregate used across the engine tests.
type counterAgg struct {
	BaseAggregate

	Count int `json:"count"`
}

type counterIncremented struct {
	By int `json:"by"`
}

type (
	incCounter struct {
		Correlated
		By int
	}
	noopCmd struct{ Correlated }
)

func newCounter(id string) *counterAgg {
	a := &counterAgg{}
	a.SetID(id)
	return a
}

func (a *counterAgg) GetAggType() string { return "counter" }

func (a *counterAgg) Register(r Registrar) {
	RegisterEvents(r, Event[counterIncremented]())
}

func (a *counterAgg) Apply(event any) error {
	switch e := event.(type) {
	case *counterIncremented:
		a.Count += e.By
		return nil
	}
	return a.BaseAggregate.Apply(event)
}

func (a *counterAgg) Decide(cmd Command) ([]any, error) {
	switch c := cmd.(type) {
	case *incCounter:
		if c.By <= 0 {
			return nil, errors.New("increment must be positive")
		}
		return []any{&counterIncremented{By: c.By}}, nil
	case *noopCmd:
		// accepted but silent, the processor must flag this
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

var _ DecidingAggregate = (*counterAgg)(nil)
