package es

import (
	"errors"
	"fmt"
	"time"

	"github.com/streamwright/eventfold/core/es/assert"
)

var (
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnknownEventType    = errors.New("unknown event type")
	// ErrUnknownEvent is wrapped by aggregates when Apply receives an event
	// variant outside their closed set.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrUnknownCommand is wrapped by aggregates when Decide receives a
	// command variant outside their closed set.
	ErrUnknownCommand = errors.New("unknown command")
)

// Applier is the interface for types that can apply events to update their state.
type Applier interface {
	Apply(event any) error
}

// Aggregate is the core interface for event-sourced domain objects.
// It defines the contract that all aggregate roots must implement to work
// with the Projector, Processor and Repository.
//
// An aggregate maintains:
//   - Identity: type and ID that uniquely identify the aggregate stream
//   - Generation: number of events applied to the in-memory state
//   - Version: last committed stream version, used for optimistic concurrency
//   - Sequence: the global stream sequence number of the last applied event
//   - Uncommitted events: events raised but not yet persisted
//
// Generation and version coincide as long as every raised event is also
// applied. Under the processor's snapshot-isolation batch policy events are
// raised without being applied, so the two counters diverge until the next
// load; both are tracked so that neither the state nor the concurrency
// check goes stale silently.
type Aggregate interface {
	// GetAggType returns the aggregate type name used for stream identification.
	GetAggType() string
	// GetID returns the unique identifier of this aggregate instance.
	GetID() string
	// SetID sets the aggregate ID. Typically called during creation.
	SetID(string)

	// GetGeneration returns the number of events applied to the in-memory state.
	GetGeneration() Version
	bumpGeneration()

	// GetVersion returns the last committed stream version.
	GetVersion() Version
	setVersion(Version)

	// GetSeq returns the global stream sequence of the last applied event.
	GetSeq() uint64
	setSeq(uint64)

	// Create initializes a new aggregate with the given ID.
	Create(id string) error

	// Register registers event types with the provided Registrar.
	Register(r Registrar)
	// Raise records an event as uncommitted without applying it.
	Raise(event any)
	// Apply updates the aggregate state from an event. It must be total
	// over the aggregate's closed event set; unknown variants are errors.
	Apply(event any) error

	// Uncommitted returns a copy of events raised but not yet persisted.
	Uncommitted() []any
	// ClearUncommitted removes all uncommitted events after successful save.
	ClearUncommitted()
}

type AggregateCreatedEvent struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (e AggregateCreatedEvent) Validate() error {
	if e.CreatedAt.IsZero() {
		return errors.New("created at time is zero")
	}
	if e.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// BaseAggregate is an embeddable helper that tracks identity, generation,
// committed version, sequence and uncommitted events. The zero value is the
// seed state for an entity without history: generation 0, version 0, no
// events. State is only ever advanced through Apply via the engine helpers.
type BaseAggregate struct {
	CreatedAt time.Time `json:"created_at"`

	id          string
	generation  Version
	version     Version
	seq         uint64
	uncommitted []any
}

func (b *BaseAggregate) Apply(evt any) error {
	switch e := evt.(type) {
	case *AggregateCreatedEvent:
		b.CreatedAt = e.CreatedAt
		b.id = e.ID
		return nil
	}
	return fmt.Errorf("%w: base aggregate %T", ErrUnknownEvent, evt)
}

func (b *BaseAggregate) IsCreated() bool         { return b.CreatedAt.IsZero() == false }
func (b *BaseAggregate) GetCreatedAt() time.Time { return b.CreatedAt }

func (b *BaseAggregate) Create(id string) error {
	if b.IsCreated() {
		return fmt.Errorf("aggregate already created")
	}
	if id == "" {
		return fmt.Errorf("id is required")
	}
	return RaiseAndApply(b, &AggregateCreatedEvent{ID: id, CreatedAt: time.Now()})
}

func (b *BaseAggregate) GetID() string            { return b.id }
func (b *BaseAggregate) SetID(id string)          { b.id = id }
func (b *BaseAggregate) GetGeneration() Version   { return b.generation }
func (b *BaseAggregate) bumpGeneration()          { b.generation++ }
func (b *BaseAggregate) GetVersion() Version      { return b.version }
func (b *BaseAggregate) setVersion(v Version)     { b.version = v }
func (b *BaseAggregate) GetSeq() uint64           { return b.seq }
func (b *BaseAggregate) setSeq(s uint64)          { b.seq = s }

// Raise records an event as uncommitted. It does not touch state; pair it
// with Apply via RaiseAndApply unless the caller deliberately defers the
// state change (snapshot-isolation batches).
func (b *BaseAggregate) Raise(event any)   { b.uncommitted = append(b.uncommitted, event) }
func (b *BaseAggregate) ClearUncommitted() { b.uncommitted = nil }
func (b *BaseAggregate) Uncommitted() []any {
	out := make([]any, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

func (b *BaseAggregate) Checked(c assert.Cond, thenFunc func() error) error {
	err := c.Check()
	if err != nil {
		return err
	}
	return thenFunc()
}

// === Helpers ===

type raiseApplier interface {
	Raise(event any)
	Apply(event any) error
	bumpGeneration()
}

// RaiseAndApply records the events as uncommitted and applies each one to
// mutate state, bumping the generation once per applied event.
func RaiseAndApply(a raiseApplier, events ...any) (err error) {
	if len(events) == 0 {
		return
	}

	if err = validateEvents(events...); err != nil {
		return
	}

	for _, e := range events {
		a.Raise(e)
		err = a.Apply(e)
		if err != nil {
			return
		}
		a.bumpGeneration()
	}
	return
}

func validateEvents(events ...any) error {
	for _, e := range events {
		if ev, ok := e.(interface{ Validate() error }); ok {
			if err := ev.Validate(); err != nil {
				return fmt.Errorf("invalid event %T: %w", ev, err)
			}
		}
	}
	return nil
}

// ApplyAll applies the events without raising them, bumping the generation
// once per event. It is the plain fold used by replay and by callers that
// already hold committed events.
func ApplyAll(a Aggregate, events ...any) error {
	for _, e := range events {
		if err := a.Apply(e); err != nil {
			return err
		}
		a.bumpGeneration()
	}
	return nil
}
