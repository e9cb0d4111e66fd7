// Package es provides an event sourcing engine: aggregates, an event store,
// a projector that folds history back into state, and a command processor.
//
// # Overview
//
// State is stored as a sequence of events rather than as current state.
// An aggregate's state is always the fold of its event stream; commands
// are validated against that state and produce new events.
//
// # Core Components
//
// Aggregate: the domain object that encapsulates state and its transitions.
// Events are raised within aggregates and applied to update internal state.
// Use [BaseAggregate] as an embeddable helper that tracks generation,
// committed version and uncommitted events.
//
//	type Account struct {
//	    es.BaseAggregate
//	    Balance int64
//	}
//
//	func (a *Account) Deposit(amount uint64) error {
//	    return es.RaiseAndApply(a, &FundsDeposited{Amount: amount})
//	}
//
// Projector: rebuilds aggregate state from persisted envelopes. Decoding
// goes through an [EventRegistry]; an unrecognized type tag surfaces as
// [ErrUnknownEventType] instead of corrupting the fold.
//
// Processor: runs batches of commands against an aggregate, collecting one
// [Outcome] per command. The [BatchPolicy] decides whether commands within
// a batch observe each other's effects.
//
// EventStore: the persistence layer. [EventStore.Load] retrieves events for
// an aggregate and [EventStore.Append] persists new events with optimistic
// concurrency control. Use [NewInMemoryStore] for testing or the NATS
// JetStream implementation in adapters/nats for production.
//
// Repository: the application-level interface for working with aggregates.
// Use [NewTypedRepository] for type-safe operations with generics:
//
//	repo := es.NewTypedRepository[*Account](log, store, registry)
//	acc, err := repo.GetByID(ctx, "acc-123")
//	acc.Deposit(100)
//	repo.Save(ctx, acc)
//
// Consumer: processes events from the store for building read models or
// triggering side effects. Supports checkpointing and live mode detection
// to distinguish historical replay from real-time events.
//
// # Concurrency Control
//
// Saves use optimistic concurrency via the [Version] type: the repository
// passes the aggregate's committed version as the expected version and the
// store rejects the append with [ErrConcurrencyConflict] when the stream
// has moved. Pass [WithOptimisticConcurrency](false) to append with
// [VersionAny] instead.
//
// For serialized access to a single aggregate, use
// [TypedRepository.WithTransaction]:
//
//	repo.WithTransaction(ctx, "acc-123", func(acc *Account) error {
//	    return acc.Deposit(100)
//	})
package es
