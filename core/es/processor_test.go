package es

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessor_defaultPolicy(t *testing.T) {
	p := NewProcessor(slog.Default())
	require.Equal(t, SnapshotIsolation, p.Policy())
}

func TestProcessor_acceptedCommandRaisesEvents(t *testing.T) {
	a := newCounter("c1")
	p := NewProcessor(slog.Default())

	outcomes := p.Process(a, &incCounter{By: 2})
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Accepted())
	require.Len(t, outcomes[0].Events, 1)

	// snapshot isolation raises without applying
	require.Equal(t, 0, a.Count)
	require.Len(t, a.Uncommitted(), 1)
	require.EqualValues(t, 0, a.GetGeneration())
}

func TestProcessor_chainedValidationApplies(t *testing.T) {
	a := newCounter("c1")
	p := NewProcessor(slog.Default(), WithBatchPolicy(ChainedValidation))

	outcomes := p.Process(a, &incCounter{By: 2}, &incCounter{By: 3})
	require.Len(t, outcomes, 2)
	require.True(t, outcomes[0].Accepted())
	require.True(t, outcomes[1].Accepted())

	require.Equal(t, 5, a.Count)
	require.Len(t, a.Uncommitted(), 2)
	require.EqualValues(t, 2, a.GetGeneration())
}

func TestProcessor_rejectionDoesNotAbortBatch(t *testing.T) {
	a := newCounter("c1")
	p := NewProcessor(slog.Default(), WithBatchPolicy(ChainedValidation))

	outcomes := p.Process(a,
		&incCounter{Correlated: Correlated{Correlation: "a"}, By: 1},
		&incCounter{Correlated: Correlated{Correlation: "b"}, By: -1},
		&incCounter{Correlated: Correlated{Correlation: "c"}, By: 1},
	)

	require.Len(t, outcomes, 3)
	require.True(t, outcomes[0].Accepted())
	require.Error(t, outcomes[1].Err)
	require.True(t, outcomes[2].Accepted())

	require.Equal(t, []string{"a", "b", "c"}, []string{
		outcomes[0].Correlation, outcomes[1].Correlation, outcomes[2].Correlation,
	})
	require.Equal(t, 2, a.Count)
}

func TestProcessor_zeroEventAcceptance(t *testing.T) {
	a := newCounter("c1")
	p := NewProcessor(slog.Default())

	outcomes := p.Process(a, &noopCmd{})
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, ErrNoEvents)
	require.Empty(t, a.Uncommitted())
}

func TestProcessor_unknownCommand(t *testing.T) {
	type mystery struct{ Correlated }

	a := newCounter("c1")
	p := NewProcessor(slog.Default())

	outcomes := p.Process(a, &mystery{})
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, ErrUnknownCommand)
}
