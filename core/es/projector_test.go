package es

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mkEnvelopes(t *testing.T, aggID string, startVersion Version, events ...any) []Envelope {
	t.Helper()
	envs := make([]Envelope, 0, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		envs = append(envs, Envelope{
			ID:            DefaultIDGenerator()(),
			Seq:           uint64(startVersion) + uint64(i) + 1,
			Version:       startVersion + Version(i+1),
			AggregateType: "counter",
			AggregateID:   aggID,
			Type:          getEventTypeOf(ev),
			OccurredAt:    time.Now(),
			Data:          data,
		})
	}
	return envs
}

func newCounterRegistry() *EventRegistry {
	r := NewRegistry()
	RegisterEventFor[AggregateCreatedEvent](r)
	(&counterAgg{}).Register(r)
	return r
}

func TestProjector_fold(t *testing.T) {
	reg := newCounterRegistry()
	p := NewProjector(slog.Default(), reg)

	a := newCounter("c1")
	envs := mkEnvelopes(t, "c1", 0,
		&counterIncremented{By: 2},
		&counterIncremented{By: 3},
	)

	require.NoError(t, p.Project(a, envs))
	require.Equal(t, 5, a.Count)
	require.EqualValues(t, 2, a.GetVersion())
	require.EqualValues(t, 2, a.GetGeneration())
	require.EqualValues(t, 2, a.GetSeq())
}

func TestProjector_emptyHistory(t *testing.T) {
	p := NewProjector(slog.Default(), newCounterRegistry())

	a := newCounter("c1")
	require.NoError(t, p.Project(a, nil))
	require.Equal(t, 0, a.Count)
	require.EqualValues(t, 0, a.GetVersion())
}

func TestProjector_deterministic(t *testing.T) {
	reg := newCounterRegistry()
	envs := mkEnvelopes(t, "c1", 0,
		&counterIncremented{By: 1},
		&counterIncremented{By: 10},
		&counterIncremented{By: 100},
	)

	a := newCounter("c1")
	b := newCounter("c1")
	require.NoError(t, NewProjector(slog.Default(), reg).Project(a, envs))
	require.NoError(t, NewProjector(slog.Default(), reg).Project(b, envs))

	require.Equal(t, a.Count, b.Count)
	require.Equal(t, a.GetVersion(), b.GetVersion())
	require.Equal(t, a.GetGeneration(), b.GetGeneration())
}

func TestProjector_versionGap(t *testing.T) {
	reg := newCounterRegistry()
	p := NewProjector(slog.Default(), reg)

	envs := mkEnvelopes(t, "c1", 0, &counterIncremented{By: 1})
	envs[0].Version = 5 // stream continuity broken

	a := newCounter("c1")
	err := p.Project(a, envs)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expect version 1")
	require.Equal(t, 0, a.Count)
}

func TestProjector_unknownEventTypeIsFatal(t *testing.T) {
	reg := newCounterRegistry()
	p := NewProjector(slog.Default(), reg)

	envs := mkEnvelopes(t, "c1", 0,
		&counterIncremented{By: 1},
		&counterIncremented{By: 2},
	)
	envs[1].Type = "schema.v2/NotYetKnown"

	a := newCounter("c1")
	err := p.Project(a, envs)
	require.ErrorIs(t, err, ErrUnknownEventType)

	// fold stops at the last successfully applied envelope, no partial
	// application of the failed one
	require.Equal(t, 1, a.Count)
	require.EqualValues(t, 1, a.GetVersion())
}
