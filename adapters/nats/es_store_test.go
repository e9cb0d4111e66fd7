package nats

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/streamwright/eventfold/core/es"
)

func testEnvelope(aggType, aggID string, version es.Version) es.Envelope {
	return es.Envelope{
		ID:            gonanoid.Must(),
		OccurredAt:    time.Now(),
		AggregateType: aggType,
		AggregateID:   aggID,
		Type:          "testing/event",
		Version:       version,
		Data:          []byte(`{}`),
	}
}

func TestNats_EventStore(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	connectNatsC := NewTestContainer(t)
	store, err := NewEventStore(EventStoreConfig{
		Connect: connectNatsC,
		Log:     slog.Default(),
		MaxMsgs: 10_000,
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Run("stream info", func(t *testing.T) {
		si, err := store.stream.Info(t.Context())
		require.NoError(t, err)
		require.NotNil(t, si)
		require.Equal(t, defaultStreamName, si.Config.Name)
		require.Equal(t, uint64(1), si.Config.FirstSeq)
		require.Equal(t, []string{fmt.Sprintf("%s.>", defaultSubjectPrefix)}, si.Config.Subjects)
	})

	t.Run("append and load", func(t *testing.T) {
		res, err := store.Append(t.Context(), "test", "123", 0, []es.Envelope{
			testEnvelope("test", "123", 1),
			testEnvelope("test", "123", 2),
			testEnvelope("test", "123", 3),
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		require.EqualValues(t, 3, res.LastSeq)
		require.EqualValues(t, 3, res.LastVersion)

		envs, err := store.Load(t.Context(), "test", "123")
		require.NoError(t, err)
		require.Len(t, envs, 3)
		require.EqualValues(t, 1, envs[0].Version)
		require.EqualValues(t, 3, envs[2].Version)

		// start at version skips the prefix
		envs, err = store.Load(t.Context(), "test", "123", es.WithStartAtVersion(3))
		require.NoError(t, err)
		require.Len(t, envs, 1)
		require.EqualValues(t, 3, envs[0].Version)
	})

	t.Run("load not found", func(t *testing.T) {
		_, err := store.Load(t.Context(), "test", "missing")
		require.ErrorIs(t, err, es.ErrAggregateNotFound)
	})

	t.Run("concurrency conflict", func(t *testing.T) {
		_, err := store.Append(t.Context(), "test", "123", 0, []es.Envelope{
			testEnvelope("test", "123", 1),
		})
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
	})

	t.Run("version any", func(t *testing.T) {
		res, err := store.Append(t.Context(), "test", "123", es.VersionAny, []es.Envelope{
			testEnvelope("test", "123", 1), // stale version, store reassigns
		})
		require.NoError(t, err)
		require.EqualValues(t, 4, res.LastVersion)
	})

	t.Run("subscribe", func(t *testing.T) {
		sub, err := store.Subscribe(
			t.Context(),
			es.WithDeliverPolicy(es.DeliverAllPolicy),
			es.WithFilters(es.SubscribeFilter{AggregateType: "test", AggregateID: "123"}),
		)
		require.NoError(t, err)
		defer sub.Cancel()

		require.EqualValues(t, 4, sub.MaxSequence())

		var got []uint64
		for len(got) < 4 {
			select {
			case ev := <-sub.Chan():
				got = append(got, ev.Seq)
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for backlog, got %v", got)
			}
		}
		require.Equal(t, []uint64{1, 2, 3, 4}, got)
	})
}

func TestNats_EventStore_Repository(t *testing.T) {
	connectNatsC := NewTestContainer(t)
	store, err := NewEventStore(EventStoreConfig{
		Connect: connectNatsC,
		MaxMsgs: 10_000,
	})
	require.NoError(t, err)
	defer store.Close()

	reg := es.NewRegistry()
	es.RegisterEventFor[es.AggregateCreatedEvent](reg)

	type noted struct {
		Text string `json:"text"`
	}
	es.RegisterEventFor[noted](reg)

	res, err := es.AppendEvents(t.Context(), store, "note", "n1", 0,
		&noted{Text: "hello"},
		&noted{Text: "world"},
	)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.LastVersion)

	envs, err := store.Load(t.Context(), "note", "n1")
	require.NoError(t, err)
	require.Len(t, envs, 2)

	ev, err := reg.Decode(envs[1])
	require.NoError(t, err)
	require.Equal(t, "world", ev.(*noted).Text)
}
