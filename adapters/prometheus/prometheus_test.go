package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewESMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)

	require.NotNil(t, m)

	// Store operations
	timer := m.StoreLoadDuration("account")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	timer = m.StoreAppendDuration("account")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.EventsAppended("account", 5)

	// Repository operations
	timer = m.RepoLoadDuration("account")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	timer = m.RepoSaveDuration("account")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.ConcurrencyConflict("account")

	// Processor
	m.CommandProcessed("account", true)
	m.CommandProcessed("account", false)

	// Cache
	m.CacheHit("account")
	m.CacheMiss("account")

	// Snapshots
	timer = m.SnapshotLoadDuration("account")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	timer = m.SnapshotSaveDuration("account")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	// Consumer
	timer = m.ConsumerEventDuration("FundsDeposited", true)
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.ConsumerEventProcessed("FundsDeposited", true, true)
	m.ConsumerEventProcessed("FundsDeposited", false, false)

	m.ConsumerLag("my-consumer", 100)

	// Verify metrics were registered
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["eventfold_es_store_load_duration_seconds"])
	assert.True(t, names["eventfold_es_repo_load_duration_seconds"])
	assert.True(t, names["eventfold_es_commands_processed_total"])
	assert.True(t, names["eventfold_es_cache_hits_total"])
	assert.True(t, names["eventfold_es_consumer_lag"])
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
