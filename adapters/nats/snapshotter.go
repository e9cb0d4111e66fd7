package nats

import (
	"github.com/streamwright/eventfold/core/es"
)

// NewSnapshotter creates a snapshotter backed by a JetStream key-value bucket.
func NewSnapshotter(cfg KvConfig) (*es.KVSnapshotter, error) {
	kvs, err := NewKvStore(cfg)
	if err != nil {
		return nil, err
	}
	return es.NewKVSnapshotter(kvs), nil
}

// NewCpStore creates a consumer checkpoint store backed by a JetStream
// key-value bucket. Checkpoints survive restarts.
func NewCpStore(cfg KvConfig, consumerName string) (*es.KVCpStore, error) {
	kvs, err := NewKvStore(cfg)
	if err != nil {
		return nil, err
	}
	return es.NewKVCpStore(kvs, consumerName), nil
}
