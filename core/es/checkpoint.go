package es

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streamwright/eventfold/ports/kv"
)

var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// CpStore persists the last processed sequence for one consumer.
type CpStore interface {
	Get() (lastSeq uint64, err error)
	Set(lastSeq uint64) error
}

type InMemCpStore struct {
	mu sync.RWMutex
	v  uint64
}

func NewInMemCpStore() *InMemCpStore {
	return &InMemCpStore{}
}

func (s *InMemCpStore) Get() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v, nil
}

func (s *InMemCpStore) Set(v uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	return nil
}

var _ CpStore = (*InMemCpStore)(nil)

// === KV checkpoint store ===

// KVCpStore persists the checkpoint in a kv.Store under a fixed key per
// consumer name, so checkpoints survive restarts when the kv backend is
// durable.
type KVCpStore struct {
	store kv.Store
	key   string
}

func NewKVCpStore(store kv.Store, consumerName string) *KVCpStore {
	return &KVCpStore{
		store: store,
		key:   fmt.Sprintf("checkpoint/%s", consumerName),
	}
}

func (s *KVCpStore) Get() (uint64, error) {
	v, err := kv.Get[uint64](context.Background(), s.store, s.key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func (s *KVCpStore) Set(v uint64) error {
	return kv.Put(context.Background(), s.store, s.key, v, kv.PutOptions{})
}

var _ CpStore = (*KVCpStore)(nil)
