package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/streamwright/eventfold/ports/kv"
)

type KvConfig struct {
	Connect Connector
	Bucket  string

	// MaxBytes limits the bucket size (default 1 MiB).
	MaxBytes int64
}

// KvStore implements the kv.Store port on a JetStream key-value bucket.
// Per-entry TTLs are stored alongside the value and checked lazily on Get,
// since bucket TTLs in JetStream apply to the whole bucket.
type KvStore struct {
	kv jetstream.KeyValue
}

type kvRecord struct {
	Data      []byte         `json:"data"`
	Meta      map[string]any `json:"meta,omitempty"`
	ExpiresAt time.Time      `json:"expires_at,omitzero"`
}

func NewKvStore(cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, _, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}

	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 1024 * 1024
	}

	jskv, err := js.CreateOrUpdateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		MaxBytes: maxBytes,
	})
	if err != nil {
		return nil, err
	}

	return &KvStore{kv: jskv}, nil
}

// sanitizeKey maps port keys to valid JetStream KV keys. The port uses "/"
// as a path separator, which KV rejects.
func sanitizeKey(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case '/', ':', ' ':
			out[i] = '.'
		default:
			out[i] = c
		}
	}
	return string(out)
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	rec := kvRecord{Data: entry.Data, Meta: entry.Meta}
	if opts.TTL > 0 {
		rec.ExpiresAt = time.Now().Add(opts.TTL)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = k.kv.Put(ctx, sanitizeKey(key), data)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (entry kv.Entry, err error) {
	v, err := k.kv.Get(ctx, sanitizeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return entry, kv.ErrNotFound
		}
		return entry, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var rec kvRecord
	if err = json.Unmarshal(v.Value(), &rec); err != nil {
		return entry, err
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		_ = k.kv.Delete(ctx, sanitizeKey(key))
		return entry, kv.ErrNotFound
	}

	return kv.Entry{Data: rec.Data, Meta: rec.Meta}, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	err := k.kv.Delete(ctx, sanitizeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	return nil
}

var _ kv.Store = (*KvStore)(nil)
