package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/philippgille/gokv/util"
	"go.uber.org/atomic"
)

const (
	MB = 1024 * 1024

	defaultMaxCost     = 64 * MB
	defaultNumCounters = 1e6
)

// MemoryStore is an in-process Store on ristretto. The cost of an entry is
// its size in bytes.
type MemoryStore struct {
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewMemoryStore builds a MemoryStore holding at most maxCost bytes.
func NewMemoryStore(maxCost int64) (*MemoryStore, error) {
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		MaxCost:            maxCost,
		NumCounters:        defaultNumCounters,
		BufferItems:        64,
		IgnoreInternalCost: true,
		Cost: func(value []byte) int64 {
			return int64(len(value))
		},
	})
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrStoreClosed
	}
	if err := util.CheckKey(key); err != nil {
		return nil, false, err
	}
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

// Set stores value and waits until it is visible to Get. ristretto may still
// reject an entry under pressure, which is not an error.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	if err := util.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if ttl > 0 {
		m.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	} else {
		m.cache.Set(key, value, int64(len(value)))
	}
	m.cache.Wait()
	return nil
}

func (m *MemoryStore) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.cache.Close()
	}
	return nil
}
