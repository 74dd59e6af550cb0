package cache

import (
	"context"
	"time"

	"github.com/philippgille/gokv/encoding"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/resolver"
)

// Source resolves content-hashes; *resolver.Resolver implements it.
type Source interface {
	Resolve(ctx context.Context, contentHash string) (*resolver.Resolution, error)
}

// Resolver serves resolutions from a Store and falls through to its Source
// on a miss. Concurrent misses for one content-hash share a single
// resolution.
//
// Values are passed through the gokv JSON codec before they are returned, so
// a hit and the miss that filled it yield identical values: numbers come back
// as float64 and byte strings as base64 text.
type Resolver struct {
	src   Source
	store Store
	codec encoding.Codec
	ttl   time.Duration

	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

func NewResolver(src Source, store Store, opts ...Option) *Resolver {
	r := &Resolver{
		src:   src,
		store: store,
		codec: encoding.JSON,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, contentHash string) (*resolver.Resolution, error) {
	key := contenthash.Normalize(contentHash)

	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("cache get failed")
	}
	if ok {
		res := &resolver.Resolution{}
		if err := r.codec.Unmarshal(data, res); err == nil {
			r.hits.Inc()
			return res, nil
		}
		logrus.WithField("key", key).Warn("cache entry undecodable, resolving again")
	}
	r.misses.Inc()

	// The shared fill outlives any single caller; the executor's per-attempt
	// timeout bounds it.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.fill(context.WithoutCancel(ctx), key, contentHash)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		res := &resolver.Resolution{}
		if err := r.codec.Unmarshal(out.Val.([]byte), res); err != nil {
			return nil, err
		}
		return res, nil
	}
}

// fill resolves contentHash and returns its encoded form. Callers decode
// their own copy.
func (r *Resolver) fill(ctx context.Context, key, contentHash string) ([]byte, error) {
	res, err := r.src.Resolve(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	data, err := r.codec.Marshal(res)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, key, data, r.ttl); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("cache set failed")
	}
	return data, nil
}

func (r *Resolver) FetchContent(ctx context.Context, contentHash string) (any, error) {
	res, err := r.Resolve(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (r *Resolver) Hits() uint64 {
	return r.hits.Load()
}

func (r *Resolver) Misses() uint64 {
	return r.misses.Load()
}
