// Package resolver turns on-chain content-hashes into application data.
//
// Resolution runs in two strictly sequential stages. The raw block is first
// fetched and decoded as DAG-CBOR; if that fails for any reason the plain
// content is fetched and parsed as JSON, falling back to the raw text.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
)

type Encoding string

const (
	EncodingDagCbor Encoding = "dag-cbor"
	EncodingJSON    Encoding = "json"
	EncodingText    Encoding = "text"
)

// FallbackReason tags why the text stage ran. It never changes whether a
// resolution succeeds.
type FallbackReason string

const (
	NoFallback      FallbackReason = ""
	FallbackGateway FallbackReason = "gateway"
	FallbackCodec   FallbackReason = "codec"
)

// Fetcher is the gateway retry layer; *gateway.Executor implements it.
type Fetcher interface {
	Fetch(ctx context.Context, cid string, order ...gateway.Name) (*gateway.Response, error)
	FetchDagCbor(ctx context.Context, cid string, order ...gateway.Name) (*gateway.Response, error)
}

// ContentSource is anything that resolves a content-hash to decoded content.
type ContentSource interface {
	FetchContent(ctx context.Context, contentHash string) (any, error)
}

type Resolution struct {
	ContentHash string         `json:"contentHash"`
	Cid         string         `json:"cid"`
	Value       any            `json:"value"`
	Encoding    Encoding       `json:"encoding"`
	Gateway     gateway.Name   `json:"gateway"`
	Fallback    FallbackReason `json:"fallback,omitempty"`
}

// Outcome is reported to the Observer after every Resolve call.
type Outcome struct {
	Resolution *Resolution
	Err        error
	Duration   time.Duration
}

type Observer interface {
	ObserveResolution(o Outcome)
}

// CodecDecodeError means a gateway served the block but it is not DAG-CBOR.
type CodecDecodeError struct {
	Cid     string
	Gateway gateway.Name
	Err     error
}

func (e *CodecDecodeError) Error() string {
	return fmt.Sprintf("decode %s from %s as dag-cbor: %v", e.Cid, e.Gateway, e.Err)
}

func (e *CodecDecodeError) Unwrap() error {
	return e.Err
}

type Option func(*Resolver)

func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithOrder overrides the gateway order used by both stages.
func WithOrder(order ...gateway.Name) Option {
	return func(r *Resolver) {
		r.order = append([]gateway.Name(nil), order...)
	}
}

// Resolver is stateless and safe for concurrent use.
type Resolver struct {
	fetcher  Fetcher
	order    []gateway.Name
	observer Observer
}

func New(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		order:   gateway.PrimaryOrder(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decodes contentHash and fetches its content. It fails with a
// *contenthash.DecodeError for malformed input, before any network call, and
// with a *gateway.AggregateGatewayError when both stages ran out of gateways.
func (r *Resolver) Resolve(ctx context.Context, contentHash string) (res *Resolution, err error) {
	start := time.Now()
	if r.observer != nil {
		defer func() {
			r.observer.ObserveResolution(Outcome{Resolution: res, Err: err, Duration: time.Since(start)})
		}()
	}

	cid, err := contenthash.ToCid(contentHash)
	if err != nil {
		return nil, err
	}

	res, stageErr := r.resolveDagCbor(ctx, cid)
	if stageErr == nil {
		res.ContentHash = contentHash
		return res, nil
	}

	reason := FallbackGateway
	var codecErr *CodecDecodeError
	if errors.As(stageErr, &codecErr) {
		reason = FallbackCodec
	}
	logrus.WithFields(logrus.Fields{
		"cid":    cid,
		"reason": reason,
		"error":  stageErr.Error(),
	}).Debug("dag-cbor stage failed, falling back to text")

	res, err = r.resolveText(ctx, cid)
	if err != nil {
		return nil, err
	}
	res.ContentHash = contentHash
	res.Fallback = reason
	return res, nil
}

// FetchContent returns only the decoded value of Resolve: a structured
// value, or a string when the content is neither DAG-CBOR nor JSON.
func (r *Resolver) FetchContent(ctx context.Context, contentHash string) (any, error) {
	res, err := r.Resolve(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (r *Resolver) resolveDagCbor(ctx context.Context, cid string) (*Resolution, error) {
	resp, err := r.fetcher.FetchDagCbor(ctx, cid, r.order...)
	if err != nil {
		return nil, err
	}
	v, err := decodeDagCbor(resp.Bytes())
	if err != nil {
		return nil, &CodecDecodeError{Cid: cid, Gateway: resp.Gateway, Err: err}
	}
	return &Resolution{Cid: cid, Value: v, Encoding: EncodingDagCbor, Gateway: resp.Gateway}, nil
}

func (r *Resolver) resolveText(ctx context.Context, cid string) (*Resolution, error) {
	resp, err := r.fetcher.Fetch(ctx, cid, r.order...)
	if err != nil {
		return nil, err
	}
	text := resp.Text()
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return &Resolution{Cid: cid, Value: v, Encoding: EncodingJSON, Gateway: resp.Gateway}, nil
	}
	return &Resolution{Cid: cid, Value: text, Encoding: EncodingText, Gateway: resp.Gateway}, nil
}

// FetchContentAs resolves contentHash and hands the value back as T. Values
// already of type T are returned as is; maps and slices are decoded into T
// following its json tags.
func FetchContentAs[T any](ctx context.Context, src ContentSource, contentHash string) (T, error) {
	var out T
	v, err := src.FetchContent(ctx, contentHash)
	if err != nil {
		return out, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(v); err != nil {
		return out, fmt.Errorf("content of %s does not fit %T: %w", contentHash, out, err)
	}
	return out, nil
}
