package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout           = 10 * time.Second
	DefaultMaxBodySize int64 = 32 * 1024 * 1024

	dagCborAccept = "application/vnd.ipld.dag-cbor, application/vnd.ipld.raw"
)

// Observer receives every gateway attempt made by an Executor.
type Observer interface {
	ObserveAttempt(a Attempt)
}

type Options struct {
	Client *http.Client
	// Timeout bounds each gateway attempt, body included. Zero selects
	// DefaultTimeout, a negative value disables the deadline.
	Timeout     time.Duration
	MaxBodySize int64
	// URLBuilder replaces BuildURL, mostly for tests.
	URLBuilder func(cid string, name Name) string
	Observer   Observer
}

// Response is a fully read gateway response.
type Response struct {
	Gateway    Name
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Bytes() []byte {
	return r.Body
}

func (r *Response) Text() string {
	return string(r.Body)
}

// Executor performs HTTP fetches against the gateway list with retry.
type Executor struct {
	client      *http.Client
	timeout     time.Duration
	maxBodySize int64
	buildURL    func(string, Name) string
	observer    Observer
}

func NewExecutor(opts Options) *Executor {
	e := &Executor{
		client:      opts.Client,
		timeout:     opts.Timeout,
		maxBodySize: opts.MaxBodySize,
		buildURL:    opts.URLBuilder,
		observer:    opts.Observer,
	}
	if e.client == nil {
		e.client = http.DefaultClient
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxBodySize <= 0 {
		e.maxBodySize = DefaultMaxBodySize
	}
	if e.buildURL == nil {
		e.buildURL = BuildURL
	}
	return e
}

// Fetch GETs cid from the gateways in order, caching disabled. Non-2xx
// responses count as failures.
func (e *Executor) Fetch(ctx context.Context, cid string, order ...Name) (*Response, error) {
	return e.run(ctx, cid, order, nil)
}

// FetchDagCbor requests the raw block form of cid, asking for a DAG-CBOR
// payload, so gateways do not path-resolve or transcode it.
func (e *Executor) FetchDagCbor(ctx context.Context, cid string, order ...Name) (*Response, error) {
	return e.run(ctx, cid, order, func(req *http.Request) {
		q := req.URL.Query()
		q.Set("format", "raw")
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Accept", dagCborAccept)
	})
}

func (e *Executor) run(ctx context.Context, cid string, order []Name, prepare func(*http.Request)) (*Response, error) {
	op := func(ctx context.Context, name Name, url string) (*Response, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		return e.get(ctx, name, url, prepare)
	}
	var observe func(Attempt)
	if e.observer != nil {
		observe = e.observer.ObserveAttempt
	}
	resp, err := withGatewayRetry(ctx, cid, op, order, e.buildURL, observe)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Executor) get(ctx context.Context, name Name, url string, prepare func(*http.Request)) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &GatewayFetchError{Gateway: name, URL: url, Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")
	if prepare != nil {
		prepare(req)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &GatewayFetchError{Gateway: name, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &GatewayFetchError{Gateway: name, URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize+1))
	if err != nil {
		return nil, &GatewayFetchError{Gateway: name, URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > e.maxBodySize {
		return nil, &GatewayFetchError{Gateway: name, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("body exceeds %d bytes", e.maxBodySize)}
	}

	return &Response{
		Gateway:    name,
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// FetchWithGatewayRetry is a one-shot Executor.Fetch over the primary order.
func FetchWithGatewayRetry(ctx context.Context, cid string, opts Options) (*Response, error) {
	return NewExecutor(opts).Fetch(ctx, cid)
}

// FetchDagCborWithRetry is a one-shot Executor.FetchDagCbor over the primary order.
func FetchDagCborWithRetry(ctx context.Context, cid string, opts Options) (*Response, error) {
	return NewExecutor(opts).FetchDagCbor(ctx, cid)
}
