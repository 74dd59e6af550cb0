// Package storage uploads content to an IPFS node over its HTTP API and
// hands back the CID and the matching content-hash.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multicodec"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
)

var (
	ErrClientClosed  = errors.New("storage client closed")
	ErrClientNotInit = errors.New("storage client not initialised")
)

const (
	DefaultEndpoint         = "http://localhost:5001"
	DefaultMaxRetries       = 3
	DefaultRetryInitialWait = 200 * time.Millisecond
	DefaultRetryMaxWait     = 5 * time.Second
	DefaultTimeout          = time.Minute
)

type Config struct {
	// HTTP URL or multiaddr of the node's API, e.g. /ip4/127.0.0.1/tcp/5001
	Endpoint         string
	MaxRetries       uint64
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	// Timeout of a single API request.
	Timeout time.Duration
	// Ask the node for its version during Init.
	HealthCheck bool
}

// Uploaded is the result of UploadJSON.
type Uploaded struct {
	Cid         string `json:"cid"`
	ContentHash string `json:"contentHash"`
}

// Client is safe for concurrent use. It must be initialised before the first
// upload and cannot be used after Close.
type Client struct {
	cfg    Config
	closed atomic.Bool

	mu sync.RWMutex
	sh *shell.Shell
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryInitialWait <= 0 {
		cfg.RetryInitialWait = DefaultRetryInitialWait
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = DefaultRetryMaxWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg}
}

// Init connects to the node. It is a no-op when the client is already
// initialised.
func (c *Client) Init(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.mu.RLock()
	ready := c.sh != nil
	c.mu.RUnlock()
	if ready {
		return nil
	}
	return c.connect(ctx)
}

// Refresh drops the current connection and connects again.
func (c *Client) Refresh(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	endpoint, err := normaliseEndpoint(c.cfg.Endpoint)
	if err != nil {
		return err
	}
	sh := shell.NewShell(endpoint)
	sh.SetTimeout(c.cfg.Timeout)

	if c.cfg.HealthCheck {
		var version struct {
			Version string
			Commit  string
		}
		if err := sh.Request("version").Exec(ctx, &version); err != nil {
			return fmt.Errorf("ipfs node %s unreachable: %w", endpoint, err)
		}
		logrus.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"version":  version.Version,
		}).Info("connected to ipfs node")
	}

	c.mu.Lock()
	c.sh = sh
	c.mu.Unlock()
	return nil
}

func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	c.sh = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) current() (*shell.Shell, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sh == nil {
		return nil, ErrClientNotInit
	}
	return c.sh, nil
}

// Upload adds the content of r to the node, pinned, and returns its CIDv1.
// Transient failures are retried with exponential backoff.
func (c *Client) Upload(ctx context.Context, r io.Reader) (string, error) {
	if _, err := c.current(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialWait
	b.MaxInterval = c.cfg.RetryMaxWait
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)

	var out cid.Cid
	err = backoff.RetryNotify(func() error {
		sh, err := c.current()
		if err != nil {
			return backoff.Permanent(err)
		}
		hash, err := sh.Add(bytes.NewReader(data), shell.CidVersion(1), shell.Pin(true))
		if err != nil {
			return err
		}
		parsed, err := cid.Decode(hash)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("node returned invalid cid %q: %w", hash, err))
		}
		if parsed.Version() != 1 {
			return backoff.Permanent(fmt.Errorf("node returned cid %s, want version 1", hash))
		}
		out = parsed
		return nil
	}, policy, func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"error": err.Error(),
			"wait":  wait,
		}).Warn("upload failed, retrying")
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// UploadJSON uploads v encoded as JSON and returns its ipfs-ns content-hash.
func (c *Client) UploadJSON(ctx context.Context, v any) (*Uploaded, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.UploadBytes(ctx, data)
}

func (c *Client) UploadBytes(ctx context.Context, data []byte) (*Uploaded, error) {
	id, err := c.Upload(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	hash, err := contenthash.FromCidString(id, multicodec.Ipfs)
	if err != nil {
		return nil, err
	}
	return &Uploaded{Cid: id, ContentHash: hash}, nil
}

func normaliseEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "/") {
		return endpoint, nil
	}
	addr, err := ma.NewMultiaddr(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if host == "" || err != nil {
		return "", fmt.Errorf("endpoint %q needs a host and a tcp port", endpoint)
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
