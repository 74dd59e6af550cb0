package gateway

import (
	"fmt"
	"time"
)

// Attempt records the outcome of trying one gateway.
type Attempt struct {
	Cid      string
	Gateway  Name
	URL      string
	Err      error
	Duration time.Duration
}

func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

// GatewayFetchError is a single gateway failing at the HTTP layer. It is
// always retried against the next gateway.
type GatewayFetchError struct {
	Gateway    Name
	URL        string
	StatusCode int
	Err        error
}

func (e *GatewayFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Gateway, e.Err)
	}
	return fmt.Sprintf("gateway %s returned HTTP %d", e.Gateway, e.StatusCode)
}

func (e *GatewayFetchError) Unwrap() error {
	return e.Err
}

// AggregateGatewayError is returned once every gateway in the order failed.
// Only the last failure is carried in the message.
type AggregateGatewayError struct {
	Cid      string
	Attempts []Attempt
	Last     error
	// Interrupted is set when the caller's context ended the loop, as opposed
	// to every gateway failing on its own.
	Interrupted bool
}

func (e *AggregateGatewayError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("failed to fetch %s: no gateways to try", e.Cid)
	}
	return fmt.Sprintf("failed to fetch %s from all gateways: %v", e.Cid, e.Last)
}

func (e *AggregateGatewayError) Unwrap() error {
	return e.Last
}
