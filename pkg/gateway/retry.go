package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Operation is run once per gateway with the URL built for it.
type Operation[T any] func(ctx context.Context, url string) (T, error)

// WithGatewayRetry runs op against each gateway of order, one at a time, and
// returns the first success. When order is empty the primary order is used.
// No deadline is imposed here; see WithAttemptTimeout.
func WithGatewayRetry[T any](ctx context.Context, cid string, op Operation[T], order ...Name) (T, error) {
	return withGatewayRetry(ctx, cid, func(ctx context.Context, _ Name, url string) (T, error) {
		return op(ctx, url)
	}, order, BuildURL, nil)
}

// WithAttemptTimeout bounds every single invocation of op by d.
func WithAttemptTimeout[T any](op Operation[T], d time.Duration) Operation[T] {
	if d <= 0 {
		return op
	}
	return func(ctx context.Context, url string) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return op(ctx, url)
	}
}

type namedOperation[T any] func(ctx context.Context, name Name, url string) (T, error)

func withGatewayRetry[T any](ctx context.Context, cid string, op namedOperation[T], order []Name,
	buildURL func(string, Name) string, observe func(Attempt)) (T, error) {
	var zero T
	if len(order) == 0 {
		order = primaryOrder[:]
	}

	aggErr := &AggregateGatewayError{Cid: cid}
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			aggErr.Last = err
			aggErr.Interrupted = true
			return zero, aggErr
		}

		url := buildURL(cid, name)
		start := time.Now()
		v, err := op(ctx, name, url)
		attempt := Attempt{Cid: cid, Gateway: name, URL: url, Err: err, Duration: time.Since(start)}
		if observe != nil {
			observe(attempt)
		}
		if err == nil {
			return v, nil
		}

		logrus.WithFields(logrus.Fields{
			"cid":     cid,
			"gateway": name,
			"error":   err.Error(),
		}).Debug("gateway attempt failed")
		aggErr.Attempts = append(aggErr.Attempts, attempt)
		aggErr.Last = err
	}
	if err := ctx.Err(); err != nil {
		aggErr.Last = err
		aggErr.Interrupted = true
	}
	return zero, aggErr
}
