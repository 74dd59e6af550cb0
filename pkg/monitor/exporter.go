/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package monitor

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/resolver"
	"github.com/IceFireDB/IceFireDB-Resolver/utils"
)

const Namespace = "resolver"

var BasicLabels = []string{"host"}

const (
	ResultOK    = "ok"
	ResultError = "error"

	OutcomeOK           = "ok"
	OutcomeDecodeError  = "decode_error"
	OutcomeGatewayError = "gateway_error"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

func NewDesc(metricName string, docString string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "", metricName),
		docString,
		labels,
		nil)
}

// Monitor records gateway attempts and resolutions. It implements both
// gateway.Observer and resolver.Observer.
type Monitor struct {
	registry *prometheus.Registry

	gatewayAttempts  *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	resolutions      *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	resolveDurations prometheus.Histogram
}

var (
	_ gateway.Observer  = (*Monitor)(nil)
	_ resolver.Observer = (*Monitor)(nil)
)

// New builds a Monitor on its own registry. host becomes a constant label,
// the local hostname is used when it is empty.
func New(host string) *Monitor {
	if host == "" {
		host = utils.GetHostname()
	}
	constLabels := prometheus.Labels{"host": host}

	m := &Monitor{
		registry: prometheus.NewRegistry(),
		gatewayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "gateway_attempts_total",
			Help:        "Count of gateway fetch attempts",
			ConstLabels: constLabels,
		}, []string{"gateway", "result"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Name:        "gateway_attempt_duration_seconds",
			Help:        "Duration of a single gateway attempt",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"gateway"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "resolutions_total",
			Help:        "Count of content-hash resolutions by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "resolution_fallbacks_total",
			Help:        "Count of resolutions served by the text stage",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		resolveDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Name:        "resolution_duration_seconds",
			Help:        "Duration of a whole resolution",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.gatewayAttempts,
		m.attemptDuration,
		m.resolutions,
		m.fallbacks,
		m.resolveDurations,
	)
	return m
}

// Register adds an extra collector, such as a CacheExporter, to the registry.
func (m *Monitor) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) ObserveAttempt(a gateway.Attempt) {
	result := ResultOK
	if !a.Succeeded() {
		result = ResultError
	}
	m.gatewayAttempts.WithLabelValues(string(a.Gateway), result).Inc()
	m.attemptDuration.WithLabelValues(string(a.Gateway)).Observe(a.Duration.Seconds())
}

func (m *Monitor) ObserveResolution(o resolver.Outcome) {
	m.resolutions.WithLabelValues(outcomeLabel(o.Err)).Inc()
	m.resolveDurations.Observe(o.Duration.Seconds())
	if o.Resolution != nil && o.Resolution.Fallback != resolver.NoFallback {
		m.fallbacks.WithLabelValues(string(o.Resolution.Fallback)).Inc()
	}
}

func outcomeLabel(err error) string {
	var (
		decodeErr *contenthash.DecodeError
		aggErr    *gateway.AggregateGatewayError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &aggErr):
		if aggErr.Interrupted {
			return OutcomeCanceled
		}
		return OutcomeGatewayError
	case errors.As(err, &decodeErr):
		return OutcomeDecodeError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
