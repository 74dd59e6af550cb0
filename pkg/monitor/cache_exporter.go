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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// CacheStats is implemented by caches that keep hit and miss counters.
type CacheStats interface {
	Hits() uint64
	Misses() uint64
}

var (
	cacheHitsDescKey   = "cache.hits"
	cacheMissesDescKey = "cache.misses"

	cacheLabels = append(append([]string{}, BasicLabels...), "store")

	cacheCounterVec = map[string]*prometheus.Desc{
		cacheHitsDescKey:   NewDesc("cache_hits_total", "Count of content cache hits", cacheLabels),
		cacheMissesDescKey: NewDesc("cache_misses_total", "Count of content cache misses", cacheLabels),
	}
)

// CacheExporter reads the counters of a cache on every scrape.
type CacheExporter struct {
	host    string
	store   string
	stats   CacheStats
	metrics map[string]*prometheus.Desc
}

func NewCacheExporter(host, store string, stats CacheStats) *CacheExporter {
	return &CacheExporter{
		host:    host,
		store:   store,
		stats:   stats,
		metrics: cacheCounterVec,
	}
}

func (c *CacheExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m
	}
}

func (c *CacheExporter) Collect(ch chan<- prometheus.Metric) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Error("cache prometheus collect panic:", r)
		}
	}()
	ch <- prometheus.MustNewConstMetric(
		c.metrics[cacheHitsDescKey],
		prometheus.CounterValue,
		float64(c.stats.Hits()),
		c.host,
		c.store,
	)
	ch <- prometheus.MustNewConstMetric(
		c.metrics[cacheMissesDescKey],
		prometheus.CounterValue,
		float64(c.stats.Misses()),
		c.host,
		c.store,
	)
}
