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

package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/cache"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/catalog"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/config"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/monitor"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/resolver"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/server"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/storage"
	"github.com/IceFireDB/IceFireDB-Resolver/utils"
)

type contentResolver interface {
	server.Resolver
	resolver.ContentSource
}

// application wires every component from the configuration.
type application struct {
	monitor  *monitor.Monitor
	resolver contentResolver
	storage  *storage.Client
	server   *server.Server

	closers []func() error
}

func bootstrap(ctx context.Context, cfg *config.Config) (*application, error) {
	if cfg == nil {
		return nil, config.ErrConfigNotInit
	}
	app := &application{monitor: monitor.New(utils.GetHostname())}

	executor := gateway.NewExecutor(gateway.Options{
		Timeout:     cfg.Gateway.Timeout,
		MaxBodySize: cfg.Gateway.MaxBodySize,
		Observer:    app.monitor,
	})
	base := resolver.New(executor,
		resolver.WithOrder(cfg.GatewayOrder()...),
		resolver.WithObserver(app.monitor),
	)
	app.resolver = base

	if cfg.Cache.Enable {
		store, err := newCacheStore(ctx, cfg.Cache)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, store.Close)
		cached := cache.NewResolver(base, store, cache.WithTTL(cfg.Cache.TTL))
		if err := app.monitor.Register(monitor.NewCacheExporter(utils.GetHostname(), cfg.Cache.Type, cached)); err != nil {
			app.Close()
			return nil, err
		}
		app.resolver = cached
	}

	if cfg.Storage.Enable {
		app.storage = storage.NewClient(storage.Config{
			Endpoint:     cfg.Storage.Endpoint,
			MaxRetries:   cfg.Storage.MaxRetries,
			RetryMaxWait: cfg.Storage.RetryMaxWait,
			HealthCheck:  cfg.Storage.HealthCheck,
		})
		if err := app.storage.Init(ctx); err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, app.storage.Close)
	}

	opts := []server.Option{
		server.WithAssembler(catalog.NewAssembler(app.resolver, cfg.Server.FanOutLimit)),
	}
	if app.storage != nil {
		opts = append(opts, server.WithUploader(app.storage))
	}
	if cfg.Metrics.Enable {
		opts = append(opts, server.WithMetrics(cfg.Metrics.Path, app.monitor.Handler()))
	}
	app.server = server.New(app.resolver, opts...)
	return app, nil
}

func newCacheStore(ctx context.Context, cfg config.CacheS) (cache.Store, error) {
	switch cfg.Type {
	case config.CacheTypeRedis:
		return cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
	case config.CacheTypeMemory:
		return cache.NewMemoryStore(cfg.MaxCost)
	}
	return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.Warnf("close: %v", err)
		}
	}
	a.closers = nil
}
