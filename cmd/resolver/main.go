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
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/config"
	"github.com/IceFireDB/IceFireDB-Resolver/utils"
)

// BuildDate: Binary file compilation time
// BuildVersion: Binary compiled GIT version
var (
	BuildDate    string
	BuildVersion string
)

func main() {
	app := cli.NewApp()
	app.Name = "IceFireDB-Resolver"
	app.Usage = "resolve on-chain content-hashes through IPFS gateways"
	app.Version = fmt.Sprintf("%s (%s)", BuildVersion, BuildDate)
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:     "config,c",
			Usage:    "config file",
			Required: false,
			Value:    "config/config.yaml",
		},
		cli.StringFlag{
			Name:  "log,l",
			Usage: "log level: debug,info,warning,error, overrides log.level",
		},
	}
	app.Before = initConfig
	app.Commands = commands()
	app.Action = serve
	err := app.Run(os.Args)
	if err != nil {
		logrus.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

func initConfig(c *cli.Context) error {
	// .env is optional, RESOLVER_* variables may come from the environment too
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// Read configuration file configuration, the default path may be absent
	viper.SetConfigFile(c.GlobalString("config"))
	if err := viper.ReadInConfig(); err != nil {
		if c.GlobalIsSet("config") || !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	// Map configuration file content to structure
	if err := config.InitConfig(); err != nil {
		return err
	}

	level := config.Get().Log.Level
	if c.GlobalString("log") != "" {
		level = c.GlobalString("log")
	}
	if err := utils.SetupLogger(level, config.Get().Log.Format); err != nil {
		return err
	}
	return nil
}

func serve(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap(ctx, config.Get())
	if err != nil {
		return err
	}
	defer app.Close()
	debug()

	wg := sync.WaitGroup{}
	errSignal := make(chan error, 1)
	wg.Add(1)
	utils.GoWithRecover(func() {
		defer wg.Done()
		cfg := config.Get().Server
		errSignal <- app.server.Run(ctx, cfg.Address, cfg.ReadTimeout, cfg.WriteTimeout)
	}, nil)

	// Listening to the offline
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case err := <-errSignal:
			return err
		case sig := <-sigs:
			switch sig {
			case syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT:
				logrus.Info("Received shutdown signal, initiating graceful shutdown...")
				cancel()

				ok := make(chan struct{})
				go func() {
					wg.Wait()
					close(ok)
				}()
				select {
				case <-ok:
					logrus.Info("All goroutines have gracefully shut down.")
				case <-time.After(time.Second * 5):
					logrus.Warn("Context deadline exceeded, forcing shutdown.")
				}
				return nil

			case syscall.SIGHUP:
				if app.storage == nil {
					logrus.Info("Received SIGHUP signal, nothing to reload.")
					continue
				}
				if err := app.storage.Refresh(ctx); err != nil {
					logrus.Errorf("refresh storage client: %v", err)
					continue
				}
				logrus.Info("Received SIGHUP signal, storage connection refreshed.")
			}
		}
	}
}

func debug() {
	// Open pprof
	if config.Get().PprofDebug.Enable {
		utils.GoWithRecover(func() {
			addr := strconv.Itoa(int(config.Get().PprofDebug.Port))
			_ = http.ListenAndServe(":"+addr, nil)
		}, nil)
	}
}
