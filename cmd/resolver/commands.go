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
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/config"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/storage"
)

var errMissingArg = errors.New("missing argument")

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API",
			Action: serve,
		},
		{
			Name:      "cid",
			Usage:     "decode a content-hash into its CID",
			ArgsUsage: "<content-hash>",
			Action: func(c *cli.Context) error {
				hash, err := firstArg(c)
				if err != nil {
					return err
				}
				id, err := contenthash.ToCid(hash)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"cid": id})
			},
		},
		{
			Name:      "fetch",
			Usage:     "resolve a content-hash and print its content",
			ArgsUsage: "<content-hash>",
			Action:    fetch,
		},
		{
			Name:      "urls",
			Usage:     "list the gateway URLs of a CID",
			ArgsUsage: "<cid>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "extended,e", Usage: "include the extended gateways"},
			},
			Action: func(c *cli.Context) error {
				id, err := firstArg(c)
				if err != nil {
					return err
				}
				urls := gateway.BuildPrimaryURLs(id)
				if c.Bool("extended") {
					urls = gateway.BuildExtendedURLs(id)
				}
				return printJSON(map[string][]string{"urls": urls})
			},
		},
		{
			Name:      "url",
			Usage:     "print the URL of a CID on one gateway",
			ArgsUsage: "<cid>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "gateway,g", Usage: "gateway name", Value: string(gateway.DefaultGateway)},
			},
			Action: func(c *cli.Context) error {
				id, err := firstArg(c)
				if err != nil {
					return err
				}
				name, ok := gateway.ParseName(c.String("gateway"))
				if !ok {
					logrus.Warnf("unknown gateway %q, using %s", c.String("gateway"), name)
				}
				return printJSON(map[string]string{"url": gateway.GetIpfsGatewayURL(id, name)})
			},
		},
		{
			Name:      "bytes32",
			Usage:     "convert a base58 sha2-256 IPFS hash to a 0x-prefixed bytes32",
			ArgsUsage: "<ipfs-hash>",
			Action: func(c *cli.Context) error {
				hash, err := firstArg(c)
				if err != nil {
					return err
				}
				b, err := contenthash.GetBytes32FromIpfsHash(hash)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"bytes32": b})
			},
		},
		{
			Name:      "ipfs-hash",
			Usage:     "convert a bytes32 digest back to a base58 IPFS hash",
			ArgsUsage: "<bytes32>",
			Action: func(c *cli.Context) error {
				b, err := firstArg(c)
				if err != nil {
					return err
				}
				hash, err := contenthash.GetIpfsHashFromBytes32(b)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"ipfsHash": hash})
			},
		},
		{
			Name:      "upload",
			Usage:     "upload a file, or stdin, to the configured IPFS node",
			ArgsUsage: "[file]",
			Action:    upload,
		},
	}
}

func fetch(c *cli.Context) error {
	hash, err := firstArg(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, config.Get())
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.resolver.Resolve(ctx, hash)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func upload(c *cli.Context) error {
	var r io.Reader = os.Stdin
	if c.NArg() > 0 {
		f, err := os.Open(c.Args().First())
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get().Storage
	client := storage.NewClient(storage.Config{
		Endpoint:     cfg.Endpoint,
		MaxRetries:   cfg.MaxRetries,
		RetryMaxWait: cfg.RetryMaxWait,
		HealthCheck:  cfg.HealthCheck,
	})
	if err := client.Init(ctx); err != nil {
		return err
	}
	defer client.Close()

	up, err := client.UploadBytes(ctx, data)
	if err != nil {
		return err
	}
	return printJSON(up)
}

func firstArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		return "", errMissingArg
	}
	return c.Args().First(), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
