/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Command rldp-ping exercises two RLDP nodes over plain UDP: one side
// serves an echo subscriber, the other issues queries and reports the
// adaptive roundtrip estimate.
package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/overlaynet/rldp/observability/prom"
	"github.com/overlaynet/rldp/rldp"
	"github.com/overlaynet/rldp/tl"
	"github.com/overlaynet/rldp/transport"
	"github.com/overlaynet/rldp/transport/rawudp"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

type echoSubscriber struct{}

func (echoSubscriber) TryConsumeQuery(query *tl.Query, peers transport.Peers) (bool, *tl.Answer, error) {
	return true, &tl.Answer{Data: query.Data}, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "rldp-ping"
	app.Usage = "query/answer smoke tool for the rldp node"
	app.Version = VERSION
	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "run an echo responder",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "listen,l", Value: ":4590", Usage: "udp listen address"},
				cli.StringFlag{Name: "name", Value: "server", Usage: "local peer name"},
				cli.StringFlag{Name: "metrics", Value: "", Usage: "prometheus listen address (empty = off)"},
				cli.IntFlag{Name: "loglevel", Value: rldp.LogLevelInfo, Usage: "0..3"},
			},
			Action: serve,
		},
		{
			Name:  "ping",
			Usage: "issue queries against a responder",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "listen,l", Value: ":4591", Usage: "udp listen address"},
				cli.StringFlag{Name: "remote,r", Value: "127.0.0.1:4590", Usage: "responder address"},
				cli.StringFlag{Name: "name", Value: "client", Usage: "local peer name"},
				cli.StringFlag{Name: "peer", Value: "server", Usage: "responder peer name"},
				cli.IntFlag{Name: "size", Value: 64, Usage: "query payload bytes"},
				cli.IntFlag{Name: "count", Value: 10, Usage: "number of queries"},
				cli.IntFlag{Name: "loglevel", Value: rldp.LogLevelError, Usage: "0..3"},
			},
			Action: ping,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newNode(c *cli.Context, subscribers []rldp.Subscriber) (*rldp.Node, *rawudp.Bind, error) {
	bind, err := rawudp.Listen(c.String("listen"), c.String("name"))
	if err != nil {
		return nil, nil, err
	}
	logger := rldp.NewLogger(c.Int("loglevel"), fmt.Sprintf("(%s) ", c.String("name")))
	node := rldp.NewNode(bind, subscribers, logger)
	bind.Subscribe(node)
	return node, bind, nil
}

func serve(c *cli.Context) error {
	node, bind, err := newNode(c, []rldp.Subscriber{echoSubscriber{}})
	if err != nil {
		return err
	}
	defer bind.Close()

	if addr := c.String("metrics"); addr != "" {
		reg := prom.NewRegistry()
		node.Observe(prom.NewObserver(reg))
		go func() {
			if err := http.ListenAndServe(addr, prom.Handler(reg)); err != nil {
				fmt.Fprintln(os.Stderr, errors.Wrap(err, "metrics"))
			}
		}()
	}

	fmt.Printf("serving on %s as %q\n", c.String("listen"), c.String("name"))
	select {}
}

func ping(c *cli.Context) error {
	node, bind, err := newNode(c, nil)
	if err != nil {
		return err
	}
	defer bind.Close()

	remoteKey, err := bind.AddPeer(c.String("peer"), c.String("remote"))
	if err != nil {
		return err
	}
	peers := transport.NewPeers(bind.Key(), remoteKey)

	payload := make([]byte, c.Int("size"))
	if _, err := rand.Read(payload); err != nil {
		return err
	}

	var roundtrip uint64
	for i := 0; i < c.Int("count"); i++ {
		start := time.Now()
		answer, rtt, err := node.Query(payload, 0, peers, roundtrip)
		roundtrip = rtt
		switch {
		case err != nil:
			fmt.Printf("query %d: error: %v\n", i, err)
		case answer == nil:
			fmt.Printf("query %d: no answer (estimate %d ms)\n", i, rtt)
		default:
			fmt.Printf("query %d: %d bytes in %v (estimate %d ms)\n",
				i, len(answer), time.Since(start).Round(time.Microsecond), rtt)
		}
	}
	return nil
}
