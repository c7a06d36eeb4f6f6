// Package main provides the tether CLI entrypoint.
//
// Usage:
//
//	tether call -endpoint <url> -identifier <id> [options]
//	tether version
//
// Exit codes:
//   - 0: success
//   - 1: remote function returned an error
//   - 2: transport or usage failure
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tetherfn/tether/codec"
	"github.com/tetherfn/tether/config"
	"github.com/tetherfn/tether/log"
	"github.com/tetherfn/tether/stream"
	"github.com/tetherfn/tether/transport"
	"github.com/tetherfn/tether/types"
	"github.com/urfave/cli/v2"
)

const (
	exitSuccess      = 0
	exitRemoteError  = 1
	exitUsageFailure = 2
)

func main() {
	app := &cli.App{
		Name:    "tether",
		Usage:   "Invoke tethered functions over the dispatch route",
		Version: types.Version,
		Commands: []*cli.Command{
			callCommand(),
			versionCommand(),
		},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit
		// This branch is only reached if ExitErrHandler didn't exit
		os.Exit(exitUsageFailure)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitUsageFailure)
}

func callCommand() *cli.Command {
	return &cli.Command{
		Name:  "call",
		Usage: "Invoke a remote function by identifier",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Base URL of the serving process",
			},
			&cli.StringFlag{
				Name:     "identifier",
				Usage:    "Function identifier (16 hex characters)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "args",
				Usage: "Arguments as a JSON array",
				Value: "[]",
			},
			&cli.BoolFlag{
				Name:  "stream",
				Usage: "Consume a streamed response, printing items as they arrive",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to tether.yaml",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall call deadline (0 means no deadline)",
			},
		},
		Action: callAction,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the tether version",
		Action: func(c *cli.Context) error {
			fmt.Printf("tether %s (wire %s)\n", types.Version, types.WireVersion)
			return nil
		},
	}
}

func callAction(c *cli.Context) error {
	endpoint := c.String("endpoint")
	route := ""
	retries := 0
	timeout := c.Duration("timeout")
	logLevel := ""
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitUsageFailure)
		}
		if endpoint == "" {
			endpoint = cfg.Transport.Endpoint
		}
		route = cfg.Transport.DispatchRoute()
		retries = cfg.Transport.Retries
		if timeout == 0 {
			timeout = cfg.Transport.Timeout.Duration
		}
		logLevel = cfg.Log.Level
	}
	logger := log.NewLoggerAt(logLevel).Sugar()
	if endpoint == "" {
		return cli.Exit("an endpoint is required: pass -endpoint or -config", exitUsageFailure)
	}

	var rawArgs []any
	if err := json.Unmarshal([]byte(c.String("args")), &rawArgs); err != nil {
		return cli.Exit(fmt.Sprintf("invalid args JSON: %v", err), exitUsageFailure)
	}

	var opts []transport.Option
	if route != "" {
		opts = append(opts, transport.WithRoute(route))
	}
	if retries > 0 {
		opts = append(opts, transport.WithRetries(retries))
	}
	client, err := transport.NewClient(endpoint, opts...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid endpoint: %v", err), exitUsageFailure)
	}

	env, err := buildEnvelope(c.String("identifier"), rawArgs)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot encode arguments: %v", err), exitUsageFailure)
	}

	ctx, cancel := signalContext(timeout)
	defer cancel()

	logger.Debugf("invoking %s at %s (call %s)", env.Identifier, endpoint, env.CallID)
	if c.Bool("stream") {
		return streamCall(ctx, client, env)
	}
	return bufferedCall(ctx, client, env)
}

func buildEnvelope(identifier string, args []any) (*types.InvocationEnvelope, error) {
	encoded := make([]*types.Wire, len(args))
	for i, a := range args {
		w, err := codec.Encode(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		encoded[i] = w
	}
	return &types.InvocationEnvelope{
		WireVersion: types.WireVersion,
		CallID:      uuid.NewString(),
		Identifier:  identifier,
		Args:        encoded,
	}, nil
}

// signalContext builds the call context: canceled by SIGINT/SIGTERM,
// and bounded by timeout when nonzero.
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

func bufferedCall(ctx context.Context, client *transport.Client, env *types.InvocationEnvelope) error {
	resp, err := client.Invoke(ctx, env)
	if err != nil {
		return cli.Exit(fmt.Sprintf("call failed: %v", err), exitUsageFailure)
	}
	if resp.Error != nil {
		return cli.Exit(fmt.Sprintf("remote error (%s): %s", resp.Error.Kind, resp.Error.Message), exitRemoteError)
	}

	v, err := codec.Decode(resp.Result)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot decode result: %v", err), exitUsageFailure)
	}
	return printJSON(v)
}

func streamCall(ctx context.Context, client *transport.Client, env *types.InvocationEnvelope) error {
	body, err := client.InvokeStream(ctx, env)
	if err != nil {
		return cli.Exit(fmt.Sprintf("call failed: %v", err), exitUsageFailure)
	}

	for item, err := range stream.Pull(body) {
		if err != nil {
			return cli.Exit(fmt.Sprintf("stream failed: %v", err), exitRemoteError)
		}
		if err := printJSON(item); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot render result: %v", err), exitUsageFailure)
	}
	fmt.Println(string(out))
	return nil
}
