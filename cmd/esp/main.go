// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TechnicallyWeb3/esp/lib/config"
	"github.com/TechnicallyWeb3/esp/lib/engine"
	"github.com/TechnicallyWeb3/esp/lib/identity"
	"github.com/TechnicallyWeb3/esp/lib/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand shares: the streams, the parsed
// global flags, and the engine opened on first use.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile string
	caller     string
	overrides  *config.FlagOverrides

	config *config.Config
	logger *logging.Logger
	engine *engine.Engine
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "esp",
		Short: "Content-addressed storage with royalty metering",
		Long: `esp stores resources as content-addressed chunks, meters royalties
when one publisher's content is re-registered by another, and serves byte
ranges assembled from chunks.

Configuration comes from --config, then ESP_CONFIG, then built-in
defaults (an in-memory store that lasts for one command).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file path")
	flags.StringVar(&a.caller, "caller", os.Getenv("ESP_CALLER"), "identity to act as (default $ESP_CALLER)")
	a.overrides = config.BindFlags(flags)

	root.AddCommand(
		a.addressCommand(),
		a.putCommand(),
		a.getCommand(),
		a.headCommand(),
		a.rmCommand(),
		a.chunksCommand(),
		a.headerCommand(),
		a.royaltyCommand(),
	)
	return root
}

// load resolves the configuration once.
func (a *app) load() (*config.Config, error) {
	if a.config != nil {
		return a.config, nil
	}
	var cfg *config.Config
	var err error
	switch {
	case a.configFile != "":
		cfg, err = config.LoadFile(a.configFile)
	case os.Getenv("ESP_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a.overrides.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a.config = cfg
	return cfg, nil
}

// open returns the engine, opening it on first use.
func (a *app) open(ctx context.Context) (*engine.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	a.logger, err = logging.New(cfg.Logging, a.stderr)
	if err != nil {
		return nil, err
	}
	a.engine, err = engine.Open(ctx, engine.Options{Config: cfg, Logger: a.logger.Logger})
	if err != nil {
		return nil, err
	}
	return a.engine, nil
}

func (a *app) close() {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
}

func (a *app) identity() identity.ID {
	return identity.Parse(a.caller)
}

// readInput reads a file argument, with "-" meaning stdin.
func (a *app) readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(name)
}
