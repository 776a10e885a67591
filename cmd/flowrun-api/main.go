// Package main provides the flowrun API server. It enqueues executions and
// streams their events; flowrun-worker runs them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := &cli.Command{
		Name:                  "flowrun-api",
		Usage:                 "Create and manage workflows over HTTP",
		EnableShellCompletion: true,
		Flags:                 append(cmd.ConfigFlags(), cmd.APIFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := cmd.LoadConfig(ctx, command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel, cfg.LogFormat)

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing flowrun API")

			rt, err := cmd.NewRuntime(ctx, cfg, logger, "flowrun-api")
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					logger.Error("Failed to close runtime", "error", err)
				}
			}()

			return cmd.ServeAPI(ctx, rt)
		},
	}

	if err := command.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
