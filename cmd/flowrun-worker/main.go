// Package main provides the flowrun worker: it consumes workflow and node jobs.
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
		Name:                  "flowrun-worker",
		Usage:                 "Start workers to execute workflows",
		EnableShellCompletion: true,
		Flags:                 append(cmd.ConfigFlags(), cmd.WorkerFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := cmd.LoadConfig(ctx, command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel, cfg.LogFormat)

			workerID := cmd.NewWorkerID(command.String("worker-id"))
			logger := log.WithModule("flowrun-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowrun worker")

			rt, err := cmd.NewRuntime(ctx, cfg, logger, "flowrun-worker")
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					logger.Error("Failed to close runtime", "error", err)
				}
			}()

			return cmd.RunWorkers(ctx, rt, workerID)
		},
	}

	if err := command.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
