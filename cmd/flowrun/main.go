// Package main provides the flowrun command: API and workers in one process,
// plus workflow file tooling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := &cli.Command{
		Name:                  "flowrun",
		Usage:                 "Run and manage DAG workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			ServeCommand(),
			WorkflowCommand(),
		},
	}

	if err := command.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, group := range groups {
		all = append(all, group...)
	}

	return all
}
