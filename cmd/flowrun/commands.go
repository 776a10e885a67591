package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API and the workers in one process",
		Flags:   flags(cmd.ConfigFlags(), cmd.APIFlags(), cmd.WorkerFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := cmd.LoadConfig(ctx, command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel, cfg.LogFormat)

			workerID := cmd.NewWorkerID(command.String("worker-id"))
			logger := log.WithModule("flowrun").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowrun")

			rt, err := cmd.NewRuntime(ctx, cfg, logger, "flowrun")
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					logger.Error("Failed to close runtime", "error", err)
				}
			}()

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return cmd.ServeAPI(ctx, rt)
			})

			g.Go(func() error {
				return cmd.RunWorkers(ctx, rt, workerID)
			})

			return g.Wait()
		},
	}
}

func WorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflow",
		Usage: "Manage workflow definition files",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Create or replace a workflow from a YAML or JSON file",
				ArgsUsage: "<file>",
				Flags:     cmd.ConfigFlags(),
				Action:    importWorkflow,
			},
			{
				Name:      "validate",
				Usage:     "Check a YAML or JSON workflow file without storing it",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "log-level", Value: "warn", Sources: cli.EnvVars("FLOWRUN_LOG_LEVEL")},
				},
				Action: validateWorkflow,
			},
		},
	}
}

var errMissingFile = errors.New("workflow file argument is required")

func importWorkflow(ctx context.Context, command *cli.Command) error {
	path := command.Args().First()
	if path == "" {
		return errMissingFile
	}

	cfg, err := cmd.LoadConfig(ctx, command)
	if err != nil {
		return err
	}

	logger := log.Setup(cfg.LogLevel, cfg.LogFormat)

	workflow, err := cmd.LoadWorkflowFile(path)
	if err != nil {
		return err
	}

	rt, err := cmd.NewRuntime(ctx, cfg, logger, "flowrun")
	if err != nil {
		return err
	}

	defer func() { _ = rt.Close(context.Background()) }()

	stored, err := cmd.ImportWorkflow(ctx, rt.Workflows, workflow)
	if err != nil {
		return err
	}

	fmt.Fprintf(command.Root().Writer, "imported workflow %s (version %d)\n", stored.ID, stored.Version)

	return nil
}

func validateWorkflow(_ context.Context, command *cli.Command) error {
	path := command.Args().First()
	if path == "" {
		return errMissingFile
	}

	logger := log.Setup(command.String("log-level"), log.FormatAuto)

	workflow, err := cmd.LoadWorkflowFile(path)
	if err != nil {
		return err
	}

	workflows := services.NewWorkflow(nil, cmd.NewRegistry(logger), nil, validator.New(), logger)
	if err := workflows.Validate(workflow); err != nil {
		return err
	}

	fmt.Fprintf(command.Root().Writer, "%s is valid: %d nodes, %d edges\n", path, len(workflow.Nodes), len(workflow.Edges))

	return nil
}
