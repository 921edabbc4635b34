package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/nbapi/internal/domain/artifact"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan/codec"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/server"
	"github.com/GriffinCanCode/nbapi/internal/providers/document"
)

func (c *cli) executeCmd() *cobra.Command {
	var (
		pairs     []string
		inputFile string
		backend   string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "execute FILE",
		Short: "Run a service plan against its notebook",
		Long: `Fetches the notebook named by the plan, runs every stage in order on a fresh
interpreter session and prints the report with any collected outputs.

Input values are interpreter tokens: quote strings yourself, e.g.
  --input name="'Ada'" --input count=3
Grouped keys use dots (--input model.name=...). An --input-file holds the same
map as YAML or JSON; --input entries override it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := codec.ReadFile(args[0])
			if err != nil {
				return err
			}
			input, err := readInput(inputFile, pairs)
			if err != nil {
				return err
			}

			kcfg := c.cfg.Kernel
			if backend != "" {
				kcfg.Backend = backend
			}
			selector, err := server.NewKernelSelector(kcfg, c.logger)
			if err != nil {
				return err
			}
			fetcher := document.New(c.cfg.Fetch, c.logger.Component("fetch"))
			executor := plan.NewExecutor(fetcher, selector,
				plan.WithLogger(c.logger.Component("executor")),
				plan.WithStageTimeout(kcfg.StageTimeout),
				plan.WithObserver(plan.NewLogObserver(c.logger.Component("executor"))),
			)

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			report, err := executor.Execute(ctx, svc, input)
			if err != nil {
				return fmt.Errorf("%s: %w", plan.Kind(err), err)
			}
			collected, err := artifact.Collect(c.cfg.Artifacts.BaseDir, svc.Output)
			if err != nil {
				return err
			}
			return c.printJSON(map[string]interface{}{
				"report":    report,
				"artifacts": collected,
			})
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "input", "i", nil, "input value as key=token (repeatable)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "YAML or JSON file holding input values")
	cmd.Flags().StringVar(&backend, "backend", "", "interpreter backend (auto, jupyter, jsvm, govm)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall execution timeout")
	return cmd
}

// readInput merges the input file with key=value pairs, pairs winning.
func readInput(path string, pairs []string) (plan.Input, error) {
	input := plan.Input{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		fromFile, err := plan.InputFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for k, v := range fromFile {
			input[k] = v
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("input %q must be key=value", pair)
		}
		input[key] = value
	}
	return input, nil
}
