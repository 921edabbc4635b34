package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan/codec"
)

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check plan files against the plan schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				svc, err := codec.ReadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(c.out, "%s: %v\n", path, err)
					continue
				}
				inputs := "none"
				if keys := svc.InputKeys(); len(keys) > 0 {
					inputs = strings.Join(keys, ", ")
				}
				fmt.Fprintf(c.out, "%s: ok (%d stages, inputs: %s)\n", path, len(svc.Plan), inputs)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d plan files invalid", failed, len(args))
			}
			return nil
		},
	}
}
