package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan/codec"
	"github.com/GriffinCanCode/nbapi/internal/providers/document"
)

func (c *cli) discoverCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "discover URL",
		Short: "Build a service from a notebook's parameter cells",
		Long: `Fetches the notebook once and emits a service with one stage per identified
code cell, each holding that cell's parameter defaults as constants.

The plan is printed as JSON, or written with -o in the format named by the
file extension (.json, .yaml, .toml, .cbor, optionally .gz).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher := document.New(c.cfg.Fetch, c.logger.Component("fetch"))
			builder := plan.NewBuilder(fetcher, c.logger.Component("builder"))

			svc, err := builder.Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				return c.printJSON(svc)
			}
			if err := codec.WriteFile(output, svc); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "wrote %s (%d stages)\n", output, len(svc.Plan))
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan to this file")
	return cmd
}
