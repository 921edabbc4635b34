// Command nbapi publishes notebooks as callable services.
//
// Usage:
//
//	nbapi discover https://example.com/report.ipynb -o services/report.yaml
//	nbapi validate services/report.yaml
//	nbapi execute services/report.yaml --input name="'Ada'" --input-file params.yaml
//	nbapi serve --port 8000
//
// Configuration comes from the environment (see internal/infrastructure/config);
// flags override it. Logs go to stderr, results to stdout.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/nbapi/internal/infrastructure/config"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/logging"
)

// cli carries state shared by every command.
type cli struct {
	out      io.Writer
	logLevel string
	dev      bool

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "nbapi",
		Short:         "Publish notebooks as callable services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") {
				c.logLevel = cfg.Logging.Level
			}
			if !cmd.Flags().Changed("dev") {
				c.dev = cfg.Logging.Development
			}
			cfg.Logging.Level, cfg.Logging.Development = c.logLevel, c.dev

			logger, err := logging.New(logging.CLIConfig(c.logLevel, c.dev))
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.dev, "dev", false, "human readable logs")

	root.AddCommand(
		c.discoverCmd(),
		c.executeCmd(),
		c.validateCmd(),
		c.serveCmd(),
	)
	return root
}

// printJSON writes v to stdout as indented JSON.
func (c *cli) printJSON(v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
