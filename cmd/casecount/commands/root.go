// Package commands implements the casecount CLI.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/backyonatan-alt/casecount/internal/app"
	"github.com/backyonatan-alt/casecount/internal/config"
)

const configEnv = "CASECOUNT_CONFIG"

// CLI represents the command line interface for casecount.
type CLI struct {
	rootCmd    *cobra.Command
	out        io.Writer
	configPath string
	cfg        *config.Config
}

// New creates the CLI. Command output goes to out; logs go to stderr.
func New(out io.Writer) *CLI {
	c := &CLI{out: out}

	rootCmd := &cobra.Command{
		Use:           "casecount",
		Short:         "Scrape, store and serve per-region case counts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadConfig()
		},
	}

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv(configEnv),
		"Path to the YAML config file (env "+configEnv+")")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newRefreshCmd())
	rootCmd.AddCommand(c.newLookupCmd())

	c.rootCmd = rootCmd
	return c
}

func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(app.NewLogger(cfg.Log, os.Stderr))
	c.cfg = cfg
	return nil
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}
