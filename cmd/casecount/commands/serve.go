package commands

import (
	"github.com/spf13/cobra"

	"github.com/backyonatan-alt/casecount/internal/app"
)

func (c *CLI) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context(), c.configPath)
		},
	}
}
