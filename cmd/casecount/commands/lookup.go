package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/backyonatan-alt/casecount/internal/app"
)

func (c *CLI) newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name>",
		Short: "Print the stored summary for a region name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			ans, err := a.Lookup.Answer(cmd.Context(), query)
			if err != nil {
				fmt.Fprintf(c.out, "no record matches %q\n", query)
				return err
			}
			fmt.Fprintln(c.out, ans.Text)
			if ans.Artifact != nil {
				fmt.Fprintf(c.out, "artifact: %s\n", ans.Artifact.Path)
			}
			return nil
		},
	}
}

