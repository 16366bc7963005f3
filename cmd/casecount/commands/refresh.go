package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/backyonatan-alt/casecount/internal/app"
	"github.com/backyonatan-alt/casecount/internal/model"
)

func (c *CLI) newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle against the store and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Pipeline.Run(cmd.Context())
			c.printReport(report)
			return err
		},
	}
}

func (c *CLI) printReport(r model.CycleReport) {
	if !r.OK() {
		fmt.Fprintf(c.out, "refresh failed during %s: %s\n", r.Phase, r.Error())
		return
	}
	fmt.Fprintf(c.out, "cycle %d finished in %s\n", r.Cycle, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(c.out, "rows: %d accepted: %d\n", r.Rows, r.Accepted)
	fmt.Fprintf(c.out, "inserted: %d updated: %d stale: %d total: %d\n",
		r.Stats.Inserted, r.Stats.Updated, r.Stats.Stale, r.Stats.Total)

	reasons := make([]string, 0, len(r.Skipped))
	for reason := range r.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(c.out, "skipped %s: %d\n", reason, r.Skipped[reason])
	}
}
