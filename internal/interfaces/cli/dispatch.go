package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/LexAlert/internal/application/alerting"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
)

// runSummary renders a RunReport for the CLI.
type runSummary struct {
	*alerting.RunReport
}

func (s runSummary) TableHeaders() []string {
	return []string{"SCANNED", "STATUS UPDATED", "PLANS", "IN-APP", "DUPLICATE", "SENT", "SKIPPED", "FAILED", "ERRORS", "DURATION"}
}

func (s runSummary) TableRows() [][]string {
	r := s.RunReport
	return [][]string{{
		strconv.Itoa(r.Scanned),
		strconv.Itoa(r.StatusUpdated),
		strconv.Itoa(r.PlansBuilt),
		strconv.Itoa(r.InAppCreated),
		strconv.Itoa(r.InAppDuplicate),
		strconv.Itoa(r.EmailsSent),
		strconv.Itoa(r.EmailsSkipped),
		strconv.Itoa(r.EmailsFailed),
		strconv.Itoa(r.Errors),
		r.Duration().String(),
	}}
}

func (s runSummary) String() string {
	r := s.RunReport
	return fmt.Sprintf("scanned %d, status updated %d, in-app created %d (duplicate %d), emails sent %d (skipped %d, failed %d), errors %d in %s",
		r.Scanned, r.StatusUpdated, r.InAppCreated, r.InAppDuplicate,
		r.EmailsSent, r.EmailsSkipped, r.EmailsFailed, r.Errors, r.Duration())
}

func newDispatchCmd(deps Dependencies) *cobra.Command {
	var noLock bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one alert dispatch against the configured stack",
		Long: "Evaluates every active deadline, writes back alert statuses and\n" +
			"delivers due alerts. Safe to repeat: deliveries are deduplicated.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg, err := cc.Config()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cc.Timeout)
			defer cancel()

			report, err := deps.Dispatch(ctx, cfg, cc.Logger, !noLock)
			if report != nil {
				if perr := PrintResult(cmd, runSummary{report}); perr != nil {
					cc.Logger.Warn("Failed to print run report", logging.Err(perr))
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noLock, "no-lock", false, "skip the distributed dispatch lock")
	return cmd
}
