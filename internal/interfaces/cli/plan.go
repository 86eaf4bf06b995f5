package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// PlanResult is the engine's output for one deadline at one instant.
type PlanResult struct {
	DeadlineID           string               `json:"deadline_id"`
	Due                  time.Time            `json:"due"`
	Now                  time.Time            `json:"now"`
	DaysRemaining        int                  `json:"days_remaining"`
	AlertStatus          deadline.AlertStatus `json:"alert_status"`
	NeedsAcknowledgement bool                 `json:"needs_acknowledgement"`
	Plans                []deadline.AlertPlan `json:"plans"`
}

func (r PlanResult) TableHeaders() []string {
	return []string{"RULE", "SEVERITY", "DAYS", "MODAL", "IN-APP KEY", "EMAIL KEY"}
}

func (r PlanResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Plans))
	for _, p := range r.Plans {
		rows = append(rows, []string{
			string(p.Rule),
			string(p.Severity),
			strconv.Itoa(p.DaysRemaining),
			strconv.FormatBool(p.ShouldOpenModal),
			p.DedupeKeyInApp,
			p.DedupeKeyEmail,
		})
	}
	return rows
}

func (r PlanResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "deadline %s due %s: %d day(s) remaining, status %s\n",
		r.DeadlineID, r.Due.Format(time.RFC3339), r.DaysRemaining, r.AlertStatus)
	if len(r.Plans) == 0 {
		sb.WriteString("no alert fires at this instant")
		return sb.String()
	}
	for _, p := range r.Plans {
		fmt.Fprintf(&sb, "[%s] %s %s\n  %s\n", p.Severity, p.Rule, p.Title, p.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// StatusResult is the dashboard classification of one deadline.
type StatusResult struct {
	Due           time.Time            `json:"due"`
	Now           time.Time            `json:"now"`
	DaysRemaining int                  `json:"days_remaining"`
	AlertStatus   deadline.AlertStatus `json:"alert_status"`
}

func (r StatusResult) TableHeaders() []string { return []string{"DUE", "DAYS", "ALERT STATUS"} }

func (r StatusResult) TableRows() [][]string {
	return [][]string{{r.Due.Format(time.RFC3339), strconv.Itoa(r.DaysRemaining), string(r.AlertStatus)}}
}

func (r StatusResult) String() string { return string(r.AlertStatus) }

type engineFlags struct {
	due          string
	now          string
	status       string
	id           string
	title        string
	acknowledged bool
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.due, "due", "", "deadline instant, ISO-8601 (required)")
	cmd.Flags().StringVar(&f.now, "now", "", "evaluation instant, ISO-8601 (default: current time)")
	cmd.Flags().StringVar(&f.status, "status", string(deadline.StatusPending), "workflow status (pending, completed, overdue)")
	_ = cmd.MarkFlagRequired("due")
}

// build assembles a transient deadline from the flags.
func (f *engineFlags) build(clock func() time.Time) (deadline.Deadline, time.Time, error) {
	due, err := deadline.ParseInstant(strings.TrimSpace(f.due))
	if err != nil {
		return deadline.Deadline{}, time.Time{}, errors.InvalidParam("invalid --due: expected ISO-8601").WithCause(err)
	}
	now := clock().UTC()
	if f.now != "" {
		if now, err = deadline.ParseInstant(strings.TrimSpace(f.now)); err != nil {
			return deadline.Deadline{}, time.Time{}, errors.InvalidParam("invalid --now: expected ISO-8601").WithCause(err)
		}
	}
	status := deadline.Status(strings.ToLower(f.status))
	if !status.IsValid() {
		return deadline.Deadline{}, time.Time{}, errors.InvalidParam(fmt.Sprintf("invalid --status %q", f.status))
	}

	d := deadline.Deadline{
		ID:           f.id,
		UserID:       "cli",
		Title:        f.title,
		DeadlineDate: due,
		Status:       status,
	}
	if d.ID == "" {
		d.ID = "cli"
	}
	if d.Title == "" {
		d.Title = "Deadline " + due.Format("2006-01-02")
	}
	if f.acknowledged {
		d.AcknowledgedAt = &now
	}
	return d, now, nil
}

func newPlanCmd(deps Dependencies) *cobra.Command {
	f := &engineFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the alerts that fire for a deadline at an instant",
		Long: "Runs the alert engine offline. Nothing is stored or sent.\n\n" +
			"  lexalert plan --due 2026-03-13 --now 2026-03-10T12:00:00Z",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, now, err := f.build(deps.Clock)
			if err != nil {
				return err
			}
			plans := deadline.BuildAlertPlan(d, now)
			if plans == nil {
				plans = []deadline.AlertPlan{}
			}
			return PrintResult(cmd, PlanResult{
				DeadlineID:           d.ID,
				Due:                  d.DeadlineDate,
				Now:                  now,
				DaysRemaining:        deadline.DaysUntil(d.DeadlineDate, now),
				AlertStatus:          deadline.ComputeAlertStatus(d, now),
				NeedsAcknowledgement: d.NeedsAcknowledgement(now),
				Plans:                plans,
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.id, "id", "", "deadline id used in dedupe keys")
	cmd.Flags().StringVar(&f.title, "title", "", "deadline title used in messages")
	cmd.Flags().BoolVar(&f.acknowledged, "acknowledged", false, "treat the overdue alert as acknowledged")
	return cmd
}

func newStatusCmd(deps Dependencies) *cobra.Command {
	f := &engineFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Classify a deadline as done, overdue, urgent or active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, now, err := f.build(deps.Clock)
			if err != nil {
				return err
			}
			return PrintResult(cmd, StatusResult{
				Due:           d.DeadlineDate,
				Now:           now,
				DaysRemaining: deadline.DaysUntil(d.DeadlineDate, now),
				AlertStatus:   deadline.ComputeAlertStatus(d, now),
			})
		},
	}
	f.register(cmd)
	return cmd
}
