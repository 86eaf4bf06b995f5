package deadline

import (
	"fmt"
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Day-boundary date math
// ─────────────────────────────────────────────────────────────────────────────

const day = 24 * time.Hour

// dateLayout is the calendar-date form used in dedupe keys and messages.
const dateLayout = "2006-01-02"

// StartOfDayUTC truncates t to 00:00:00 UTC of its UTC calendar date.
// Local-time truncation must never feed back into the engine.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the signed number of UTC calendar days from now to
// deadline. Zero means due today, negative means overdue.
func DaysUntil(deadline, now time.Time) int {
	diff := StartOfDayUTC(deadline).Sub(StartOfDayUTC(now))
	return int(math.Round(float64(diff) / float64(day)))
}

// isoLayouts are tried in order by ParseInstant.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	dateLayout,
}

// ParseInstant parses an ISO-8601 instant. Values without a zone are read as
// UTC; a bare date means UTC midnight. The parse error of the first layout is
// returned unwrapped.
func ParseInstant(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// DaysUntilISO is DaysUntil for a deadline carried as an ISO-8601 string.
// Validation of malformed input belongs to the caller.
func DaysUntilISO(deadlineISO string, now time.Time) (int, error) {
	t, err := ParseInstant(deadlineISO)
	if err != nil {
		return 0, err
	}
	return DaysUntil(t, now), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Alert status classifier
// ─────────────────────────────────────────────────────────────────────────────

// urgentWindowDays is the inclusive upper bound for the urgent badge.
const urgentWindowDays = 2

// ComputeAlertStatus maps a deadline and now to a coarse dashboard label.
// It is independent of whether a notification fires.
func ComputeAlertStatus(d Deadline, now time.Time) AlertStatus {
	if d.Status == StatusCompleted {
		return AlertStatusDone
	}
	days := DaysUntil(d.DeadlineDate, now)
	switch {
	case days < 0:
		return AlertStatusOverdue
	case days <= urgentWindowDays:
		return AlertStatusUrgent
	default:
		return AlertStatusActive
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Rules and severity
// ─────────────────────────────────────────────────────────────────────────────

// Rule names the milestone that triggered an alert.
type Rule string

const (
	RuleDueIn7Days Rule = "DUE_IN_7_DAYS"
	RuleDueIn3Days Rule = "DUE_IN_3_DAYS"
	RuleDueIn1Day  Rule = "DUE_IN_1_DAY"
	RuleDueToday   Rule = "DUE_TODAY"
	RuleOverdue    Rule = "OVERDUE"
)

// Severity drives UI colouring and email priority.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// RuleForDays maps a day offset to its milestone by exact match. Offsets
// between milestones produce no rule.
func RuleForDays(days int) (Rule, bool) {
	switch {
	case days < 0:
		return RuleOverdue, true
	case days == 0:
		return RuleDueToday, true
	case days == 1:
		return RuleDueIn1Day, true
	case days == 3:
		return RuleDueIn3Days, true
	case days == 7:
		return RuleDueIn7Days, true
	}
	return "", false
}

// Severity returns the severity attached to r.
func (r Rule) Severity() Severity {
	switch r {
	case RuleDueIn7Days:
		return SeverityInfo
	case RuleDueIn3Days:
		return SeverityWarning
	default:
		return SeverityDanger
	}
}

// ShouldOpenModal is true for rules that interrupt the user with a blocking dialog.
func (r Rule) ShouldOpenModal() bool {
	return r == RuleDueToday || r == RuleOverdue
}

// Persistent is true for rules that re-alert every run until acknowledged or completed.
func (r Rule) Persistent() bool {
	return r == RuleOverdue
}

// IsValid reports whether r is a known rule.
func (r Rule) IsValid() bool {
	switch r {
	case RuleDueIn7Days, RuleDueIn3Days, RuleDueIn1Day, RuleDueToday, RuleOverdue:
		return true
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Alert plan
// ─────────────────────────────────────────────────────────────────────────────

// Disclaimer is appended to every alert message.
const Disclaimer = "This alert is auxiliary. Always verify the deadline against the official case record."

// AlertPlan is the engine's decision for one deadline on one evaluation.
// It is not persisted by the engine.
type AlertPlan struct {
	DeadlineID      string   `json:"deadline_id"`
	UserID          string   `json:"user_id"`
	ProcessID       *string  `json:"process_id,omitempty"`
	Rule            Rule     `json:"rule"`
	Severity        Severity `json:"severity"`
	DaysRemaining   int      `json:"days_remaining"`
	Title           string   `json:"title"`
	Message         string   `json:"message"`
	DedupeKeyInApp  string   `json:"dedupe_key_in_app"`
	DedupeKeyEmail  string   `json:"dedupe_key_email"`
	ShouldOpenModal bool     `json:"should_open_modal"`
	Persistent      bool     `json:"persistent"`
}

// BuildAlertPlan decides whether an alert fires for d at now. The result is
// empty or holds exactly one plan. The function is total and pure.
func BuildAlertPlan(d Deadline, now time.Time) []AlertPlan {
	if d.Status == StatusCompleted {
		return nil
	}

	days := DaysUntil(d.DeadlineDate, now)
	rule, ok := RuleForDays(days)
	if !ok {
		return nil
	}

	title, message := renderAlertText(rule, d.Title, d.DeadlineDate, days)
	inApp, email := dedupeKeys(d.ID, rule, d.DeadlineDate, now)

	return []AlertPlan{{
		DeadlineID:      d.ID,
		UserID:          d.UserID,
		ProcessID:       d.ProcessID,
		Rule:            rule,
		Severity:        rule.Severity(),
		DaysRemaining:   days,
		Title:           title,
		Message:         message,
		DedupeKeyInApp:  inApp,
		DedupeKeyEmail:  email,
		ShouldOpenModal: rule.ShouldOpenModal(),
		Persistent:      rule.Persistent(),
	}}
}

// dedupeKeys returns the in-app and email keys. One-shot rules key on the due
// date; OVERDUE in-app is emitted once per deadline while OVERDUE email keys
// on today so it resends daily.
func dedupeKeys(id string, rule Rule, due, now time.Time) (inApp, email string) {
	if rule == RuleOverdue {
		inApp = fmt.Sprintf("deadline:%s:%s", id, rule)
		email = fmt.Sprintf("deadline:%s:%s:%s", id, rule, StartOfDayUTC(now).Format(dateLayout))
		return inApp, email
	}
	key := fmt.Sprintf("deadline:%s:%s:%s", id, rule, StartOfDayUTC(due).Format(dateLayout))
	return key, key
}

func renderAlertText(rule Rule, deadlineTitle string, due time.Time, days int) (string, string) {
	dueStr := StartOfDayUTC(due).Format(dateLayout)
	var title, body string
	switch rule {
	case RuleDueIn7Days:
		title = fmt.Sprintf("Deadline in 7 days: %s", deadlineTitle)
		body = fmt.Sprintf("The deadline %q is due on %s, 7 days from today.", deadlineTitle, dueStr)
	case RuleDueIn3Days:
		title = fmt.Sprintf("Deadline in 3 days: %s", deadlineTitle)
		body = fmt.Sprintf("The deadline %q is due on %s, 3 days from today.", deadlineTitle, dueStr)
	case RuleDueIn1Day:
		title = fmt.Sprintf("Deadline tomorrow: %s", deadlineTitle)
		body = fmt.Sprintf("The deadline %q is due tomorrow (%s).", deadlineTitle, dueStr)
	case RuleDueToday:
		title = fmt.Sprintf("Deadline due today: %s", deadlineTitle)
		body = fmt.Sprintf("The deadline %q is due today (%s).", deadlineTitle, dueStr)
	case RuleOverdue:
		overdue := -days
		unit := "days"
		if overdue == 1 {
			unit = "day"
		}
		title = fmt.Sprintf("Deadline overdue: %s", deadlineTitle)
		body = fmt.Sprintf("The deadline %q was due on %s and is %d %s overdue.", deadlineTitle, dueStr, overdue, unit)
	}
	return title, body + " " + Disclaimer
}
