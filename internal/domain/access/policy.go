// Package access decides who may read, change or dispatch deadlines.
package access

import (
	"strings"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// IsZero reports whether no caller is attached.
func (p Principal) IsZero() bool {
	return p.UserID == ""
}

// Policy is injected into services and handlers.
type Policy interface {
	IsAdmin(p Principal) bool
	CanAccessDeadline(p Principal, d *deadline.Deadline) bool
	CanTriggerDispatch(p Principal) bool
}

// AllowListPolicy grants admin rights to a fixed set of user IDs or emails.
type AllowListPolicy struct {
	admins map[string]struct{}
}

// NewAllowListPolicy builds a policy from admin identifiers. Entries are
// trimmed and compared case-insensitively; blanks are ignored.
func NewAllowListPolicy(admins []string) *AllowListPolicy {
	m := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		a = normalize(a)
		if a == "" {
			continue
		}
		m[a] = struct{}{}
	}
	return &AllowListPolicy{admins: m}
}

func (p *AllowListPolicy) IsAdmin(pr Principal) bool {
	if pr.IsZero() {
		return false
	}
	if _, ok := p.admins[normalize(pr.UserID)]; ok {
		return true
	}
	if pr.Email != "" {
		_, ok := p.admins[normalize(pr.Email)]
		return ok
	}
	return false
}

// CanAccessDeadline allows the owner and admins.
func (p *AllowListPolicy) CanAccessDeadline(pr Principal, d *deadline.Deadline) bool {
	if d == nil || pr.IsZero() {
		return false
	}
	return d.UserID == pr.UserID || p.IsAdmin(pr)
}

func (p *AllowListPolicy) CanTriggerDispatch(pr Principal) bool {
	return p.IsAdmin(pr)
}

// DenyAllPolicy refuses everything.
type DenyAllPolicy struct{}

func (DenyAllPolicy) IsAdmin(Principal) bool                               { return false }
func (DenyAllPolicy) CanAccessDeadline(Principal, *deadline.Deadline) bool { return false }
func (DenyAllPolicy) CanTriggerDispatch(Principal) bool                    { return false }

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var (
	_ Policy = (*AllowListPolicy)(nil)
	_ Policy = DenyAllPolicy{}
)
