// Package access decides which actors may read dashboards and trigger
// recomputation.
package access

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForbidden is returned when an actor may not perform an action.
var ErrForbidden = errors.New("forbidden")

// Action is an operation subject to authorization.
type Action string

const (
	ViewDashboard  Action = "view_dashboard"
	ViewMetrics    Action = "view_metrics"
	Invalidate     Action = "invalidate"
	RunIncremental Action = "run_incremental"
	RunBackfill    Action = "run_backfill"
)

// Role names.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Authorizer gates actions by actor.
type Authorizer interface {
	Authorize(actor string, action Action) error
}

var grants = map[string]map[Action]bool{
	RoleViewer: {
		ViewDashboard: true,
		ViewMetrics:   true,
	},
	RoleOperator: {
		ViewDashboard:  true,
		ViewMetrics:    true,
		Invalidate:     true,
		RunIncremental: true,
	},
	RoleAdmin: {
		ViewDashboard:  true,
		ViewMetrics:    true,
		Invalidate:     true,
		RunIncremental: true,
		RunBackfill:    true,
	},
}

// RoleTable authorizes by a static actor-to-role map.
type RoleTable struct {
	roles       map[string]string
	defaultRole string
}

// NewRoleTable builds a role table. Actor names are matched
// case-insensitively. Unknown actors get defaultRole; an empty defaultRole
// denies them everything.
func NewRoleTable(roles map[string]string, defaultRole string) (*RoleTable, error) {
	t := &RoleTable{roles: make(map[string]string, len(roles)), defaultRole: defaultRole}
	if defaultRole != "" {
		if _, ok := grants[defaultRole]; !ok {
			return nil, fmt.Errorf("unknown default role %q", defaultRole)
		}
	}
	for actor, role := range roles {
		if _, ok := grants[role]; !ok {
			return nil, fmt.Errorf("actor %s: unknown role %q", actor, role)
		}
		t.roles[strings.ToLower(actor)] = role
	}
	return t, nil
}

// Role returns the role of actor.
func (t *RoleTable) Role(actor string) string {
	if role, ok := t.roles[strings.ToLower(strings.TrimSpace(actor))]; ok {
		return role
	}
	return t.defaultRole
}

// Authorize returns nil if actor's role grants action and an error wrapping
// ErrForbidden otherwise.
func (t *RoleTable) Authorize(actor string, action Action) error {
	role := t.Role(actor)
	if grants[role][action] {
		return nil
	}
	if actor == "" {
		actor = "anonymous"
	}
	return fmt.Errorf("%w: %s may not %s", ErrForbidden, actor, action)
}

// AllowAll authorizes everything. The CLI uses it for the local operator.
type AllowAll struct{}

// Authorize always returns nil.
func (AllowAll) Authorize(string, Action) error { return nil }
