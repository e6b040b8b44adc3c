package auth

import "strings"

// Role is a coaching staff role. Viewers read ledgers, operators also
// collect payments and send reminders, admins manage fee structures,
// assignments, refunds and waivers.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole accepts a role name in any case and reports whether it is known.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants everything required grants.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required] && roleRanks[role] > 0
}
