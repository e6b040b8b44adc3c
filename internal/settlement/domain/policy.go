package settlement

import (
	"fmt"
	"strings"
)

// Policy decides what happens to live balances of a superseded assignment.
type Policy string

const (
	// PolicyWaive writes off live balances and may surface collected money as credit.
	PolicyWaive Policy = "waive"
	// PolicyCarry leaves old records due; no credit is surfaced.
	PolicyCarry Policy = "carry"
	// PolicyReject refuses a reassignment while live balances exist.
	PolicyReject Policy = "reject"
)

// ParsePolicy parses a policy name; empty means waive.
func ParsePolicy(value string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return PolicyWaive, nil
	case PolicyWaive, PolicyCarry, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("settlement: unknown supersede policy %q", value)
	}
}
