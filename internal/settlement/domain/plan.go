package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	fees "coaching-fees/internal/fees/domain"
)

// Plan is what committing a settlement writes for one superseded assignment.
type Plan struct {
	Policy            Policy
	Superseded        *fees.FeeAssignment
	SupersededVersion int
	Expected          []fees.SettledRecord
	Waivers           []fees.Waiver
	WaivedTotal       decimal.Decimal
	Credit            decimal.Decimal
}

// NewPlan settles the live records of current under policy. With waive, every
// live balance becomes one waiver and, when applyCredit is set, the paid part
// of those records becomes credit for the replacement.
func NewPlan(current *fees.FeeAssignment, live []fees.FeeRecord, policy Policy, applyCredit bool, now time.Time) (Plan, error) {
	plan := Plan{Policy: policy, WaivedTotal: decimal.Zero, Credit: decimal.Zero}
	if current == nil {
		return plan, nil
	}
	superseded := current.Clone()
	plan.Superseded = &superseded
	plan.SupersededVersion = current.Version
	plan.Expected = make([]fees.SettledRecord, 0, len(live))
	for _, r := range live {
		plan.Expected = append(plan.Expected, r.Settled())
	}

	switch policy {
	case PolicyCarry:
		return plan, nil
	case PolicyReject:
		for _, r := range live {
			if r.Balance().IsPositive() {
				return Plan{}, fees.Conflict("member %s has live balances on assignment %s", current.MemberID, current.ID)
			}
		}
		return plan, nil
	case PolicyWaive:
	default:
		return Plan{}, fees.Invalid("supersedePolicy", "unknown policy "+string(policy))
	}

	paid := decimal.Zero
	for _, r := range live {
		paid = paid.Add(r.PaidAmount)
		balance := r.Balance()
		if !balance.IsPositive() {
			continue
		}
		plan.Waivers = append(plan.Waivers, fees.Waiver{
			ID:           fees.NewID("wv"),
			CoachingID:   r.CoachingID,
			MemberID:     r.MemberID,
			RecordID:     r.ID,
			WaivedAmount: balance,
			Reason:       fees.SupersededReason,
			Actor:        fees.SystemActor,
			WaivedAt:     now,
			CreatedAt:    now,
		})
		plan.WaivedTotal = plan.WaivedTotal.Add(balance)
	}
	if applyCredit {
		plan.Credit = paid
	}
	return plan, nil
}

// Apply copies the plan into a commit.
func (p Plan) Apply(commit *fees.AssignmentCommit, now time.Time) {
	if p.Superseded == nil {
		return
	}
	commit.Superseded = p.Superseded
	commit.SupersededVersion = p.SupersededVersion
	commit.SupersededAt = now
	commit.ExpectedLive = p.Expected
	commit.Waivers = p.Waivers
}
