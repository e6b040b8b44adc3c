package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/locks"
)

// AssignmentPatch changes pricing for records not yet billed. Nil fields are
// left unchanged.
type AssignmentPatch struct {
	CustomAmount      *decimal.NullDecimal
	DiscountAmount    *decimal.Decimal
	DiscountReason    *string
	ScholarshipTag    *string
	ScholarshipAmount *decimal.Decimal
	EndDate           *time.Time
	ClearEndDate      bool
}

// UpdateAssignment applies patch to a non-removed assignment.
func (s *Service) UpdateAssignment(ctx context.Context, coachingID, assignmentID string, patch AssignmentPatch) (fees.FeeAssignment, error) {
	var updated fees.FeeAssignment
	err := s.withAssignment(ctx, coachingID, assignmentID, func(current fees.FeeAssignment, structure fees.FeeStructure) error {
		if current.Status == fees.AssignmentRemoved {
			return fees.Conflict("assignment %s is removed", assignmentID)
		}
		next := current.Clone()
		patch.apply(&next)
		overrides := fees.PricingOverrides{
			CustomAmount:      next.CustomAmount,
			DiscountAmount:    next.DiscountAmount,
			DiscountReason:    next.DiscountReason,
			ScholarshipTag:    next.ScholarshipTag,
			ScholarshipAmount: next.ScholarshipAmount,
			StartDate:         next.StartDate,
			EndDate:           next.EndDate,
			Installments:      next.Installments,
		}
		if err := overrides.Validate(structure); err != nil {
			return err
		}

		before := audit.AssignmentFields(current)
		after := audit.AssignmentFields(next)
		if before.Equal(after) {
			updated = current
			return nil
		}
		next.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateAssignment(ctx, next, current.Version); err != nil {
			return err
		}
		next.Version = current.Version + 1
		updated = next
		s.recorder.Record(ctx, audit.Entry{
			CoachingID: coachingID,
			MemberID:   next.MemberID,
			Event:      audit.EventAssignmentUpdated,
			EntityType: audit.EntityFeeAssignment,
			EntityID:   next.ID,
			Before:     before,
			After:      after,
			Meta:       audit.Fields{"feeStructureName": audit.String(structure.Name)},
		})
		return nil
	})
	return updated, err
}

// SetStatus pauses, resumes or removes an assignment. Removal is final.
// Resuming skips periods that ended while paused; the current period is billed
// by the next roll-forward.
func (s *Service) SetStatus(ctx context.Context, coachingID, assignmentID string, status fees.AssignmentStatus) (fees.FeeAssignment, error) {
	if !status.Valid() {
		return fees.FeeAssignment{}, fees.Invalid("status", "unknown status "+string(status))
	}
	var updated fees.FeeAssignment
	err := s.withAssignment(ctx, coachingID, assignmentID, func(current fees.FeeAssignment, structure fees.FeeStructure) error {
		if current.Status == status {
			updated = current
			return nil
		}
		if current.Status == fees.AssignmentRemoved {
			return fees.Conflict("assignment %s is removed", assignmentID)
		}
		now := s.clock.Now()
		next := current.Clone()
		next.Status = status
		next.UpdatedAt = now
		if status == fees.AssignmentActive && structure.BillingCycle.Recurring() {
			cycle := structure.BillingCycle
			last := periodIndexAt(cycle, next.StartDate, next.LastBilledPeriod)
			if k := periodIndexAt(cycle, next.StartDate, now) - 1; k > last {
				next.LastBilledPeriod = fees.PeriodStart(cycle, next.StartDate, k)
			}
		}
		if err := s.store.UpdateAssignment(ctx, next, current.Version); err != nil {
			return err
		}
		next.Version = current.Version + 1
		updated = next

		event := audit.EventAssignmentRemoved
		switch status {
		case fees.AssignmentPaused:
			event = audit.EventAssignmentPaused
		case fees.AssignmentActive:
			event = audit.EventAssignmentResumed
		}
		s.recorder.Record(ctx, audit.Entry{
			CoachingID: coachingID,
			MemberID:   next.MemberID,
			Event:      event,
			EntityType: audit.EntityFeeAssignment,
			EntityID:   next.ID,
			Before:     audit.Fields{"status": audit.String(string(current.Status))},
			After:      audit.Fields{"status": audit.String(string(status))},
			Meta:       audit.Fields{"feeStructureName": audit.String(structure.Name)},
		})
		s.logger.Info("assignment status changed",
			zap.String("coaching_id", coachingID),
			zap.String("member_id", next.MemberID),
			zap.String("assignment_id", next.ID),
			zap.String("status", string(status)),
		)
		return nil
	})
	return updated, err
}

// withAssignment loads an assignment and its structure under the member lock.
func (s *Service) withAssignment(ctx context.Context, coachingID, assignmentID string, fn func(fees.FeeAssignment, fees.FeeStructure) error) error {
	if coachingID == "" {
		return fees.Invalid("coachingId", "required")
	}
	probe, err := s.store.GetAssignment(ctx, coachingID, assignmentID)
	if err != nil {
		return err
	}
	if probe == nil {
		return fees.NotFound("fee assignment", assignmentID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.MemberTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(ctx, locks.MemberKey(coachingID, probe.MemberID))
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.store.GetAssignment(ctx, coachingID, assignmentID)
	if err != nil {
		return err
	}
	if current == nil {
		return fees.NotFound("fee assignment", assignmentID)
	}
	structure, err := s.store.GetStructure(ctx, coachingID, current.FeeStructureID)
	if err != nil {
		return err
	}
	if structure == nil {
		return fees.NotFound("fee structure", current.FeeStructureID)
	}
	return fn(*current, *structure)
}

func (p AssignmentPatch) apply(a *fees.FeeAssignment) {
	if p.CustomAmount != nil {
		a.CustomAmount = *p.CustomAmount
	}
	if p.DiscountAmount != nil {
		a.DiscountAmount = fees.RoundMoney(*p.DiscountAmount)
	}
	if p.DiscountReason != nil {
		a.DiscountReason = *p.DiscountReason
	}
	if p.ScholarshipTag != nil {
		a.ScholarshipTag = *p.ScholarshipTag
	}
	if p.ScholarshipAmount != nil {
		a.ScholarshipAmount = fees.RoundMoney(*p.ScholarshipAmount)
	}
	if p.ClearEndDate {
		a.EndDate = nil
	} else if p.EndDate != nil {
		end := fees.StartOfDay(*p.EndDate)
		a.EndDate = &end
	}
}
