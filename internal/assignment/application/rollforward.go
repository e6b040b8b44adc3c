package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/locks"
	"coaching-fees/internal/observability/metrics"
)

// RollForwardResult summarizes one roll-forward run.
type RollForwardResult struct {
	Assignments int
	Records     int
	Failed      int
}

// RollForward bills every started, unbilled period of ACTIVE recurring
// assignments. One assignment failing does not stop the others; their errors
// are joined into the returned error.
func (s *Service) RollForward(ctx context.Context, now time.Time) (RollForwardResult, error) {
	var result RollForwardResult
	assignments, err := s.store.ListBillableAssignments(ctx)
	if err != nil {
		return result, err
	}
	structures := make(map[string]*fees.FeeStructure)
	var errs []error
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		key := a.CoachingID + "/" + a.FeeStructureID
		structure, ok := structures[key]
		if !ok {
			structure, err = s.store.GetStructure(ctx, a.CoachingID, a.FeeStructureID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			structures[key] = structure
		}
		if structure == nil || !structure.BillingCycle.Recurring() {
			continue
		}
		n, err := s.rollAssignment(ctx, *structure, a.ID, now)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("assignment %s: %w", a.ID, err))
			s.logger.Error("roll forward failed",
				zap.String("coaching_id", a.CoachingID),
				zap.String("member_id", a.MemberID),
				zap.String("assignment_id", a.ID),
				zap.Error(err),
			)
			continue
		}
		if n > 0 {
			result.Assignments++
			result.Records += n
		}
	}
	metrics.AddRollForwardRecords(result.Records)
	return result, errors.Join(errs...)
}

func (s *Service) rollAssignment(ctx context.Context, structure fees.FeeStructure, assignmentID string, now time.Time) (int, error) {
	probe, err := s.store.GetAssignment(ctx, structure.CoachingID, assignmentID)
	if err != nil || probe == nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MemberTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(ctx, locks.MemberKey(structure.CoachingID, probe.MemberID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	current, err := s.store.GetAssignment(ctx, structure.CoachingID, assignmentID)
	if err != nil || current == nil {
		return 0, err
	}
	next := current.Clone()
	records, err := billing{structure: structure, assignment: &next, now: now}.due(s.cfg.MaxGeneratedRecords)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	next.UpdatedAt = now
	if err := s.store.AppendRecords(ctx, next, current.Version, records); err != nil {
		return 0, err
	}

	before := audit.Fields{"creditRemaining": audit.Number(current.CreditRemaining)}
	after := audit.Fields{"creditRemaining": audit.Number(next.CreditRemaining)}
	s.recorder.Record(ctx, audit.Entry{
		CoachingID: next.CoachingID,
		MemberID:   next.MemberID,
		Event:      audit.EventRecordsGenerated,
		EntityType: audit.EntityFeeAssignment,
		EntityID:   next.ID,
		ActorID:    fees.SystemActor,
		ActorType:  audit.ActorSystem,
		Before:     before,
		After:      after,
		Meta: audit.Fields{
			"feeStructureName": audit.String(structure.Name),
			"recordCount":      audit.Int(len(records)),
		},
	})
	return len(records), nil
}
