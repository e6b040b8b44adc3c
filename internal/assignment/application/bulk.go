package application

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coaching-fees/internal/audit"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// BulkRequest assigns one structure to many members. MemberOverrides replaces
// Overrides for the members it names.
type BulkRequest struct {
	CoachingID      string
	StructureID     string
	MemberIDs       []string
	Overrides       fees.PricingOverrides
	MemberOverrides map[string]fees.PricingOverrides
}

// BulkResult reports per-member outcomes in input order. A non-empty Failed
// list is a normal outcome, not an error.
type BulkResult struct {
	OperationID  string            `json:"operationId"`
	Succeeded    []string          `json:"succeeded"`
	Failed       []string          `json:"failed"`
	Skipped      []string          `json:"skipped"`
	NotAttempted []string          `json:"notAttempted"`
	Errors       map[string]string `json:"errors"`
}

type memberOutcome struct {
	status string
	err    error
}

// BulkAssign runs AssignFee semantics for every member independently with
// bounded parallelism. Each member gets its own timeout. Cancelling ctx stops
// new members from starting; committed members stay committed.
func (s *Service) BulkAssign(ctx context.Context, req BulkRequest) (BulkResult, error) {
	start := time.Now()
	memberIDs := dedupe(req.MemberIDs)
	if len(memberIDs) == 0 {
		return BulkResult{}, fees.Invalid("memberIds", "at least one member is required")
	}
	if len(memberIDs) > s.cfg.MaxMembersPerBatch {
		return BulkResult{}, fees.Invalid("memberIds", "batch exceeds the member limit")
	}
	structure, err := s.loadAssignable(ctx, req.CoachingID, req.StructureID)
	if err != nil {
		metrics.ObserveBulkAssign(metrics.ResultError, time.Since(start), nil)
		return BulkResult{}, err
	}

	outcomes := make([]memberOutcome, len(memberIDs))
	for i := range outcomes {
		outcomes[i].status = metrics.OutcomeNotAttempted
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.BulkParallelism)
	for i, memberID := range memberIDs {
		if ctx.Err() != nil {
			break
		}
		i, memberID := i, memberID
		overrides := req.Overrides
		if o, ok := req.MemberOverrides[memberID]; ok {
			overrides = o
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			memberCtx, cancel := context.WithTimeout(ctx, s.cfg.MemberTimeout)
			defer cancel()
			result, err := s.assignMember(memberCtx, structure, memberID, overrides)
			switch {
			case err != nil:
				outcomes[i] = memberOutcome{status: metrics.OutcomeFailed, err: err}
				s.logger.Warn("bulk assign member failed",
					zap.String("coaching_id", req.CoachingID),
					zap.String("member_id", memberID),
					zap.String("structure_id", structure.ID),
					zap.Error(err),
				)
			case result.Skipped:
				outcomes[i] = memberOutcome{status: metrics.OutcomeSkipped}
			default:
				outcomes[i] = memberOutcome{status: metrics.OutcomeSucceeded}
			}
			return nil
		})
	}
	_ = g.Wait()

	result := BulkResult{
		OperationID:  fees.NewID("bulk"),
		Succeeded:    []string{},
		Failed:       []string{},
		Skipped:      []string{},
		NotAttempted: []string{},
		Errors:       map[string]string{},
	}
	counts := map[string]int{}
	for i, o := range outcomes {
		id := memberIDs[i]
		counts[o.status]++
		switch o.status {
		case metrics.OutcomeSucceeded:
			result.Succeeded = append(result.Succeeded, id)
		case metrics.OutcomeSkipped:
			result.Skipped = append(result.Skipped, id)
		case metrics.OutcomeFailed:
			result.Failed = append(result.Failed, id)
			result.Errors[id] = o.err.Error()
		default:
			result.NotAttempted = append(result.NotAttempted, id)
		}
	}

	s.recorder.Record(ctx, audit.Entry{
		CoachingID: req.CoachingID,
		Event:      audit.EventBulkAssignCompleted,
		EntityType: audit.EntityBulkOperation,
		EntityID:   result.OperationID,
		Meta: audit.Fields{
			"feeStructureId":    audit.String(structure.ID),
			"feeStructureName":  audit.String(structure.Name),
			"memberCount":       audit.Int(len(memberIDs)),
			"succeededCount":    audit.Int(len(result.Succeeded)),
			"failedCount":       audit.Int(len(result.Failed)),
			"skippedCount":      audit.Int(len(result.Skipped)),
			"notAttemptedCount": audit.Int(len(result.NotAttempted)),
		},
	})
	s.publish(context.WithoutCancel(ctx), events.BulkAssignCompleted{
		CoachingID:     req.CoachingID,
		OperationID:    result.OperationID,
		FeeStructureID: structure.ID,
		Succeeded:      len(result.Succeeded),
		Failed:         len(result.Failed),
		Skipped:        len(result.Skipped),
		NotAttempted:   len(result.NotAttempted),
		OccurredAt:     s.clock.Now(),
	})

	status := metrics.ResultSuccess
	if len(result.Failed) > 0 || len(result.NotAttempted) > 0 {
		status = metrics.ResultError
	}
	metrics.ObserveBulkAssign(status, time.Since(start), counts)
	s.logger.Info("bulk assign completed",
		zap.String("coaching_id", req.CoachingID),
		zap.String("structure_id", structure.ID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("not_attempted", len(result.NotAttempted)),
	)
	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
