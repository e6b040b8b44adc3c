package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/locks"
	"coaching-fees/internal/observability/metrics"
	settlementapp "coaching-fees/internal/settlement/application"
	settlement "coaching-fees/internal/settlement/domain"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	fees.StructureReader
	fees.AssignmentReader
	fees.RecordReader
	fees.AssignmentWriter
	fees.MemberDirectory
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// AssignRequest assigns one structure to one member.
type AssignRequest struct {
	CoachingID  string
	MemberID    string
	StructureID string
	Overrides   fees.PricingOverrides
}

// AssignResult is the outcome of one member-atomic assignment.
type AssignResult struct {
	Assignment  fees.FeeAssignment
	Records     []fees.FeeRecord
	Superseded  *fees.FeeAssignment
	Waivers     []fees.Waiver
	WaivedTotal decimal.Decimal
	// Skipped is set when the member already had this structure ACTIVE; nothing was written.
	Skipped bool
}

// Service orchestrates fee assignment.
type Service struct {
	store     Store
	preview   *settlementapp.Service
	locker    locks.Locker
	recorder  *audit.Recorder
	publisher EventPublisher
	cfg       Config
	clock     fees.Clock
	logger    *zap.Logger
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the clock.
func WithClock(clock fees.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher sets the domain event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the orchestrator.
func NewService(
	store Store,
	preview *settlementapp.Service,
	locker locks.Locker,
	recorder *audit.Recorder,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("assignment service: nil store")
	}
	if preview == nil {
		return nil, errors.New("assignment service: nil settlement preview")
	}
	if locker == nil {
		return nil, errors.New("assignment service: nil locker")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		store:    store,
		preview:  preview,
		locker:   locker,
		recorder: recorder,
		cfg:      cfg,
		clock:    fees.SystemClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AssignFee assigns a structure to a single member, superseding the member's
// ACTIVE assignment for the same concern.
func (s *Service) AssignFee(ctx context.Context, req AssignRequest) (AssignResult, error) {
	start := time.Now()
	structure, err := s.loadAssignable(ctx, req.CoachingID, req.StructureID)
	if err == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MemberTimeout)
		defer cancel()
		var result AssignResult
		result, err = s.assignMember(ctx, structure, req.MemberID, req.Overrides)
		if err == nil {
			metrics.ObserveAssign(metrics.ResultSuccess, time.Since(start))
			return result, nil
		}
	}
	metrics.ObserveAssign(metrics.ResultError, time.Since(start))
	return AssignResult{}, err
}

func (s *Service) loadAssignable(ctx context.Context, coachingID, structureID string) (fees.FeeStructure, error) {
	if coachingID == "" {
		return fees.FeeStructure{}, fees.Invalid("coachingId", "required")
	}
	if structureID == "" {
		return fees.FeeStructure{}, fees.Invalid("feeStructureId", "required")
	}
	structure, err := s.store.GetStructure(ctx, coachingID, structureID)
	if err != nil {
		return fees.FeeStructure{}, err
	}
	if structure == nil {
		return fees.FeeStructure{}, fees.NotFound("fee structure", structureID)
	}
	if !structure.IsActive {
		return fees.FeeStructure{}, fees.Invalid("feeStructureId", "structure is inactive")
	}
	return *structure, nil
}

// assignMember runs preview, settlement and creation for one member under the
// member's lock. Audit and events are emitted only after the commit succeeds.
func (s *Service) assignMember(ctx context.Context, structure fees.FeeStructure, memberID string, overrides fees.PricingOverrides) (AssignResult, error) {
	if memberID == "" {
		return AssignResult{}, fees.Invalid("memberId", "required")
	}
	overrides.NormalizeDates()
	if err := overrides.Validate(structure); err != nil {
		return AssignResult{}, err
	}
	member, err := s.store.GetMember(ctx, structure.CoachingID, memberID)
	if err != nil {
		return AssignResult{}, err
	}
	if member == nil {
		return AssignResult{}, fees.NotFound("member", memberID)
	}
	if !member.Active {
		return AssignResult{}, fees.Invalid("memberId", "member is inactive")
	}

	unlock, err := s.locker.Lock(ctx, locks.MemberKey(structure.CoachingID, memberID))
	if err != nil {
		return AssignResult{}, err
	}
	defer unlock()

	preview, err := s.preview.Preview(ctx, settlementapp.Request{
		CoachingID: structure.CoachingID,
		MemberID:   memberID,
		Concern:    structure.Concern,
	})
	if err != nil {
		return AssignResult{}, err
	}
	if current := preview.Current(); current != nil && current.FeeStructureID == structure.ID {
		return AssignResult{Assignment: *current, Skipped: true}, nil
	}

	now := s.clock.Now()
	applyCredit := s.cfg.ApplyCreditDefault
	if overrides.ApplyCredit != nil {
		applyCredit = *overrides.ApplyCredit
	}
	plan, err := preview.Plan(s.cfg.SupersedePolicy, applyCredit, now)
	if err != nil {
		return AssignResult{}, err
	}

	assignment := fees.FeeAssignment{
		ID:                fees.NewID("asg"),
		CoachingID:        structure.CoachingID,
		MemberID:          memberID,
		FeeStructureID:    structure.ID,
		Concern:           structure.Concern,
		CustomAmount:      overrides.CustomAmount,
		DiscountAmount:    fees.RoundMoney(overrides.DiscountAmount),
		DiscountReason:    overrides.DiscountReason,
		ScholarshipTag:    overrides.ScholarshipTag,
		ScholarshipAmount: fees.RoundMoney(overrides.ScholarshipAmount),
		Installments:      overrides.Installments,
		StartDate:         overrides.StartDate,
		EndDate:           overrides.EndDate,
		Status:            fees.AssignmentActive,
		CreditApplied:     plan.Credit,
		CreditRemaining:   plan.Credit,
		Version:           1,
		CreatedBy:         auth.SubjectFromContext(ctx),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	records, err := billing{structure: structure, assignment: &assignment, now: now}.initial()
	if err != nil {
		return AssignResult{}, err
	}

	commit := fees.AssignmentCommit{Assignment: assignment, Records: records}
	plan.Apply(&commit, now)
	if err := s.store.CommitAssignment(ctx, commit); err != nil {
		return AssignResult{}, err
	}

	s.recordAssignment(ctx, structure, assignment, records, plan)
	metrics.AddWaivedAmount(plan.WaivedTotal.InexactFloat64())
	s.publish(ctx, events.AssignmentCreated{
		CoachingID:     assignment.CoachingID,
		MemberID:       memberID,
		AssignmentID:   assignment.ID,
		FeeStructureID: structure.ID,
		SupersededID:   supersededID(plan),
		RecordIDs:      recordIDs(records),
		WaivedTotal:    plan.WaivedTotal,
		CreditApplied:  plan.Credit,
		OccurredAt:     now,
	})
	s.logger.Info("fee assigned",
		zap.String("coaching_id", assignment.CoachingID),
		zap.String("member_id", memberID),
		zap.String("structure_id", structure.ID),
		zap.Int("records", len(records)),
		zap.String("waived", plan.WaivedTotal.String()),
	)

	return AssignResult{
		Assignment:  assignment,
		Records:     records,
		Superseded:  plan.Superseded,
		Waivers:     plan.Waivers,
		WaivedTotal: plan.WaivedTotal,
	}, nil
}

func (s *Service) recordAssignment(ctx context.Context, structure fees.FeeStructure, assignment fees.FeeAssignment, records []fees.FeeRecord, plan settlement.Plan) {
	for _, w := range plan.Waivers {
		s.recorder.Record(ctx, audit.Entry{
			CoachingID: w.CoachingID,
			MemberID:   w.MemberID,
			Event:      audit.EventFeeWaived,
			EntityType: audit.EntityFeeRecord,
			EntityID:   w.RecordID,
			ActorID:    fees.SystemActor,
			ActorType:  audit.ActorSystem,
			After:      audit.WaiverFields(w),
			Meta:       audit.Fields{"supersedePolicy": audit.String(string(plan.Policy))},
		})
	}
	if old := plan.Superseded; old != nil {
		removed := old.Clone()
		removed.Status = fees.AssignmentRemoved
		s.recorder.Record(ctx, audit.Entry{
			CoachingID: old.CoachingID,
			MemberID:   old.MemberID,
			Event:      audit.EventAssignmentSuperseded,
			EntityType: audit.EntityFeeAssignment,
			EntityID:   old.ID,
			Before:     audit.AssignmentFields(*old),
			After:      audit.AssignmentFields(removed),
			Meta: audit.Fields{
				"supersedePolicy": audit.String(string(plan.Policy)),
				"totalBalance":    audit.Number(plan.WaivedTotal),
			},
		})
	}
	s.recorder.Record(ctx, audit.Entry{
		CoachingID: assignment.CoachingID,
		MemberID:   assignment.MemberID,
		Event:      audit.EventAssignmentCreated,
		EntityType: audit.EntityFeeAssignment,
		EntityID:   assignment.ID,
		After:      audit.AssignmentFields(assignment),
		Meta: audit.Fields{
			"feeStructureName": audit.String(structure.Name),
			"recordCount":      audit.Int(len(records)),
		},
	})
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish event failed", zap.String("event", fmt.Sprintf("%T", event)), zap.Error(err))
	}
}

func supersededID(plan settlement.Plan) string {
	if plan.Superseded == nil {
		return ""
	}
	return plan.Superseded.ID
}

func recordIDs(records []fees.FeeRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
