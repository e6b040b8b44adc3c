package application

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// StructureInput is the editable part of a fee structure.
type StructureInput struct {
	Name           string
	Description    string
	Concern        string
	Amount         decimal.Decimal
	BillingCycle   fees.BillingCycle
	LateFinePerDay decimal.Decimal
	Tax            fees.TaxConfig
	LineItems      []fees.LineItem
	Installments   fees.InstallmentPolicy
	// IsActive nil keeps the current flag; new structures default to active.
	IsActive *bool
}

// Service manages the fee structure catalog.
type Service struct {
	store    fees.StructureStore
	recorder *audit.Recorder
	clock    fees.Clock
	logger   *zap.Logger
}

// NewService constructs the catalog service.
func NewService(store fees.StructureStore, recorder *audit.Recorder, clock fees.Clock, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog service: nil structure store")
	}
	if clock == nil {
		clock = fees.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, recorder: recorder, clock: clock, logger: logger}, nil
}

// List returns the coaching's structures, active ones only unless includeInactive.
func (s *Service) List(ctx context.Context, coachingID string, includeInactive bool) ([]fees.FeeStructure, error) {
	if coachingID == "" {
		return nil, fees.Invalid("coachingId", "required")
	}
	return s.store.ListStructures(ctx, coachingID, includeInactive)
}

// Get loads one structure.
func (s *Service) Get(ctx context.Context, coachingID, id string) (fees.FeeStructure, error) {
	structure, err := s.store.GetStructure(ctx, coachingID, id)
	if err != nil {
		return fees.FeeStructure{}, err
	}
	if structure == nil {
		return fees.FeeStructure{}, fees.NotFound("fee structure", id)
	}
	return *structure, nil
}

// Create validates and stores a new structure.
func (s *Service) Create(ctx context.Context, coachingID string, in StructureInput) (fees.FeeStructure, error) {
	now := s.clock.Now()
	structure := fees.FeeStructure{
		ID:         fees.NewID("fs"),
		CoachingID: coachingID,
		IsActive:   true,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	in.apply(&structure)
	if err := structure.Validate(); err != nil {
		metrics.IncStructureOp("create", metrics.ResultError)
		return fees.FeeStructure{}, err
	}
	if err := s.store.CreateStructure(ctx, structure); err != nil {
		metrics.IncStructureOp("create", metrics.ResultError)
		return fees.FeeStructure{}, err
	}
	metrics.IncStructureOp("create", metrics.ResultSuccess)
	s.recorder.Record(ctx, audit.Entry{
		CoachingID: coachingID,
		Event:      audit.EventStructureCreated,
		EntityType: audit.EntityFeeStructure,
		EntityID:   structure.ID,
		After:      audit.StructureFields(structure),
		Meta:       audit.Fields{"label": audit.String(structure.Name)},
	})
	s.logger.Info("fee structure created",
		zap.String("coaching_id", coachingID),
		zap.String("structure_id", structure.ID),
	)
	return structure, nil
}

// Update replaces the editable fields. A structure that still has ACTIVE
// assignments may not move to another concern. An update that changes nothing
// writes nothing.
func (s *Service) Update(ctx context.Context, coachingID, id string, in StructureInput) (fees.FeeStructure, error) {
	current, err := s.Get(ctx, coachingID, id)
	if err != nil {
		metrics.IncStructureOp("update", metrics.ResultError)
		return fees.FeeStructure{}, err
	}
	next := current
	next.LineItems = append([]fees.LineItem(nil), current.LineItems...)
	in.apply(&next)
	if err := next.Validate(); err != nil {
		metrics.IncStructureOp("update", metrics.ResultError)
		return fees.FeeStructure{}, err
	}
	if next.Concern != current.Concern && current.AssignmentCount > 0 {
		metrics.IncStructureOp("update", metrics.ResultError)
		return fees.FeeStructure{}, fees.Conflict("structure %s has active assignments under %s", id, current.Concern)
	}

	before := audit.StructureFields(current)
	after := audit.StructureFields(next)
	if before.Equal(after) {
		return current, nil
	}
	next.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateStructure(ctx, next, current.Version); err != nil {
		metrics.IncStructureOp("update", metrics.ResultError)
		return fees.FeeStructure{}, err
	}
	next.Version = current.Version + 1
	metrics.IncStructureOp("update", metrics.ResultSuccess)
	s.recorder.Record(ctx, audit.Entry{
		CoachingID: coachingID,
		Event:      audit.EventStructureUpdated,
		EntityType: audit.EntityFeeStructure,
		EntityID:   id,
		Before:     before,
		After:      after,
		Meta: audit.Fields{
			"label":       audit.String(next.Name),
			"memberCount": audit.Int(current.AssignmentCount),
		},
	})
	return next, nil
}

// Delete removes an unreferenced structure and deactivates a referenced one.
func (s *Service) Delete(ctx context.Context, coachingID, id string) (deactivated bool, err error) {
	current, err := s.Get(ctx, coachingID, id)
	if err != nil {
		metrics.IncStructureOp("delete", metrics.ResultError)
		return false, err
	}
	deactivated, err = s.store.DeleteStructure(ctx, coachingID, id)
	if err != nil {
		metrics.IncStructureOp("delete", metrics.ResultError)
		return false, err
	}
	metrics.IncStructureOp("delete", metrics.ResultSuccess)

	entry := audit.Entry{
		CoachingID: coachingID,
		EntityType: audit.EntityFeeStructure,
		EntityID:   id,
		Before:     audit.StructureFields(current),
		Meta:       audit.Fields{"label": audit.String(current.Name)},
	}
	if deactivated {
		inactive := current
		inactive.IsActive = false
		entry.Event = audit.EventStructureDeactivated
		entry.After = audit.StructureFields(inactive)
		entry.Meta["memberCount"] = audit.Int(current.AssignmentCount)
	} else {
		entry.Event = audit.EventStructureDeleted
	}
	s.recorder.Record(ctx, entry)
	return deactivated, nil
}

func (in StructureInput) apply(s *fees.FeeStructure) {
	s.Name = in.Name
	s.Description = in.Description
	s.Concern = in.Concern
	s.Amount = fees.RoundMoney(in.Amount)
	s.BillingCycle = in.BillingCycle
	s.LateFinePerDay = in.LateFinePerDay
	s.Tax = in.Tax
	s.LineItems = append([]fees.LineItem(nil), in.LineItems...)
	s.Installments = in.Installments
	s.Installments.Fixed = append([]fees.Installment(nil), in.Installments.Fixed...)
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	s.Normalize()
}
