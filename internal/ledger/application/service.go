package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// RecordView is a record with its read-time status.
type RecordView struct {
	fees.FeeRecord
	EffectiveStatus fees.RecordStatus
	DaysOverdue     int
	Balance         decimal.Decimal
}

// AssignmentView is an assignment with its structure name and records.
type AssignmentView struct {
	fees.FeeAssignment
	StructureName string
	BillingCycle  fees.BillingCycle
	Records       []RecordView
}

// Profile is everything the fee screen shows for one member.
type Profile struct {
	Member      fees.Member
	Ledger      Ledger
	Assignments []AssignmentView
}

// Service answers ledger and profile queries.
type Service struct {
	history     fees.HistoryReader
	assignments fees.AssignmentReader
	structures  fees.StructureReader
	members     fees.MemberDirectory
	clock       fees.Clock
	logger      *zap.Logger
}

// NewService constructs the ledger service.
func NewService(
	history fees.HistoryReader,
	assignments fees.AssignmentReader,
	structures fees.StructureReader,
	members fees.MemberDirectory,
	clock fees.Clock,
	logger *zap.Logger,
) (*Service, error) {
	if history == nil {
		return nil, errors.New("ledger service: nil history reader")
	}
	if assignments == nil {
		return nil, errors.New("ledger service: nil assignment reader")
	}
	if structures == nil {
		return nil, errors.New("ledger service: nil structure reader")
	}
	if members == nil {
		return nil, errors.New("ledger service: nil member directory")
	}
	if clock == nil {
		clock = fees.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		history:     history,
		assignments: assignments,
		structures:  structures,
		members:     members,
		clock:       clock,
		logger:      logger,
	}, nil
}

// StudentLedger rebuilds the member's ledger from stored history.
func (s *Service) StudentLedger(ctx context.Context, coachingID, memberID string) (Ledger, error) {
	start := time.Now()
	ledger, err := s.studentLedger(ctx, coachingID, memberID)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveLedgerBuild(result, time.Since(start))
	return ledger, err
}

func (s *Service) studentLedger(ctx context.Context, coachingID, memberID string) (Ledger, error) {
	if _, err := s.member(ctx, coachingID, memberID); err != nil {
		return Ledger{}, err
	}
	history, err := s.history.LoadHistory(ctx, coachingID, memberID)
	if err != nil {
		return Ledger{}, err
	}
	return Build(history), nil
}

// MemberFeeProfile returns the member, their ledger and every assignment with records.
func (s *Service) MemberFeeProfile(ctx context.Context, coachingID, memberID string) (Profile, error) {
	member, err := s.member(ctx, coachingID, memberID)
	if err != nil {
		return Profile{}, err
	}
	history, err := s.history.LoadHistory(ctx, coachingID, memberID)
	if err != nil {
		return Profile{}, err
	}
	assignments, err := s.assignments.ListMemberAssignments(ctx, coachingID, memberID)
	if err != nil {
		return Profile{}, err
	}

	now := s.clock.Now()
	byAssignment := make(map[string][]RecordView, len(assignments))
	for _, r := range history.Records {
		byAssignment[r.AssignmentID] = append(byAssignment[r.AssignmentID], RecordView{
			FeeRecord:       r,
			EffectiveStatus: r.EffectiveStatus(now),
			DaysOverdue:     r.DaysOverdue(now),
			Balance:         r.Balance(),
		})
	}

	names := make(map[string]*fees.FeeStructure)
	views := make([]AssignmentView, 0, len(assignments))
	for _, a := range assignments {
		structure, ok := names[a.FeeStructureID]
		if !ok {
			structure, err = s.structures.GetStructure(ctx, coachingID, a.FeeStructureID)
			if err != nil {
				return Profile{}, err
			}
			names[a.FeeStructureID] = structure
		}
		view := AssignmentView{FeeAssignment: a, Records: byAssignment[a.ID]}
		if structure != nil {
			view.StructureName = structure.Name
			view.BillingCycle = structure.BillingCycle
		} else {
			s.logger.Warn("assignment references a missing structure",
				zap.String("coaching_id", coachingID),
				zap.String("member_id", memberID),
				zap.String("structure_id", a.FeeStructureID),
			)
		}
		views = append(views, view)
	}

	return Profile{Member: *member, Ledger: Build(history), Assignments: views}, nil
}

func (s *Service) member(ctx context.Context, coachingID, memberID string) (*fees.Member, error) {
	if coachingID == "" {
		return nil, fees.Invalid("coachingId", "required")
	}
	if memberID == "" {
		return nil, fees.Invalid("memberId", "required")
	}
	member, err := s.members.GetMember(ctx, coachingID, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fees.NotFound("member", memberID)
	}
	return member, nil
}
