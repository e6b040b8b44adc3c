package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
	settlement "coaching-fees/internal/settlement/domain"
)

// PartialRecord is a live record a reassignment would orphan.
type PartialRecord struct {
	RecordID    string            `json:"recordId"`
	Title       string            `json:"title"`
	DueDate     time.Time         `json:"dueDate"`
	Status      fees.RecordStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	PaidAmount  decimal.Decimal   `json:"paidAmount"`
	Balance     decimal.Decimal   `json:"balance"`
}

// Preview shows what superseding the member's current assignment would settle.
type Preview struct {
	HasAssignment        bool            `json:"hasAssignment"`
	Concern              string          `json:"concern"`
	CurrentAssignmentID  string          `json:"currentAssignmentId,omitempty"`
	CurrentStructureID   string          `json:"currentStructureId,omitempty"`
	CurrentStructureName string          `json:"currentStructureName,omitempty"`
	PartialRecords       []PartialRecord `json:"partialRecords"`
	TotalPaid            decimal.Decimal `json:"totalPaid"`
	TotalBalance         decimal.Decimal `json:"totalBalance"`
	LastAssignmentLog    *audit.Entry    `json:"lastAssignmentLog"`

	current *fees.FeeAssignment
	live    []fees.FeeRecord
}

// Request selects whose settlement to preview. Concern wins over StructureID;
// with neither the default concern is used.
type Request struct {
	CoachingID  string
	MemberID    string
	Concern     string
	StructureID string
}

// Current returns the assignment the preview was computed against.
func (p Preview) Current() *fees.FeeAssignment {
	return p.current
}

// Plan turns the preview into the commit plan for policy.
func (p Preview) Plan(policy settlement.Policy, applyCredit bool, now time.Time) (settlement.Plan, error) {
	return settlement.NewPlan(p.current, p.live, policy, applyCredit, now)
}

// Service computes settlement previews. It never writes.
type Service struct {
	assignments fees.AssignmentReader
	records     fees.RecordReader
	structures  fees.StructureReader
	auditLog    audit.Reader
	logger      *zap.Logger
}

// NewService constructs the preview service. auditLog may be nil.
func NewService(
	assignments fees.AssignmentReader,
	records fees.RecordReader,
	structures fees.StructureReader,
	auditLog audit.Reader,
	logger *zap.Logger,
) (*Service, error) {
	if assignments == nil {
		return nil, errors.New("settlement preview: nil assignment reader")
	}
	if records == nil {
		return nil, errors.New("settlement preview: nil record reader")
	}
	if structures == nil {
		return nil, errors.New("settlement preview: nil structure reader")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		assignments: assignments,
		records:     records,
		structures:  structures,
		auditLog:    auditLog,
		logger:      logger,
	}, nil
}

// Preview reports the live records of the member's ACTIVE assignment for the
// concern. No live records is an empty settlement, not an error.
func (s *Service) Preview(ctx context.Context, req Request) (Preview, error) {
	preview, err := s.preview(ctx, req)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncSettlementPreview(result)
	return preview, err
}

func (s *Service) preview(ctx context.Context, req Request) (Preview, error) {
	if req.CoachingID == "" {
		return Preview{}, fees.Invalid("coachingId", "required")
	}
	if req.MemberID == "" {
		return Preview{}, fees.Invalid("memberId", "required")
	}
	concern, err := s.concern(ctx, req)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{
		Concern:        concern,
		PartialRecords: []PartialRecord{},
		TotalPaid:      decimal.Zero,
		TotalBalance:   decimal.Zero,
	}
	current, err := s.assignments.FindActiveAssignment(ctx, req.CoachingID, req.MemberID, concern)
	if err != nil {
		return Preview{}, err
	}
	if current != nil {
		preview.HasAssignment = true
		preview.current = current
		preview.CurrentAssignmentID = current.ID
		preview.CurrentStructureID = current.FeeStructureID
		structure, err := s.structures.GetStructure(ctx, req.CoachingID, current.FeeStructureID)
		if err != nil {
			return Preview{}, err
		}
		if structure != nil {
			preview.CurrentStructureName = structure.Name
		}

		records, err := s.records.ListAssignmentRecords(ctx, req.CoachingID, current.ID)
		if err != nil {
			return Preview{}, err
		}
		for _, r := range records {
			if !r.Status.Live() {
				continue
			}
			balance := r.Balance()
			preview.live = append(preview.live, r)
			preview.PartialRecords = append(preview.PartialRecords, PartialRecord{
				RecordID:    r.ID,
				Title:       r.Title,
				DueDate:     r.DueDate,
				Status:      r.Status,
				TotalAmount: r.FinalAmount,
				PaidAmount:  r.PaidAmount,
				Balance:     balance,
			})
			preview.TotalPaid = preview.TotalPaid.Add(r.PaidAmount)
			preview.TotalBalance = preview.TotalBalance.Add(balance)
		}
	}

	if s.auditLog != nil {
		entry, err := s.auditLog.LatestForMember(ctx, req.CoachingID, req.MemberID,
			[]audit.Event{audit.EventAssignmentCreated, audit.EventAssignmentUpdated})
		if err != nil {
			// The log is a convenience for pulling prior overrides forward.
			s.logger.Warn("last assignment log unavailable",
				zap.String("coaching_id", req.CoachingID),
				zap.String("member_id", req.MemberID),
				zap.Error(err),
			)
		} else {
			preview.LastAssignmentLog = entry
		}
	}
	return preview, nil
}

func (s *Service) concern(ctx context.Context, req Request) (string, error) {
	if req.Concern != "" {
		return fees.NormalizeConcern(req.Concern), nil
	}
	if req.StructureID == "" {
		return fees.DefaultConcern, nil
	}
	structure, err := s.structures.GetStructure(ctx, req.CoachingID, req.StructureID)
	if err != nil {
		return "", err
	}
	if structure == nil {
		return "", fees.NotFound("fee structure", req.StructureID)
	}
	return fees.NormalizeConcern(structure.Concern), nil
}
