package http

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	assignmentapp "coaching-fees/internal/assignment/application"
	catalogapp "coaching-fees/internal/catalog/application"
	fees "coaching-fees/internal/fees/domain"
	ledgerapp "coaching-fees/internal/ledger/application"
)

type structureRequest struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Concern        string                 `json:"concern"`
	Amount         decimal.Decimal        `json:"amount"`
	BillingCycle   fees.BillingCycle      `json:"billingCycle"`
	LateFinePerDay decimal.Decimal        `json:"lateFinePerDay"`
	Tax            fees.TaxConfig         `json:"taxConfig"`
	LineItems      []fees.LineItem        `json:"lineItems"`
	Installments   fees.InstallmentPolicy `json:"installments"`
	IsActive       *bool                  `json:"isActive"`
}

func (r structureRequest) input() catalogapp.StructureInput {
	return catalogapp.StructureInput{
		Name:           r.Name,
		Description:    r.Description,
		Concern:        r.Concern,
		Amount:         r.Amount,
		BillingCycle:   r.BillingCycle,
		LateFinePerDay: r.LateFinePerDay,
		Tax:            r.Tax,
		LineItems:      r.LineItems,
		Installments:   r.Installments,
		IsActive:       r.IsActive,
	}
}

type structureResponse struct {
	ID              string                 `json:"id"`
	CoachingID      string                 `json:"coachingId"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Concern         string                 `json:"concern"`
	Amount          decimal.Decimal        `json:"amount"`
	BillingCycle    fees.BillingCycle      `json:"billingCycle"`
	LateFinePerDay  decimal.Decimal        `json:"lateFinePerDay"`
	Tax             fees.TaxConfig         `json:"taxConfig"`
	LineItems       []fees.LineItem        `json:"lineItems"`
	Installments    fees.InstallmentPolicy `json:"installments"`
	IsActive        bool                   `json:"isActive"`
	AssignmentCount int                    `json:"assignmentCount"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func toStructure(s fees.FeeStructure) structureResponse {
	items := s.LineItems
	if items == nil {
		items = []fees.LineItem{}
	}
	return structureResponse{
		ID:              s.ID,
		CoachingID:      s.CoachingID,
		Name:            s.Name,
		Description:     s.Description,
		Concern:         s.Concern,
		Amount:          s.Amount,
		BillingCycle:    s.BillingCycle,
		LateFinePerDay:  s.LateFinePerDay,
		Tax:             s.Tax,
		LineItems:       items,
		Installments:    s.Installments,
		IsActive:        s.IsActive,
		AssignmentCount: s.AssignmentCount,
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// dateValue decodes either an RFC3339 timestamp or a YYYY-MM-DD date.
type dateValue time.Time

func (d *dateValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, ok := parseDate(s)
	if !ok {
		return fmt.Errorf("invalid date %q: must be RFC3339 or YYYY-MM-DD", s)
	}
	*d = dateValue(t)
	return nil
}

func (d *dateValue) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}

type overridesRequest struct {
	CustomAmount      *decimal.Decimal `json:"customAmount"`
	DiscountAmount    decimal.Decimal  `json:"discountAmount"`
	DiscountReason    string           `json:"discountReason"`
	ScholarshipTag    string           `json:"scholarshipTag"`
	ScholarshipAmount decimal.Decimal  `json:"scholarshipAmount"`
	StartDate         *dateValue       `json:"startDate"`
	EndDate           *dateValue       `json:"endDate"`
	Installments      int              `json:"installments"`
	ApplyCredit       *bool            `json:"applyCredit"`
}

// overrides converts the request; a missing start date means today.
func (r overridesRequest) overrides(now time.Time) fees.PricingOverrides {
	o := fees.PricingOverrides{
		DiscountAmount:    r.DiscountAmount,
		DiscountReason:    r.DiscountReason,
		ScholarshipTag:    r.ScholarshipTag,
		ScholarshipAmount: r.ScholarshipAmount,
		EndDate:           r.EndDate.timePtr(),
		Installments:      r.Installments,
		ApplyCredit:       r.ApplyCredit,
	}
	if r.CustomAmount != nil {
		o.CustomAmount = decimal.NullDecimal{Decimal: *r.CustomAmount, Valid: true}
	}
	if r.StartDate != nil {
		o.StartDate = time.Time(*r.StartDate)
	} else {
		o.StartDate = now
	}
	o.NormalizeDates()
	return o
}

type assignRequest struct {
	MemberID       string `json:"memberId"`
	FeeStructureID string `json:"feeStructureId"`
	overridesRequest
}

type bulkRequest struct {
	MemberIDs       []string                    `json:"memberIds"`
	FeeStructureID  string                      `json:"feeStructureId"`
	Overrides       overridesRequest            `json:"overrides"`
	MemberOverrides map[string]overridesRequest `json:"memberOverrides"`
}

type assignmentPatchRequest struct {
	CustomAmount      *decimal.Decimal `json:"customAmount"`
	ClearCustomAmount bool             `json:"clearCustomAmount"`
	DiscountAmount    *decimal.Decimal `json:"discountAmount"`
	DiscountReason    *string          `json:"discountReason"`
	ScholarshipTag    *string          `json:"scholarshipTag"`
	ScholarshipAmount *decimal.Decimal `json:"scholarshipAmount"`
	EndDate           *dateValue       `json:"endDate"`
	ClearEndDate      bool             `json:"clearEndDate"`
}

func (r assignmentPatchRequest) patch() assignmentapp.AssignmentPatch {
	p := assignmentapp.AssignmentPatch{
		DiscountAmount:    r.DiscountAmount,
		DiscountReason:    r.DiscountReason,
		ScholarshipTag:    r.ScholarshipTag,
		ScholarshipAmount: r.ScholarshipAmount,
		EndDate:           r.EndDate.timePtr(),
		ClearEndDate:      r.ClearEndDate,
	}
	switch {
	case r.ClearCustomAmount:
		p.CustomAmount = &decimal.NullDecimal{}
	case r.CustomAmount != nil:
		p.CustomAmount = &decimal.NullDecimal{Decimal: *r.CustomAmount, Valid: true}
	}
	return p
}

type statusRequest struct {
	Status fees.AssignmentStatus `json:"status"`
}

type assignmentResponse struct {
	ID                string                `json:"id"`
	CoachingID        string                `json:"coachingId"`
	MemberID          string                `json:"memberId"`
	FeeStructureID    string                `json:"feeStructureId"`
	Concern           string                `json:"concern"`
	CustomAmount      *decimal.Decimal      `json:"customAmount"`
	DiscountAmount    decimal.Decimal       `json:"discountAmount"`
	DiscountReason    string                `json:"discountReason,omitempty"`
	ScholarshipTag    string                `json:"scholarshipTag,omitempty"`
	ScholarshipAmount decimal.Decimal       `json:"scholarshipAmount"`
	Installments      int                   `json:"installments,omitempty"`
	StartDate         time.Time             `json:"startDate"`
	EndDate           *time.Time            `json:"endDate"`
	Status            fees.AssignmentStatus `json:"status"`
	CreditApplied     decimal.Decimal       `json:"creditApplied"`
	CreditRemaining   decimal.Decimal       `json:"creditRemaining"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

func toAssignment(a fees.FeeAssignment) assignmentResponse {
	out := assignmentResponse{
		ID:                a.ID,
		CoachingID:        a.CoachingID,
		MemberID:          a.MemberID,
		FeeStructureID:    a.FeeStructureID,
		Concern:           a.Concern,
		DiscountAmount:    a.DiscountAmount,
		DiscountReason:    a.DiscountReason,
		ScholarshipTag:    a.ScholarshipTag,
		ScholarshipAmount: a.ScholarshipAmount,
		Installments:      a.Installments,
		StartDate:         a.StartDate,
		EndDate:           a.EndDate,
		Status:            a.Status,
		CreditApplied:     a.CreditApplied,
		CreditRemaining:   a.CreditRemaining,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if a.CustomAmount.Valid {
		amount := a.CustomAmount.Decimal
		out.CustomAmount = &amount
	}
	return out
}

type recordResponse struct {
	ID                string            `json:"id"`
	AssignmentID      string            `json:"assignmentId"`
	MemberID          string            `json:"memberId"`
	Title             string            `json:"title"`
	DueDate           time.Time         `json:"dueDate"`
	BaseAmount        decimal.Decimal   `json:"baseAmount"`
	DiscountAmount    decimal.Decimal   `json:"discountAmount"`
	ScholarshipAmount decimal.Decimal   `json:"scholarshipAmount"`
	TaxAmount         decimal.Decimal   `json:"taxAmount"`
	CreditAmount      decimal.Decimal   `json:"creditAmount"`
	FinalAmount       decimal.Decimal   `json:"finalAmount"`
	PaidAmount        decimal.Decimal   `json:"paidAmount"`
	WaivedAmount      decimal.Decimal   `json:"waivedAmount"`
	Balance           decimal.Decimal   `json:"balance"`
	Status            fees.RecordStatus `json:"status"`
	DaysOverdue       int               `json:"daysOverdue"`
}

func toRecord(r fees.FeeRecord, now time.Time) recordResponse {
	return recordResponse{
		ID:                r.ID,
		AssignmentID:      r.AssignmentID,
		MemberID:          r.MemberID,
		Title:             r.Title,
		DueDate:           r.DueDate,
		BaseAmount:        r.BaseAmount,
		DiscountAmount:    r.DiscountAmount,
		ScholarshipAmount: r.ScholarshipAmount,
		TaxAmount:         r.TaxAmount,
		CreditAmount:      r.CreditAmount,
		FinalAmount:       r.FinalAmount,
		PaidAmount:        r.PaidAmount,
		WaivedAmount:      r.WaivedAmount,
		Balance:           r.Balance(),
		Status:            r.EffectiveStatus(now),
		DaysOverdue:       r.DaysOverdue(now),
	}
}

func toRecords(records []fees.FeeRecord, now time.Time) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecord(r, now))
	}
	return out
}

type assignResponse struct {
	Assignment   assignmentResponse `json:"assignment"`
	Records      []recordResponse   `json:"records"`
	SupersededID string             `json:"supersededAssignmentId,omitempty"`
	WaivedTotal  decimal.Decimal    `json:"waivedTotal"`
	Skipped      bool               `json:"skipped"`
}

type paymentRequest struct {
	Amount         decimal.Decimal  `json:"amount"`
	Mode           fees.PaymentMode `json:"mode"`
	TransactionRef string           `json:"transactionRef"`
	PaidAt         *time.Time       `json:"paidAt"`
}

type paymentResponse struct {
	ID             string           `json:"id"`
	RecordID       string           `json:"recordId"`
	Amount         decimal.Decimal  `json:"amount"`
	Mode           fees.PaymentMode `json:"mode"`
	TransactionRef string           `json:"transactionRef,omitempty"`
	ReceiptNo      string           `json:"receiptNo"`
	PaidAt         time.Time        `json:"paidAt"`
	Record         recordResponse   `json:"record"`
}

type refundRequest struct {
	Amount decimal.Decimal  `json:"amount"`
	Mode   fees.PaymentMode `json:"mode"`
	Reason string           `json:"reason"`
}

type refundResponse struct {
	ID         string           `json:"id"`
	PaymentID  string           `json:"paymentId"`
	Amount     decimal.Decimal  `json:"amount"`
	Mode       fees.PaymentMode `json:"mode"`
	Reason     string           `json:"reason,omitempty"`
	RefundedAt time.Time        `json:"refundedAt"`
	Record     recordResponse   `json:"record"`
}

type waiveRequest struct {
	Reason string `json:"reason"`
}

type waiverResponse struct {
	ID           string          `json:"id"`
	RecordID     string          `json:"recordId"`
	WaivedAmount decimal.Decimal `json:"waivedAmount"`
	Reason       string          `json:"reason"`
	Record       recordResponse  `json:"record"`
}

type reminderResponse struct {
	RecordID    string          `json:"recordId"`
	MemberID    string          `json:"memberId"`
	Balance     decimal.Decimal `json:"balance"`
	DaysOverdue int             `json:"daysOverdue"`
	Queued      bool            `json:"queued"`
}

type profileAssignment struct {
	assignmentResponse
	StructureName string            `json:"structureName"`
	BillingCycle  fees.BillingCycle `json:"billingCycle"`
	Records       []recordResponse  `json:"records"`
}

type profileResponse struct {
	Member      fees.Member         `json:"member"`
	Ledger      ledgerapp.Ledger    `json:"ledger"`
	Assignments []profileAssignment `json:"assignments"`
}

func toProfile(p ledgerapp.Profile, now time.Time) profileResponse {
	out := profileResponse{Member: p.Member, Ledger: p.Ledger, Assignments: make([]profileAssignment, 0, len(p.Assignments))}
	for _, a := range p.Assignments {
		records := make([]fees.FeeRecord, 0, len(a.Records))
		for _, r := range a.Records {
			records = append(records, r.FeeRecord)
		}
		out.Assignments = append(out.Assignments, profileAssignment{
			assignmentResponse: toAssignment(a.FeeAssignment),
			StructureName:      a.StructureName,
			BillingCycle:       a.BillingCycle,
			Records:            toRecords(records, now),
		})
	}
	return out
}
