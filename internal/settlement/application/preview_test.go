package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching-fees/internal/audit"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/fees/infrastructure/memory"
	settlement "coaching-fees/internal/settlement/domain"
)

var t0 = time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// seed stores member m1 with one ACTIVE assignment and two records:
// a live 500 record with 300 paid and a fully paid 400 record.
func seed(t *testing.T) (*memory.Store, *audit.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{
		ID: "fs-old", CoachingID: "c1", Name: "Foundation", Concern: fees.DefaultConcern,
		Amount: dec(500), BillingCycle: fees.CycleMonthly, Tax: fees.TaxConfig{Type: fees.TaxNone}, IsActive: true,
	}))
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{
		ID: "fs-new", CoachingID: "c1", Name: "Advanced", Concern: fees.DefaultConcern,
		Amount: dec(800), BillingCycle: fees.CycleMonthly, Tax: fees.TaxConfig{Type: fees.TaxNone}, IsActive: true,
	}))
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{
		ID: "fs-bus", CoachingID: "c1", Name: "Transport", Concern: "TRANSPORT",
		Amount: dec(200), BillingCycle: fees.CycleMonthly, Tax: fees.TaxConfig{Type: fees.TaxNone}, IsActive: true,
	}))

	partial := fees.FeeRecord{
		ID: "rec-live", CoachingID: "c1", MemberID: "m1", AssignmentID: "asg-old", Title: "Foundation - Jan 2026",
		DueDate: t0, FinalAmount: dec(500), PaidAmount: dec(300), WaivedAmount: decimal.Zero,
		Status: fees.RecordPartiallyPaid, Version: 1, CreatedAt: t0,
	}
	paid := partial
	paid.ID = "rec-paid"
	paid.Title = "Foundation - Dec 2025"
	paid.FinalAmount = dec(400)
	paid.PaidAmount = dec(400)
	paid.Status = fees.RecordPaid
	require.NoError(t, store.CommitAssignment(ctx, fees.AssignmentCommit{
		Assignment: fees.FeeAssignment{
			ID: "asg-old", CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-old", Concern: fees.DefaultConcern,
			StartDate: t0, Status: fees.AssignmentActive, Version: 1, CreatedAt: t0,
		},
		Records: []fees.FeeRecord{paid, partial},
	}))

	log := audit.NewMemoryStore()
	require.NoError(t, log.Log(ctx, audit.Entry{
		ID: "log-1", CoachingID: "c1", MemberID: "m1", Event: audit.EventAssignmentCreated,
		EntityType: audit.EntityFeeAssignment, EntityID: "asg-old",
		After: audit.Fields{"discountAmount": audit.Number(dec(50))}, CreatedAt: t0,
	}))
	return store, log
}

func newService(t *testing.T, store *memory.Store, log audit.Reader) *Service {
	t.Helper()
	svc, err := NewService(store, store, store, log, nil)
	require.NoError(t, err)
	return svc
}

func TestPreviewReportsLiveBalances(t *testing.T) {
	store, log := seed(t)
	svc := newService(t, store, log)

	preview, err := svc.Preview(context.Background(), Request{CoachingID: "c1", MemberID: "m1", StructureID: "fs-new"})
	require.NoError(t, err)

	assert.True(t, preview.HasAssignment)
	assert.Equal(t, "fs-old", preview.CurrentStructureID)
	assert.Equal(t, "Foundation", preview.CurrentStructureName)
	require.Len(t, preview.PartialRecords, 1)
	assert.Equal(t, "rec-live", preview.PartialRecords[0].RecordID)
	assert.True(t, preview.PartialRecords[0].Balance.Equal(dec(200)))
	assert.True(t, preview.TotalPaid.Equal(dec(300)))
	assert.True(t, preview.TotalBalance.Equal(dec(200)))
	require.NotNil(t, preview.LastAssignmentLog)
	assert.Equal(t, "log-1", preview.LastAssignmentLog.ID)
}

func TestPreviewIsReadOnly(t *testing.T) {
	store, log := seed(t)
	svc := newService(t, store, log)
	ctx := context.Background()

	before, err := store.LoadHistory(ctx, "c1", "m1")
	require.NoError(t, err)
	_, err = svc.Preview(ctx, Request{CoachingID: "c1", MemberID: "m1"})
	require.NoError(t, err)
	after, err := store.LoadHistory(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPreviewOtherConcernHasNoAssignment(t *testing.T) {
	store, log := seed(t)
	svc := newService(t, store, log)

	preview, err := svc.Preview(context.Background(), Request{CoachingID: "c1", MemberID: "m1", StructureID: "fs-bus"})
	require.NoError(t, err)
	assert.False(t, preview.HasAssignment)
	assert.Equal(t, "TRANSPORT", preview.Concern)
	assert.Empty(t, preview.PartialRecords)
	assert.True(t, preview.TotalBalance.IsZero())
}

func TestPreviewWithoutAuditReader(t *testing.T) {
	store, _ := seed(t)
	svc := newService(t, store, nil)
	preview, err := svc.Preview(context.Background(), Request{CoachingID: "c1", MemberID: "m1"})
	require.NoError(t, err)
	assert.Nil(t, preview.LastAssignmentLog)
}

func TestPreviewUnknownStructure(t *testing.T) {
	store, log := seed(t)
	svc := newService(t, store, log)
	_, err := svc.Preview(context.Background(), Request{CoachingID: "c1", MemberID: "m1", StructureID: "nope"})
	assert.True(t, errors.Is(err, fees.ErrNotFound))
}

func TestPreviewCommitConservesBalance(t *testing.T) {
	store, log := seed(t)
	svc := newService(t, store, log)
	ctx := context.Background()
	now := t0.Add(48 * time.Hour)

	preview, err := svc.Preview(ctx, Request{CoachingID: "c1", MemberID: "m1", StructureID: "fs-new"})
	require.NoError(t, err)
	plan, err := preview.Plan(settlement.PolicyWaive, true, now)
	require.NoError(t, err)

	commit := fees.AssignmentCommit{Assignment: fees.FeeAssignment{
		ID: "asg-new", CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-new", Concern: fees.DefaultConcern,
		StartDate: now, Status: fees.AssignmentActive, Version: 1, CreditApplied: plan.Credit, CreatedAt: now,
	}}
	plan.Apply(&commit, now)
	require.NoError(t, store.CommitAssignment(ctx, commit))

	history, err := store.LoadHistory(ctx, "c1", "m1")
	require.NoError(t, err)
	waived := decimal.Zero
	for _, w := range history.Waivers {
		waived = waived.Add(w.WaivedAmount)
	}
	assert.True(t, waived.Equal(preview.TotalBalance), "waived %s preview %s", waived, preview.TotalBalance)
	assert.True(t, plan.Credit.Equal(dec(300)))

	old, err := store.GetAssignment(ctx, "c1", "asg-old")
	require.NoError(t, err)
	assert.Equal(t, fees.AssignmentRemoved, old.Status)
}

func TestPreviewCommitDetectsDrift(t *testing.T) {
	store, log := seed(t)
	svc := newService(t, store, log)
	ctx := context.Background()

	preview, err := svc.Preview(ctx, Request{CoachingID: "c1", MemberID: "m1"})
	require.NoError(t, err)
	plan, err := preview.Plan(settlement.PolicyWaive, false, t0)
	require.NoError(t, err)

	// A payment lands between preview and commit.
	record, err := store.GetRecord(ctx, "c1", "rec-live")
	require.NoError(t, err)
	updated := *record
	updated.PaidAmount = dec(350)
	require.NoError(t, store.SaveRecordMutation(ctx, fees.RecordMutation{
		Record:          updated,
		ExpectedVersion: record.Version,
		Payment:         &fees.Payment{ID: "pay-late", CoachingID: "c1", MemberID: "m1", RecordID: "rec-live", Amount: dec(50), ReceiptNo: "RCP-late"},
	}))

	commit := fees.AssignmentCommit{Assignment: fees.FeeAssignment{
		ID: "asg-new", CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-new", Concern: fees.DefaultConcern,
		Status: fees.AssignmentActive, Version: 1,
	}}
	plan.Apply(&commit, t0)
	err = store.CommitAssignment(ctx, commit)
	assert.True(t, errors.Is(err, fees.ErrConflict))
}
