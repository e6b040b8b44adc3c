package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/fees/infrastructure/memory"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	store.PutMember(fees.Member{ID: "m1", CoachingID: "c1", Name: "Asha", Active: true})
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{
		ID: "fs-1", CoachingID: "c1", Name: "Tuition", Concern: fees.DefaultConcern,
		Amount: amount(1000), BillingCycle: fees.CycleMonthly, Tax: fees.TaxConfig{Type: fees.TaxNone}, IsActive: true,
	}))
	rec := record("rec-1", 1000, day(1))
	rec.CoachingID = "c1"
	rec.MemberID = "m1"
	rec.DueDate = day(5)
	require.NoError(t, store.CommitAssignment(ctx, fees.AssignmentCommit{
		Assignment: fees.FeeAssignment{
			ID: "asg-1", CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-1", Concern: fees.DefaultConcern,
			StartDate: day(1), Status: fees.AssignmentActive, Version: 1, CreatedAt: day(1),
		},
		Records: []fees.FeeRecord{rec},
	}))
	return store
}

func TestServiceStudentLedger(t *testing.T) {
	store := seedStore(t)
	svc, err := NewService(store, store, store, store, fixedClock(day(20)), nil)
	require.NoError(t, err)

	ledger, err := svc.StudentLedger(context.Background(), "c1", "m1")
	require.NoError(t, err)
	require.Len(t, ledger.Timeline, 1)
	assert.True(t, ledger.Summary.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestServiceUnknownMember(t *testing.T) {
	store := seedStore(t)
	svc, err := NewService(store, store, store, store, nil, nil)
	require.NoError(t, err)

	_, err = svc.StudentLedger(context.Background(), "c1", "ghost")
	assert.True(t, errors.Is(err, fees.ErrNotFound))

	_, err = svc.MemberFeeProfile(context.Background(), "c2", "m1")
	assert.True(t, errors.Is(err, fees.ErrNotFound), "members are scoped to their coaching")
}

func TestServiceMemberFeeProfileMarksOverdue(t *testing.T) {
	store := seedStore(t)
	svc, err := NewService(store, store, store, store, fixedClock(day(20)), nil)
	require.NoError(t, err)

	profile, err := svc.MemberFeeProfile(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", profile.Member.Name)
	require.Len(t, profile.Assignments, 1)
	view := profile.Assignments[0]
	assert.Equal(t, "Tuition", view.StructureName)
	require.Len(t, view.Records, 1)
	assert.Equal(t, fees.RecordOverdue, view.Records[0].EffectiveStatus)
	assert.Equal(t, 15, view.Records[0].DaysOverdue)
	assert.Equal(t, fees.RecordPending, view.Records[0].Status)
}

func TestNewServiceRejectsNilDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil)
	assert.EqualError(t, err, "ledger service: nil history reader")
}
