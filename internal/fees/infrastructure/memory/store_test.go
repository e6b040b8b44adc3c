package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fees "coaching-fees/internal/fees/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedAssignment(t *testing.T, store *Store, id string, paid string) fees.FeeRecord {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	record := fees.FeeRecord{
		ID: "rec-" + id, CoachingID: "c1", MemberID: "m1", AssignmentID: id, Title: "Jan",
		DueDate: now, FinalAmount: dec("500"), PaidAmount: dec(paid), Status: fees.RecordPartiallyPaid,
		Version: 1, CreatedAt: now,
	}
	require.NoError(t, store.CommitAssignment(context.Background(), fees.AssignmentCommit{
		Assignment: fees.FeeAssignment{
			ID: id, CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-1", Concern: "TUITION",
			Status: fees.AssignmentActive, StartDate: now, Version: 1, CreatedAt: now,
		},
		Records: []fees.FeeRecord{record},
	}))
	return record
}

func TestCommitAssignmentRejectsSecondActive(t *testing.T) {
	store := NewStore()
	seedAssignment(t, store, "a1", "300")

	err := store.CommitAssignment(context.Background(), fees.AssignmentCommit{
		Assignment: fees.FeeAssignment{ID: "a2", CoachingID: "c1", MemberID: "m1", Concern: "TUITION", Status: fees.AssignmentActive, Version: 1},
	})
	assert.ErrorIs(t, err, fees.ErrConflict)
}

func TestCommitAssignmentDetectsDrift(t *testing.T) {
	store := NewStore()
	record := seedAssignment(t, store, "a1", "300")
	old, err := store.GetAssignment(context.Background(), "c1", "a1")
	require.NoError(t, err)

	commit := fees.AssignmentCommit{
		Superseded:        old,
		SupersededVersion: old.Version,
		ExpectedLive:      []fees.SettledRecord{{RecordID: record.ID, FinalAmount: dec("500"), PaidAmount: dec("250")}},
		Waivers:           []fees.Waiver{{ID: "w1", CoachingID: "c1", MemberID: "m1", RecordID: record.ID, WaivedAmount: dec("250")}},
		Assignment:        fees.FeeAssignment{ID: "a2", CoachingID: "c1", MemberID: "m1", Concern: "TUITION", Status: fees.AssignmentActive, Version: 1},
	}
	assert.ErrorIs(t, store.CommitAssignment(context.Background(), commit), fees.ErrConflict)

	history, err := store.LoadHistory(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.Empty(t, history.Waivers)

	commit.ExpectedLive[0].PaidAmount = dec("300")
	commit.Waivers[0].WaivedAmount = dec("200")
	require.NoError(t, store.CommitAssignment(context.Background(), commit))

	waived, err := store.GetRecord(context.Background(), "c1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, fees.RecordWaived, waived.Status)
	assert.True(t, waived.Balance().IsZero())

	superseded, err := store.GetAssignment(context.Background(), "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, fees.AssignmentRemoved, superseded.Status)
	assert.Equal(t, 2, superseded.Version)
}

func TestSaveRecordMutationChecksVersion(t *testing.T) {
	store := NewStore()
	record := seedAssignment(t, store, "a1", "0")

	record.PaidAmount = dec("100")
	err := store.SaveRecordMutation(context.Background(), fees.RecordMutation{Record: record, ExpectedVersion: 7})
	assert.ErrorIs(t, err, fees.ErrConflict)

	require.NoError(t, store.SaveRecordMutation(context.Background(), fees.RecordMutation{
		Record:          record,
		ExpectedVersion: 1,
		Payment:         &fees.Payment{ID: "p1", CoachingID: "c1", MemberID: "m1", RecordID: record.ID, Amount: dec("100"), ReceiptNo: "RCP-1"},
	}))
	stored, err := store.GetRecord(context.Background(), "c1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestUpdateStructureChecksVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{ID: "fs-1", CoachingID: "c1", Name: "Tuition", IsActive: true, Version: 1}))

	renamed := fees.FeeStructure{ID: "fs-1", CoachingID: "c1", Name: "Tuition 2026", IsActive: true}
	require.NoError(t, store.UpdateStructure(ctx, renamed, 1))

	stale := fees.FeeStructure{ID: "fs-1", CoachingID: "c1", Name: "Tuition Old", IsActive: true}
	assert.ErrorIs(t, store.UpdateStructure(ctx, stale, 1), fees.ErrConflict)
	assert.ErrorIs(t, store.UpdateStructure(ctx, fees.FeeStructure{ID: "fs-x", CoachingID: "c1"}, 1), fees.ErrNotFound)

	got, err := store.GetStructure(ctx, "c1", "fs-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tuition 2026", got.Name)
	assert.Equal(t, 2, got.Version)
}

func TestDeleteStructureDeactivatesWhenReferenced(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{ID: "fs-1", CoachingID: "c1", Name: "Tuition", IsActive: true}))
	require.NoError(t, store.CreateStructure(ctx, fees.FeeStructure{ID: "fs-2", CoachingID: "c1", Name: "Lab", IsActive: true}))
	assert.ErrorIs(t, store.CreateStructure(ctx, fees.FeeStructure{ID: "fs-3", CoachingID: "c1", Name: "tuition", IsActive: true}), fees.ErrConflict)
	seedAssignment(t, store, "a1", "0")

	deactivated, err := store.DeleteStructure(ctx, "c1", "fs-1")
	require.NoError(t, err)
	assert.True(t, deactivated)
	kept, err := store.GetStructure(ctx, "c1", "fs-1")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.False(t, kept.IsActive)
	assert.Equal(t, 1, kept.AssignmentCount)

	deactivated, err = store.DeleteStructure(ctx, "c1", "fs-2")
	require.NoError(t, err)
	assert.False(t, deactivated)
	gone, err := store.GetStructure(ctx, "c1", "fs-2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
