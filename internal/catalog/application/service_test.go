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
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

var now = time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)

func newCatalog(t *testing.T) (*Service, *memory.Store, *audit.MemoryStore) {
	t.Helper()
	store := memory.NewStore()
	log := audit.NewMemoryStore()
	svc, err := NewService(store, audit.NewRecorder(log, nil, audit.WithClock(fixedClock(now))), fixedClock(now), nil)
	require.NoError(t, err)
	return svc, store, log
}

func tuition() StructureInput {
	return StructureInput{
		Name:         " Tuition ",
		Amount:       decimal.NewFromInt(1200),
		BillingCycle: fees.CycleMonthly,
		LineItems: []fees.LineItem{
			{Label: "Classes", Amount: decimal.NewFromInt(1000)},
			{Label: "Material", Amount: decimal.NewFromInt(200)},
		},
	}
}

func TestCreateNormalizesAndAudits(t *testing.T) {
	svc, _, log := newCatalog(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)
	assert.Equal(t, "Tuition", created.Name)
	assert.Equal(t, fees.DefaultConcern, created.Concern)
	assert.Equal(t, fees.TaxNone, created.Tax.Type)
	assert.True(t, created.IsActive)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventStructureCreated, entries[0].Event)
	assert.Equal(t, created.ID, entries[0].EntityID)
	assert.Equal(t, audit.ActorSystem, entries[0].ActorType)
}

func TestCreateRejectsInvalidAndDuplicate(t *testing.T) {
	svc, _, log := newCatalog(t)
	ctx := context.Background()

	bad := tuition()
	bad.Amount = decimal.Zero
	_, err := svc.Create(ctx, "c1", bad)
	var verr *fees.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)

	_, err = svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)
	dup := tuition()
	dup.Name = "TUITION"
	_, err = svc.Create(ctx, "c1", dup)
	assert.True(t, errors.Is(err, fees.ErrConflict))

	_, err = svc.Create(ctx, "c2", tuition())
	assert.NoError(t, err, "names are unique per coaching only")
	assert.Len(t, log.Entries(), 2)
}

func TestUpdateRecordsDiff(t *testing.T) {
	svc, _, log := newCatalog(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)

	in := tuition()
	in.Amount = decimal.NewFromInt(1500)
	in.LineItems[0].Amount = decimal.NewFromInt(1300)
	updated, err := svc.Update(ctx, "c1", created.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(1500)))

	entries := log.Entries()
	require.Len(t, entries, 2)
	entry := entries[1]
	assert.Equal(t, audit.EventStructureUpdated, entry.Event)

	fields := map[string]audit.ChangeKind{}
	for _, c := range audit.Diff(entry.Before, entry.After, nil) {
		fields[c.Field] = c.Kind
	}
	assert.Equal(t, map[string]audit.ChangeKind{
		"amount":    audit.ChangeChanged,
		"lineItems": audit.ChangeChanged,
	}, fields)
}

func TestUpdateWithoutChangesWritesNothing(t *testing.T) {
	svc, _, log := newCatalog(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "c1", created.ID, tuition())
	require.NoError(t, err)
	assert.Len(t, log.Entries(), 1)
}

func TestUpdateUnknownStructure(t *testing.T) {
	svc, _, _ := newCatalog(t)
	_, err := svc.Update(context.Background(), "c1", "fs-missing", tuition())
	assert.True(t, errors.Is(err, fees.ErrNotFound))
}

// racingStore lets another writer update a structure between the service's
// read and its write.
type racingStore struct {
	*memory.Store
	race func(current fees.FeeStructure)
}

func (r *racingStore) GetStructure(ctx context.Context, coachingID, id string) (*fees.FeeStructure, error) {
	current, err := r.Store.GetStructure(ctx, coachingID, id)
	if err == nil && current != nil && r.race != nil {
		race := r.race
		r.race = nil
		race(*current)
	}
	return current, err
}

func TestUpdateBumpsVersion(t *testing.T) {
	svc, store, _ := newCatalog(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	in := tuition()
	in.Amount = decimal.NewFromInt(1500)
	in.LineItems[0].Amount = decimal.NewFromInt(1300)
	updated, err := svc.Update(ctx, "c1", created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	stored, err := store.GetStructure(ctx, "c1", created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.Version)
}

func TestUpdateLosingARaceIsAConflict(t *testing.T) {
	store := &racingStore{Store: memory.NewStore()}
	log := audit.NewMemoryStore()
	svc, err := NewService(store, audit.NewRecorder(log, nil, audit.WithClock(fixedClock(now))), fixedClock(now), nil)
	require.NoError(t, err)
	ctx := context.Background()
	created, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)

	store.race = func(current fees.FeeStructure) {
		current.Description = "edited elsewhere"
		require.NoError(t, store.Store.UpdateStructure(ctx, current, current.Version))
	}
	in := tuition()
	in.Amount = decimal.NewFromInt(1500)
	in.LineItems[0].Amount = decimal.NewFromInt(1300)
	_, err = svc.Update(ctx, "c1", created.ID, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, fees.ErrConflict)

	stored, err := store.Store.GetStructure(ctx, "c1", created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "edited elsewhere", stored.Description)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(1200)))
	assert.Len(t, log.Entries(), 1)
}

func TestDeleteHardOrSoft(t *testing.T) {
	svc, store, log := newCatalog(t)
	ctx := context.Background()

	unused, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)
	deactivated, err := svc.Delete(ctx, "c1", unused.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	_, err = svc.Get(ctx, "c1", unused.ID)
	assert.True(t, errors.Is(err, fees.ErrNotFound))

	used, err := svc.Create(ctx, "c1", tuition())
	require.NoError(t, err)
	require.NoError(t, store.CommitAssignment(ctx, fees.AssignmentCommit{Assignment: fees.FeeAssignment{
		ID: "asg-1", CoachingID: "c1", MemberID: "m1", FeeStructureID: used.ID, Concern: fees.DefaultConcern,
		StartDate: now, Status: fees.AssignmentActive, Version: 1,
	}}))

	in := tuition()
	in.Concern = "TRANSPORT"
	_, err = svc.Update(ctx, "c1", used.ID, in)
	assert.True(t, errors.Is(err, fees.ErrConflict))

	deactivated, err = svc.Delete(ctx, "c1", used.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	kept, err := svc.Get(ctx, "c1", used.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive)

	events := []audit.Event{}
	for _, e := range log.Entries() {
		events = append(events, e.Event)
	}
	assert.Equal(t, []audit.Event{
		audit.EventStructureCreated,
		audit.EventStructureDeleted,
		audit.EventStructureCreated,
		audit.EventStructureDeactivated,
	}, events)
}
