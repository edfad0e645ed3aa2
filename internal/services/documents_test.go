package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
	"reqtrack/internal/testutil"
)

type docFixture struct {
	db    *gorm.DB
	docs  *Documents
	reqs  *Requirements
	owner Actor
	other Actor
}

func newDocFixture(t *testing.T) docFixture {
	t.Helper()
	db := testutil.NewDB(t)
	rec := audit.NewRecorder(testutil.Logger())
	owner := testutil.CreateUser(t, db, "owner@example.com", models.RoleNormal)
	other := testutil.CreateUser(t, db, "other@example.com", models.RoleAdmin)
	clock := testutil.Clock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return docFixture{
		db:    db,
		docs:  NewDocuments(db, rec, testutil.Logger()).WithClock(clock),
		reqs:  NewRequirements(db, rec, testutil.Logger()),
		owner: Actor{UserID: owner.ID, Email: owner.Email},
		other: Actor{UserID: other.ID, Email: other.Email},
	}
}

func intp(v int) *int { return &v }

func TestLaunchReadinessLifecycle(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	doc, err := f.docs.Create(ctx, f.owner, DocumentInput{
		Name: "Launch Readiness",
		Requirements: []DocumentRequirementInput{
			{Category: "Ops", Requirement: "On-call rota", Order: intp(2)},
			{Category: "Perf", Requirement: "P99 < 200ms", Order: intp(0)},
			{Category: "Security", Requirement: "Pen test done", Order: intp(1)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Launch Readiness", doc.Name)
	require.Equal(t, "owner@example.com", doc.Owner.Email)
	require.Len(t, doc.Requirements, 3)
	assert.Equal(t, "Perf", doc.Requirements[0].Category)
	assert.Equal(t, "Security", doc.Requirements[1].Category)
	assert.Equal(t, "Ops", doc.Requirements[2].Category)
	created := doc.UpdatedAt

	updated, err := f.docs.Update(ctx, f.owner, doc.ID, DocumentInput{Name: "Launch Readiness v2"})
	require.NoError(t, err)
	assert.Equal(t, "Launch Readiness v2", updated.Name)
	assert.Empty(t, updated.Requirements)
	assert.True(t, updated.UpdatedAt.After(created))
	assert.True(t, updated.CreatedAt.Equal(doc.CreatedAt))
	assert.Zero(t, countRows(t, f.db, &models.DocumentRequirement{}))
}

func TestDocumentDefaultsOrderToIndex(t *testing.T) {
	f := newDocFixture(t)
	doc, err := f.docs.Create(context.Background(), f.owner, DocumentInput{
		Name: "Defaults",
		Requirements: []DocumentRequirementInput{
			{Category: "A", Requirement: "first"},
			{Category: "B", Requirement: "second"},
		},
	})
	require.NoError(t, err)
	require.Len(t, doc.Requirements, 2)
	assert.Equal(t, 0, doc.Requirements[0].Order)
	assert.Equal(t, 1, doc.Requirements[1].Order)
}

func TestDocumentValidation(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	_, err := f.docs.Create(ctx, f.owner, DocumentInput{Name: "   "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.docs.Create(ctx, f.owner, DocumentInput{
		Name:         "Bad row",
		Requirements: []DocumentRequirementInput{{Category: "A"}},
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, countRows(t, f.db, &models.Document{}))
}

func TestAppendRequirementsContinuesOrder(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	m1, err := f.reqs.Create(ctx, f.owner, RequirementInput{Category: "Perf", Requirement: "Fast", Product: "API"})
	require.NoError(t, err)
	m2, err := f.reqs.Create(ctx, f.owner, RequirementInput{Category: "Ops", Requirement: "Runbook"})
	require.NoError(t, err)

	doc, err := f.docs.Create(ctx, f.owner, DocumentInput{
		Name:         "Append",
		Requirements: []DocumentRequirementInput{{Category: "X", Requirement: "existing", Order: intp(7)}},
	})
	require.NoError(t, err)
	before := doc.UpdatedAt

	doc, err = f.docs.AppendRequirements(ctx, f.owner, doc.ID, []uint{m2.ID, m1.ID, m2.ID})
	require.NoError(t, err)
	require.Len(t, doc.Requirements, 3)
	assert.Equal(t, 8, doc.Requirements[1].Order)
	assert.Equal(t, "Runbook", doc.Requirements[1].Requirement)
	assert.Equal(t, 9, doc.Requirements[2].Order)
	require.NotNil(t, doc.Requirements[2].OriginalRequirementID)
	assert.Equal(t, m1.ID, *doc.Requirements[2].OriginalRequirementID)
	assert.Equal(t, "API", doc.Requirements[2].Product)
	assert.True(t, doc.UpdatedAt.After(before))

	// later edits to the master do not reach the snapshot
	_, err = f.reqs.Update(ctx, f.owner, m1.ID, RequirementInput{Category: "Perf", Requirement: "Faster"})
	require.NoError(t, err)
	got, err := f.docs.Get(ctx, f.owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fast", got.Requirements[2].Requirement)
}

func TestAppendRequirementsRejectsMissingIDs(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	m, err := f.reqs.Create(ctx, f.owner, RequirementInput{Category: "Perf", Requirement: "Fast"})
	require.NoError(t, err)
	doc, err := f.docs.Create(ctx, f.owner, DocumentInput{Name: "Strict"})
	require.NoError(t, err)

	_, err = f.docs.AppendRequirements(ctx, f.owner, doc.ID, []uint{m.ID, 555})
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "555")
	assert.Zero(t, countRows(t, f.db, &models.DocumentRequirement{}))

	_, err = f.docs.AppendRequirements(ctx, f.owner, doc.ID, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCloneIsIndependent(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	src, err := f.docs.Create(ctx, f.owner, DocumentInput{
		Name:        "Pilot",
		Description: "first pilot",
		Requirements: []DocumentRequirementInput{
			{Category: "A", Requirement: "one", Order: intp(1)},
			{Category: "B", Requirement: "two", Order: intp(0)},
		},
	})
	require.NoError(t, err)

	clone, err := f.docs.Clone(ctx, f.owner, src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, clone.ID)
	assert.Equal(t, "Copy of Pilot", clone.Name)
	assert.Equal(t, "first pilot", clone.Description)
	require.Len(t, clone.Requirements, 2)
	for i := range clone.Requirements {
		assert.Equal(t, src.Requirements[i].Requirement, clone.Requirements[i].Requirement)
		assert.Equal(t, src.Requirements[i].Order, clone.Requirements[i].Order)
		assert.NotEqual(t, src.Requirements[i].ID, clone.Requirements[i].ID)
	}

	_, err = f.docs.Update(ctx, f.owner, clone.ID, DocumentInput{Name: "Changed"})
	require.NoError(t, err)
	got, err := f.docs.Get(ctx, f.owner, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pilot", got.Name)
	assert.Len(t, got.Requirements, 2)

	require.NoError(t, f.docs.Delete(ctx, f.owner, src.ID))
	got, err = f.docs.Get(ctx, f.owner, clone.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", got.Name)
}

func TestDocumentsAreOwnerOnly(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, f.owner, DocumentInput{Name: "Private"})
	require.NoError(t, err)

	_, err = f.docs.Get(ctx, f.other, doc.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.docs.Update(ctx, f.other, doc.ID, DocumentInput{Name: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.docs.Clone(ctx, f.other, doc.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.docs.Delete(ctx, f.other, doc.ID), ErrForbidden)
	_, err = f.docs.AppendRequirements(ctx, f.other, doc.ID, []uint{1})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.docs.Get(ctx, f.owner, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := f.docs.List(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	theirs, err := f.docs.List(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestDeleteRemovesRows(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, f.owner, DocumentInput{
		Name:         "Gone",
		Requirements: []DocumentRequirementInput{{Category: "A", Requirement: "a"}},
	})
	require.NoError(t, err)

	require.NoError(t, f.docs.Delete(ctx, f.owner, doc.ID))
	assert.Zero(t, countRows(t, f.db, &models.Document{}))
	assert.Zero(t, countRows(t, f.db, &models.DocumentRequirement{}))
	assert.ErrorIs(t, f.docs.Delete(ctx, f.owner, doc.ID), ErrNotFound)

	var actions []string
	require.NoError(t, f.db.Model(&models.AuditLog{}).Order("id").Pluck("action", &actions).Error)
	assert.Equal(t, []string{"create_scd", "delete_scd"}, actions)
}

func TestSortRequirements(t *testing.T) {
	rows := []models.DocumentRequirement{
		{ID: 4, Order: 1},
		{ID: 2, Order: 0},
		{ID: 3, Order: 1},
		{ID: 1, Order: 5},
	}
	SortRequirements(rows)
	var ids []uint
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint{2, 3, 4, 1}, ids)
}
