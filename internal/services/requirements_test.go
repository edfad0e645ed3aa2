package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
	"reqtrack/internal/testutil"
)

func newRequirements(t *testing.T) (*Requirements, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewRequirements(db, audit.NewRecorder(testutil.Logger()), testutil.Logger()), db
}

var alice = Actor{UserID: 1, Email: "alice@example.com", IP: "10.0.0.1"}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestRequirementCRUD(t *testing.T) {
	svc, db := newRequirements(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, alice, RequirementInput{Category: " Perf ", Requirement: "P99 < 200ms", Product: "API"})
	require.NoError(t, err)
	require.NotZero(t, r.ID)
	require.Equal(t, "Perf", r.Category)
	require.Equal(t, "alice@example.com", r.CreatedBy)
	require.NotNil(t, r.UpdatedAt)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "P99 < 200ms", got.Requirement)

	bob := Actor{UserID: 2, Email: "bob@example.com"}
	upd, err := svc.Update(ctx, bob, r.ID, RequirementInput{Category: "Security", Requirement: "SSO required"})
	require.NoError(t, err)
	require.Equal(t, "Security", upd.Category)
	require.Equal(t, "", upd.Product)
	require.Equal(t, "bob@example.com", upd.UpdatedBy)
	require.Equal(t, "alice@example.com", upd.CreatedBy)

	_, err = svc.Update(ctx, bob, 999, RequirementInput{Category: "x", Requirement: "y"})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ctx, bob, r.ID))
	require.ErrorIs(t, svc.Delete(ctx, bob, r.ID), ErrNotFound)
	_, err = svc.Get(ctx, r.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var actions []string
	require.NoError(t, db.Model(&models.AuditLog{}).Order("id").Pluck("action", &actions).Error)
	require.Equal(t, []string{"add_requirement", "edit_requirement", "delete_requirement"}, actions)
}

func TestRequirementValidation(t *testing.T) {
	svc, db := newRequirements(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, RequirementInput{Category: "Perf", Requirement: "  "})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, alice, RequirementInput{Requirement: "text"})
	require.ErrorIs(t, err, ErrValidation)
	require.Zero(t, countRows(t, db, &models.Requirement{}))
	require.Zero(t, countRows(t, db, &models.AuditLog{}))
}

func TestBulkImport(t *testing.T) {
	svc, db := newRequirements(t)
	csv := "category,requirement,product,doc_link,tenant_link\n" +
		"Perf,P99 < 200ms,API,https://docs/perf,\n" +
		"Security,\"SSO, SAML\",,,https://tenant\n" +
		"Ops,Runbook exists,Platform,,\n"

	n, err := svc.BulkImport(context.Background(), alice, strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	reqs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	require.Equal(t, "SSO, SAML", reqs[1].Requirement)
	require.Equal(t, "https://tenant", reqs[1].TenantLink)
	for _, r := range reqs {
		require.NotEmpty(t, r.Category)
		require.NotEmpty(t, r.Requirement)
		require.Equal(t, "alice@example.com", r.CreatedBy)
	}
	require.EqualValues(t, 1, countRows(t, db, &models.AuditLog{}))
}

func TestBulkImportIsAllOrNothing(t *testing.T) {
	svc, db := newRequirements(t)
	csv := "category,requirement,product,doc_link,tenant_link\n" +
		"Perf,P99 < 200ms,,,\n" +
		"Security,,,,\n" +
		"Ops,Runbook exists,,,\n"

	_, err := svc.BulkImport(context.Background(), alice, strings.NewReader(csv))
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "Row 2")
	require.Zero(t, countRows(t, db, &models.Requirement{}))
	require.Zero(t, countRows(t, db, &models.AuditLog{}))
}

func TestParseRequirementsCSV(t *testing.T) {
	rows, err := ParseRequirementsCSV(strings.NewReader("\ufeffRequirement,Category,extra\nText,Cat,ignored\n"))
	require.NoError(t, err)
	require.Equal(t, []RequirementInput{{Category: "Cat", Requirement: "Text"}}, rows)

	rows, err = ParseRequirementsCSV(strings.NewReader("category,requirement\n"))
	require.NoError(t, err)
	require.Empty(t, rows)

	_, err = ParseRequirementsCSV(strings.NewReader(""))
	require.ErrorIs(t, err, ErrValidation)

	_, err = ParseRequirementsCSV(strings.NewReader("category,product\nPerf,API\n"))
	require.ErrorContains(t, err, "requirement")

	_, err = ParseRequirementsCSV(strings.NewReader("category,requirement\n\"unterminated,x\n"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestExportRoundTrip(t *testing.T) {
	svc, _ := newRequirements(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, alice, RequirementInput{Category: "Perf", Requirement: "Fast, always", Product: "API"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, &buf))
	require.True(t, strings.HasPrefix(buf.String(), "category,requirement,product,doc_link,tenant_link\n"))

	rows, err := ParseRequirementsCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, []RequirementInput{{Category: "Perf", Requirement: "Fast, always", Product: "API"}}, rows)
}

func TestMassEditIgnoresMissingIDs(t *testing.T) {
	svc, db := newRequirements(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, alice, RequirementInput{Category: "Perf", Requirement: "P99", Product: "API"})
	require.NoError(t, err)

	bob := Actor{UserID: 2, Email: "bob@example.com"}
	n, err := svc.MassEdit(ctx, bob, []uint{r.ID, r.ID + 1, r.ID + 2}, MassEdit{Category: "Security"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "Security", got.Category)
	require.Equal(t, "API", got.Product)
	require.Equal(t, "bob@example.com", got.UpdatedBy)

	n, err = svc.MassEdit(ctx, bob, nil, MassEdit{Category: "x"})
	require.NoError(t, err)
	require.Zero(t, n)
	require.EqualValues(t, 2, countRows(t, db, &models.AuditLog{}))
}

func TestMassDeleteReportsExistingOnly(t *testing.T) {
	svc, _ := newRequirements(t)
	ctx := context.Background()
	var ids []uint
	for _, c := range []string{"A", "B", "C"} {
		r, err := svc.Create(ctx, alice, RequirementInput{Category: c, Requirement: "text " + c})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	n, err := svc.MassDelete(ctx, alice, []uint{ids[0], ids[2], 4242, 4343})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	left, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, ids[1], left[0].ID)
}

func TestFailedTransactionIsLogged(t *testing.T) {
	db := testutil.NewDB(t)
	core, logs := observer.New(zap.WarnLevel)
	svc := NewRequirements(db, audit.NewRecorder(testutil.Logger()), zap.New(core).Sugar())
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, RequirementInput{Category: "Perf"})
	require.ErrorIs(t, err, ErrValidation)
	require.Zero(t, logs.Len())

	require.NoError(t, db.Migrator().DropTable(&models.AuditLog{}))
	_, err = svc.Create(ctx, alice, RequirementInput{Category: "Perf", Requirement: "Fast"})
	require.Error(t, err)
	require.Zero(t, countRows(t, db, &models.Requirement{}))

	entries := logs.FilterMessage("transaction rolled back").All()
	require.Len(t, entries, 1)
	require.Equal(t, "add_requirement", entries[0].ContextMap()["op"])
}
