package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
	"reqtrack/internal/testutil"
)

func TestSetRole(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewUsers(db, audit.NewRecorder(testutil.Logger()), testutil.Logger())
	testutil.CreateUser(t, db, "carol@example.com", models.RoleNormal)
	admin := Actor{UserID: 99, Email: "root@example.com", IP: "127.0.0.1"}
	ctx := context.Background()

	u, err := svc.SetRole(ctx, admin, "  Carol@Example.com ", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	var row models.AuditLog
	require.NoError(t, db.Where("action = ?", "promote_user").First(&row).Error)
	assert.Equal(t, "Changed carol@example.com from normal to admin", row.Details)
	require.NotNil(t, row.UserEmail)
	assert.Equal(t, "root@example.com", *row.UserEmail)

	_, err = svc.SetRole(ctx, admin, "nobody@example.com", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SetRole(ctx, admin, "carol@example.com", "superuser")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SetRole(ctx, admin, "", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrValidation)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin())
}
