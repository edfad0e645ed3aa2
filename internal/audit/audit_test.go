package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reqtrack/internal/models"
	"reqtrack/internal/testutil"
)

func TestRecordAndList(t *testing.T) {
	db := testutil.NewDB(t)
	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	rec := NewRecorder(testutil.Logger())

	entries := []struct {
		at time.Time
		e  Entry
	}{
		{base, Entry{Actor: "alice@example.com", Action: "login", Details: "User logged in", IP: "10.0.0.1"}},
		{base.Add(24 * time.Hour), Entry{Actor: "bob@example.com", Action: "add_requirement", Details: "Added requirement id=1"}},
		{base.Add(48 * time.Hour), Entry{Actor: "alice@example.com", Action: "delete_requirement", Details: "Deleted requirement id=1"}},
		{base.Add(72 * time.Hour), Entry{Action: "system_start"}},
	}
	for _, en := range entries {
		at := en.at
		rec.WithClock(func() time.Time { return at })
		require.NoError(t, rec.Record(db, en.e))
	}

	ctx := context.Background()
	all, err := rec.List(ctx, db, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "system_start", all[0].Action)
	require.Nil(t, all[0].UserEmail)
	require.Equal(t, "login", all[3].Action)
	require.Equal(t, "10.0.0.1", all[3].IPAddress)

	byEmail, err := rec.List(ctx, db, Filter{Email: "ALICE"})
	require.NoError(t, err)
	require.Len(t, byEmail, 2)

	byAction, err := rec.List(ctx, db, Filter{Action: "requirement"})
	require.NoError(t, err)
	require.Len(t, byAction, 2)

	start, err := ParseDate("2024-07-02", false)
	require.NoError(t, err)
	end, err := ParseDate("2024-07-03", true)
	require.NoError(t, err)
	ranged, err := rec.List(ctx, db, Filter{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	require.Equal(t, "delete_requirement", ranged[0].Action)

	page, err := rec.List(ctx, db, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "delete_requirement", page[0].Action)
}

func TestRecordRequiresAction(t *testing.T) {
	db := testutil.NewDB(t)
	require.Error(t, NewRecorder(testutil.Logger()).Record(db, Entry{Actor: "a@example.com"}))
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	rec := NewRecorder(testutil.Logger())
	boom := errors.New("boom")

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := rec.Record(tx, Entry{Action: "promote_user"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestTransactionCountsOnlyCommittedEntries(t *testing.T) {
	db := testutil.NewDB(t)
	rec := NewRecorder(testutil.Logger())
	counter := eventsTotal.WithLabelValues("update_session_config")
	before := promtest.ToFloat64(counter)
	boom := errors.New("boom")

	err := rec.Transaction(db, func(tx *gorm.DB) error {
		if err := rec.Record(tx, Entry{Action: "update_session_config"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, before, promtest.ToFloat64(counter))

	err = rec.Transaction(db, func(tx *gorm.DB) error {
		return rec.Record(tx, Entry{Action: " update_session_config "})
	})
	require.NoError(t, err)
	require.Equal(t, before+1, promtest.ToFloat64(counter))

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-07-22T10:00:00Z", true)
	require.NoError(t, err)
	require.Equal(t, 10, got.Hour())

	got, err = ParseDate("2024-07-22", true)
	require.NoError(t, err)
	require.Equal(t, 23, got.Hour())

	got, err = ParseDate("", false)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = ParseDate("22/07/2024", false)
	require.Error(t, err)
}
