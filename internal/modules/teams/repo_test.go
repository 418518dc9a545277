package teams

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&TeamPlayer{}, &RevenueEntry{}))
	return db
}

func seedPlayer(t *testing.T, repo *Repo, parentEmail, submissionID string) *TeamPlayer {
	t.Helper()
	p := &TeamPlayer{
		TeamID:           "11111111-1111-1111-1111-111111111111",
		FirstName:        "Sipho",
		LastName:         "Dlamini",
		ParentEmail:      parentEmail,
		FormSubmissionID: submissionID,
	}
	require.NoError(t, repo.CreatePlayer(context.Background(), p))
	return p
}

func TestMarkPlayersPaid(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	seedPlayer(t, repo, "parent@example.com", "aaaa1111-0000-0000-0000-000000000001")
	seedPlayer(t, repo, "parent@example.com", "aaaa1111-0000-0000-0000-000000000002")
	seedPlayer(t, repo, "other@example.com", "bbbb2222-0000-0000-0000-000000000001")

	n, err := repo.MarkPlayersPaid(ctx, "parent@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// replay is a no-op
	n, err = repo.MarkPlayersPaid(ctx, "parent@example.com")
	require.NoError(t, err)
	assert.Zero(t, n)

	// other parent untouched
	var pending int64
	require.NoError(t, repo.DB().Model(&TeamPlayer{}).
		Where("payment_status = ?", PaymentPendingPayment).Count(&pending).Error)
	assert.EqualValues(t, 1, pending)
}

func TestMarkRevenuePaid(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	ref := "cccc3333-0000-0000-0000-000000000001"
	require.NoError(t, repo.EnsureRevenueEntry(ctx, RevenueEntry{
		TeamID:      "11111111-1111-1111-1111-111111111111",
		Reference:   ref,
		Description: "kit markup",
		Amount:      decimal.RequireFromString("50.00"),
		Currency:    "ZAR",
	}))

	n, err := repo.MarkRevenuePaid(ctx, []string{ref})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.MarkRevenuePaid(ctx, []string{ref})
	require.NoError(t, err)
	assert.Zero(t, n)

	// empty reference list never hits the database
	n, err = repo.MarkRevenuePaid(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsureRevenueEntry_AtMostOnce(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	entry := RevenueEntry{
		TeamID:      "11111111-1111-1111-1111-111111111111",
		Reference:   "dddd4444-0000-0000-0000-000000000001",
		Description: "kit markup",
		Amount:      decimal.RequireFromString("50.00"),
		Currency:    "ZAR",
	}

	require.NoError(t, repo.EnsureRevenueEntry(ctx, entry))
	require.NoError(t, repo.EnsureRevenueEntry(ctx, entry))
	require.NoError(t, repo.EnsureRevenueEntry(ctx, entry))

	var cnt int64
	require.NoError(t, repo.DB().Model(&RevenueEntry{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)

	// same reference for a different team is a distinct entry
	entry.TeamID = "22222222-2222-2222-2222-222222222222"
	require.NoError(t, repo.EnsureRevenueEntry(ctx, entry))
	require.NoError(t, repo.DB().Model(&RevenueEntry{}).Count(&cnt).Error)
	assert.EqualValues(t, 2, cnt)
}

func TestSubmissionRefsForEmail(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	// two players from the same submission, one from another
	seedPlayer(t, repo, "parent@example.com", "eeee5555-0000-0000-0000-000000000001")
	seedPlayer(t, repo, "parent@example.com", "eeee5555-0000-0000-0000-000000000001")
	seedPlayer(t, repo, "parent@example.com", "eeee5555-0000-0000-0000-000000000002")
	seedPlayer(t, repo, "other@example.com", "ffff6666-0000-0000-0000-000000000001")

	refs, err := repo.SubmissionRefsForEmail(ctx, "parent@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"eeee5555-0000-0000-0000-000000000001",
		"eeee5555-0000-0000-0000-000000000002",
	}, refs)

	refs, err = repo.SubmissionRefsForEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, refs)
}
