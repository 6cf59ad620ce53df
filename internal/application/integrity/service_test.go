package integrity

import (
	"context"
	"testing"
	"time"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/pkg/clock"
	"cardvault-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedLock(t *testing.T, db *gorm.DB, cardID uuid.UUID, createdAt time.Time) domain.EscrowLock {
	t.Helper()
	l := domain.EscrowLock{
		CardInstanceID: cardID,
		OrderID:        uuid.New(),
		Status:         domain.EscrowLocked,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	require.NoError(t, db.Create(&l).Error)
	return l
}

func escrowedCard(t *testing.T, db *gorm.DB) domain.CardInstance {
	t.Helper()
	c := testutil.InsertCard(t, db, uuid.New(), 100)
	require.NoError(t, db.Model(&domain.CardInstance{}).Where("id = ?", c.ID).Update("custody", domain.CustodyInEscrow).Error)
	return c
}

func newService(db *gorm.DB) *Service {
	return &Service{DB: db, Clock: clock.NewFixed(now), StaleAfter: 7 * 24 * time.Hour}
}

func TestRunIntegrityCheck_Clean(t *testing.T) {
	db := testutil.NewDB(t)
	c := escrowedCard(t, db)
	seedLock(t, db, c.ID, now.Add(-time.Hour))
	testutil.InsertCard(t, db, uuid.New(), 5)

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalIssues)
	assert.Empty(t, report.Issues)
	assert.Equal(t, now, report.CheckedAt)
}

func TestRunIntegrityCheck_OrphanedLock(t *testing.T) {
	db := testutil.NewDB(t)
	c := escrowedCard(t, db)
	l := seedLock(t, db, c.ID, now.Add(-time.Hour))
	require.NoError(t, db.Model(&domain.CardInstance{}).Where("id = ?", c.ID).Update("active", false).Error)

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	is := report.Issues[0]
	assert.Equal(t, domain.IssueOrphanedLock, is.Type)
	assert.Equal(t, c.ID, is.CardInstanceID)
	assert.Equal(t, []uuid.UUID{l.ID}, is.EscrowIDs)
}

func TestRunIntegrityCheck_MissingCard(t *testing.T) {
	db := testutil.NewDB(t)
	seedLock(t, db, uuid.New(), now.Add(-time.Hour))

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	assert.Equal(t, domain.IssueOrphanedLock, report.Issues[0].Type)
}

func TestRunIntegrityCheck_DoubleLock(t *testing.T) {
	db := testutil.NewDBWithoutLockIndex(t)
	c := escrowedCard(t, db)
	a := seedLock(t, db, c.ID, now.Add(-2*time.Hour))
	b := seedLock(t, db, c.ID, now.Add(-time.Hour))

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	is := report.Issues[0]
	assert.Equal(t, domain.IssueDoubleLock, is.Type)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, is.EscrowIDs)
	assert.ElementsMatch(t, []uuid.UUID{a.OrderID, b.OrderID}, is.OrderIDs)
}

func TestRunIntegrityCheck_StaleLock(t *testing.T) {
	db := testutil.NewDB(t)
	old := escrowedCard(t, db)
	fresh := escrowedCard(t, db)
	seedLock(t, db, old.ID, now.Add(-8*24*time.Hour))
	seedLock(t, db, fresh.ID, now.Add(-6*24*time.Hour))

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)
	assert.Equal(t, domain.IssueStaleLock, report.Issues[0].Type)
	assert.Equal(t, old.ID, report.Issues[0].CardInstanceID)
}

func TestRunIntegrityCheck_CustodyMismatch(t *testing.T) {
	db := testutil.NewDB(t)
	// locked escrow but card still with the owner
	withOwner := testutil.InsertCard(t, db, uuid.New(), 10)
	seedLock(t, db, withOwner.ID, now.Add(-time.Hour))
	// card marked in escrow with nothing holding it
	stranded := escrowedCard(t, db)

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalIssues)
	for _, is := range report.Issues {
		assert.Equal(t, domain.IssueCustodyMismatch, is.Type)
	}
	assert.ElementsMatch(t, []uuid.UUID{withOwner.ID, stranded.ID},
		[]uuid.UUID{report.Issues[0].CardInstanceID, report.Issues[1].CardInstanceID})
	assert.Equal(t, 2, report.CountByType()[domain.IssueCustodyMismatch])
}

func TestRunIntegrityCheck_IgnoresResolvedEscrows(t *testing.T) {
	db := testutil.NewDB(t)
	c := testutil.InsertCard(t, db, uuid.New(), 10)
	for _, st := range []domain.EscrowStatus{domain.EscrowUnlocked, domain.EscrowCompleted, domain.EscrowReleased} {
		l := domain.EscrowLock{CardInstanceID: c.ID, OrderID: uuid.New(), Status: st, CreatedAt: now.Add(-30 * 24 * time.Hour)}
		require.NoError(t, db.Create(&l).Error)
	}

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalIssues)
}

func TestRunIntegrityCheck_DoesNotRemediate(t *testing.T) {
	db := testutil.NewDB(t)
	c := escrowedCard(t, db)
	l := seedLock(t, db, c.ID, now.Add(-30*24*time.Hour))

	report, err := newService(db).RunIntegrityCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalIssues)

	var got domain.EscrowLock
	require.NoError(t, db.First(&got, "id = ?", l.ID).Error)
	assert.Equal(t, domain.EscrowLocked, got.Status)
}
