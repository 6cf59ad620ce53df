package admin

import (
	"context"
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	escrowsvc "cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/integrity"
	"cardvault-backend/internal/application/inventory"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/middleware"
	"cardvault-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAdminTest(t *testing.T) (*fiber.App, *gorm.DB, *escrowsvc.Service) {
	db := testutil.NewDB(t)
	ledger := &escrowsvc.Service{DB: db, Cards: &inventory.Service{DB: db}}
	h := &Handlers{Escrow: ledger, Integrity: &integrity.Service{DB: db}}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Post("/release", h.Release)
	app.Get("/integrity", h.IntegrityReport)
	app.Get("/escrow/:escrow_id/history", h.History)
	return app, db, ledger
}

func TestRelease_MovesLockToReleased(t *testing.T) {
	app, db, ledger := setupAdminTest(t)
	card := testutil.InsertCard(t, db, uuid.New(), 50)
	lock, err := ledger.Lock(context.Background(), card.ID, uuid.New())
	require.NoError(t, err)

	b, _ := json.Marshal(map[string]string{"escrow_id": lock.ID.String(), "operator": "ops-ana", "reason": "verification abandoned"})
	req := httptest.NewRequest("POST", "/release", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var got domain.EscrowLock
	require.NoError(t, db.First(&got, "id = ?", lock.ID).Error)
	assert.Equal(t, domain.EscrowReleased, got.Status)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "ops-ana", *got.ResolvedBy)

	// second release is rejected
	req = httptest.NewRequest("POST", "/release", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/escrow/"+lock.ID.String()+"/history", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Events []domain.EscrowEvent `json:"events"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Data.Events, 2)
	assert.Equal(t, domain.EventReleased, out.Data.Events[1].EventType)
}

func TestRelease_MissingOperator(t *testing.T) {
	app, _, _ := setupAdminTest(t)
	b, _ := json.Marshal(map[string]string{"escrow_id": uuid.New().String(), "reason": "x"})
	req := httptest.NewRequest("POST", "/release", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestIntegrityReport_ReportsOrphan(t *testing.T) {
	app, db, ledger := setupAdminTest(t)
	card := testutil.InsertCard(t, db, uuid.New(), 50)
	_, err := ledger.Lock(context.Background(), card.ID, uuid.New())
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.CardInstance{}).Where("id = ?", card.ID).Update("active", false).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/integrity", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data     domain.IntegrityReport `json:"data"`
		Metadata map[string]map[string]int `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 1, out.Data.TotalIssues)
	assert.Equal(t, domain.IssueOrphanedLock, out.Data.Issues[0].Type)
}
