package sales

import (
	"context"
	"errors"
	"testing"

	"cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/inventory"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// brokenTransfer writes the new owner and then reports a storage failure,
// the worst case for atomicity.
type brokenTransfer struct {
	*inventory.Service
}

func (b brokenTransfer) TransferOwnership(ctx context.Context, id, newOwnerID uuid.UUID) error {
	if err := b.Service.TransferOwnership(ctx, id, newOwnerID); err != nil {
		return err
	}
	return errors.New("connection reset by peer")
}

type fixture struct {
	db     *gorm.DB
	ledger *escrow.Service
	svc    *Service
	seller uuid.UUID
	buyer  uuid.UUID
	card   domain.CardInstance
	order  domain.Order
}

func setupSale(t *testing.T, cards escrow.CardStore) fixture {
	db := testutil.NewDB(t)
	if cards == nil {
		cards = &inventory.Service{DB: db}
	} else if bt, ok := cards.(brokenTransfer); ok {
		bt.Service.DB = db
	}
	f := fixture{db: db, seller: uuid.New(), buyer: uuid.New()}
	f.ledger = &escrow.Service{DB: db, Cards: cards}
	f.svc = &Service{DB: db, Ledger: f.ledger}
	f.card = testutil.InsertCard(t, db, f.seller, 650)
	f.order = testutil.InsertOrder(t, db, f.card, f.buyer)
	return f
}

func (f fixture) state(t *testing.T, escrowID uuid.UUID) (domain.CardInstance, domain.EscrowLock, domain.Order) {
	t.Helper()
	var c domain.CardInstance
	var l domain.EscrowLock
	var o domain.Order
	require.NoError(t, f.db.First(&c, "id = ?", f.card.ID).Error)
	require.NoError(t, f.db.First(&l, "id = ?", escrowID).Error)
	require.NoError(t, f.db.First(&o, "id = ?", f.order.ID).Error)
	return c, l, o
}

func TestCompleteSale_Success(t *testing.T) {
	f := setupSale(t, nil)
	ctx := context.Background()
	lock, err := f.ledger.Lock(ctx, f.card.ID, f.order.ID)
	require.NoError(t, err)

	res, err := f.svc.CompleteSale(ctx, f.order.ID, lock.ID)
	require.NoError(t, err)
	assert.Equal(t, f.buyer, res.BuyerID)
	assert.Equal(t, f.card.ID, res.CardInstanceID)
	assert.False(t, res.CompletedAt.IsZero())

	card, escrowRow, order := f.state(t, lock.ID)
	assert.Equal(t, f.buyer, card.OwnerID)
	assert.Equal(t, domain.CustodyWithOwner, card.Custody)
	assert.Equal(t, domain.EscrowCompleted, escrowRow.Status)
	assert.Equal(t, domain.OrderCompleted, order.Status)
}

func TestCompleteSale_Twice(t *testing.T) {
	f := setupSale(t, nil)
	ctx := context.Background()
	lock, err := f.ledger.Lock(ctx, f.card.ID, f.order.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteSale(ctx, f.order.ID, lock.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteSale(ctx, f.order.ID, lock.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	card, _, _ := f.state(t, lock.ID)
	assert.Equal(t, f.buyer, card.OwnerID)
}

func TestCompleteSale_TransferFailureRollsBack(t *testing.T) {
	f := setupSale(t, brokenTransfer{Service: &inventory.Service{}})
	ctx := context.Background()
	lock, err := f.ledger.Lock(ctx, f.card.ID, f.order.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteSale(ctx, f.order.ID, lock.ID)
	require.ErrorIs(t, err, domain.ErrTransactionFailure)

	card, escrowRow, order := f.state(t, lock.ID)
	assert.Equal(t, f.seller, card.OwnerID, "ownership must not move")
	assert.Equal(t, domain.CustodyInEscrow, card.Custody)
	assert.Equal(t, domain.EscrowLocked, escrowRow.Status)
	assert.Equal(t, domain.OrderPending, order.Status)

	var events int64
	require.NoError(t, f.db.Model(&domain.EscrowEvent{}).Where("escrow_id = ?", lock.ID).Count(&events).Error)
	assert.Equal(t, int64(1), events, "only the LOCKED event survives")
}

func TestCompleteSale_UnknownOrder(t *testing.T) {
	f := setupSale(t, nil)
	_, err := f.svc.CompleteSale(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteSale_UnknownEscrow(t *testing.T) {
	f := setupSale(t, nil)
	_, err := f.svc.CompleteSale(context.Background(), f.order.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var order domain.Order
	require.NoError(t, f.db.First(&order, "id = ?", f.order.ID).Error)
	assert.Equal(t, domain.OrderPending, order.Status)
}

func TestCompleteSale_EscrowForDifferentCard(t *testing.T) {
	f := setupSale(t, nil)
	ctx := context.Background()

	other := testutil.InsertCard(t, f.db, f.seller, 20)
	// escrow taken under this order's id but on another card
	lock, err := f.ledger.Lock(ctx, other.ID, f.order.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteSale(ctx, f.order.ID, lock.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	var got domain.CardInstance
	require.NoError(t, f.db.First(&got, "id = ?", other.ID).Error)
	assert.Equal(t, f.seller, got.OwnerID)
}

func TestCompleteSale_CancelledOrder(t *testing.T) {
	f := setupSale(t, nil)
	ctx := context.Background()
	lock, err := f.ledger.Lock(ctx, f.card.ID, f.order.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Order{}).Where("id = ?", f.order.ID).Update("status", domain.OrderCancelled).Error)

	_, err = f.svc.CompleteSale(ctx, f.order.ID, lock.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteSale_MissingIDs(t *testing.T) {
	f := setupSale(t, nil)
	_, err := f.svc.CompleteSale(context.Background(), uuid.Nil, uuid.New())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
