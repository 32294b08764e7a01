package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"boleteria/internal/status"
	"boleteria/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Reserve(ctx context.Context, tierID string, qty int) (*models.Reservation, error) {
	args := m.Called(ctx, tierID, qty)
	if resv := args.Get(0); resv != nil {
		return resv.(*models.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) Release(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockLedger) Commit(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockLedger) RestoreCapacity(ctx context.Context, tierID string, qty int) error {
	return m.Called(ctx, tierID, qty).Error(0)
}

func TestAcquireReservations_AllLinesHeld(t *testing.T) {
	ledger := new(mockLedger)
	ctx := context.Background()

	ledger.On("Reserve", ctx, "tier-a", 2).Return(&models.Reservation{Token: "tok-a", TierID: "tier-a", Quantity: 2}, nil)
	ledger.On("Reserve", ctx, "tier-b", 1).Return(&models.Reservation{Token: "tok-b", TierID: "tier-b", Quantity: 1}, nil)

	lines := []models.PurchaseLine{
		{TierID: "tier-a", Quantity: 2},
		{TierID: "tier-b", Quantity: 1},
	}

	acquired, err := acquireReservations(ctx, ledger, lines)

	require.NoError(t, err)
	require.Len(t, acquired, 2)
	assert.Equal(t, "tok-a", acquired[0].Token)
	assert.Equal(t, "tok-b", acquired[1].Token)
	ledger.AssertExpectations(t)
}

func TestAcquireReservations_FailureReleasesEarlierHolds(t *testing.T) {
	ledger := new(mockLedger)
	ctx := context.Background()

	capErr := &status.CapacityError{TierID: "tier-b", Requested: 5, Remaining: 1}
	ledger.On("Reserve", ctx, "tier-a", 2).Return(&models.Reservation{Token: "tok-a", TierID: "tier-a", Quantity: 2}, nil)
	ledger.On("Reserve", ctx, "tier-b", 5).Return(nil, capErr)
	ledger.On("Release", ctx, "tok-a").Return(nil)

	lines := []models.PurchaseLine{
		{TierID: "tier-a", Quantity: 2},
		{TierID: "tier-b", Quantity: 5},
	}

	acquired, err := acquireReservations(ctx, ledger, lines)

	assert.Nil(t, acquired)
	var gotCap *status.CapacityError
	require.True(t, errors.As(err, &gotCap))
	assert.Equal(t, "tier-b", gotCap.TierID)
	ledger.AssertExpectations(t)
}

func TestAcquireReservations_FirstLineFailureReleasesNothing(t *testing.T) {
	ledger := new(mockLedger)
	ctx := context.Background()

	ledger.On("Reserve", ctx, "tier-a", 3).Return(nil, &status.CapacityError{TierID: "tier-a", Requested: 3, Remaining: 0})

	_, err := acquireReservations(ctx, ledger, []models.PurchaseLine{{TierID: "tier-a", Quantity: 3}})

	assert.Error(t, err)
	ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	ledger.AssertExpectations(t)
}

func TestCommitReservations_AllCommitted(t *testing.T) {
	ledger := new(mockLedger)
	service := &PurchaseService{Ledger: ledger}
	ctx := context.Background()

	ledger.On("Commit", ctx, "tok-a").Return(nil)
	ledger.On("Commit", ctx, "tok-b").Return(nil)

	err := service.commitReservations(ctx, []models.PurchaseLine{
		{TierID: "tier-a", Quantity: 1, Token: "tok-a"},
		{TierID: "tier-b", Quantity: 2, Token: "tok-b"},
	})

	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestCommitReservations_FailureUnwindsAllLines(t *testing.T) {
	ledger := new(mockLedger)
	service := &PurchaseService{Ledger: ledger}
	ctx := context.Background()

	ledger.On("Commit", ctx, "tok-a").Return(nil)
	ledger.On("Commit", ctx, "tok-b").Return(status.ErrReservationExpired)
	// Committed lines no longer release through their token, so their units
	// go back via an explicit capacity restore. The failing token and
	// everything after it still hold releasable reservations.
	ledger.On("RestoreCapacity", ctx, "tier-a", 1).Return(nil)
	ledger.On("Release", ctx, "tok-b").Return(nil)
	ledger.On("Release", ctx, "tok-c").Return(nil)

	err := service.commitReservations(ctx, []models.PurchaseLine{
		{TierID: "tier-a", Quantity: 1, Token: "tok-a"},
		{TierID: "tier-b", Quantity: 2, Token: "tok-b"},
		{TierID: "tier-c", Quantity: 1, Token: "tok-c"},
	})

	assert.ErrorIs(t, err, status.ErrReservationExpired)
	ledger.AssertNotCalled(t, "Release", ctx, "tok-a")
	ledger.AssertExpectations(t)
}

func TestCommitReservations_FirstLineFailureRestoresNothing(t *testing.T) {
	ledger := new(mockLedger)
	service := &PurchaseService{Ledger: ledger}
	ctx := context.Background()

	ledger.On("Commit", ctx, "tok-a").Return(status.ErrReservationExpired)
	ledger.On("Release", ctx, "tok-a").Return(nil)

	err := service.commitReservations(ctx, []models.PurchaseLine{
		{TierID: "tier-a", Quantity: 2, Token: "tok-a"},
	})

	assert.ErrorIs(t, err, status.ErrReservationExpired)
	ledger.AssertNotCalled(t, "RestoreCapacity", mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertExpectations(t)
}

func TestDuplicateCallbackWon(t *testing.T) {
	completed := &models.Purchase{ID: "p-1", Status: models.PurchaseCompleted}
	pending := &models.Purchase{ID: "p-1", Status: models.PurchasePending}

	tests := []struct {
		name    string
		err     error
		current *models.Purchase
		want    bool
	}{
		{"state conflict with completed purchase", status.ErrPurchaseState, completed, true},
		{"wrapped state conflict", fmt.Errorf("confirm: %w", status.ErrPurchaseState), completed, true},
		{"state conflict but still pending", status.ErrPurchaseState, pending, false},
		{"other error with completed purchase", errors.New("db down"), completed, false},
		{"state conflict with missing purchase", status.ErrPurchaseState, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, duplicateCallbackWon(tc.err, tc.current))
		})
	}
}

type mockCapacityRestorer struct {
	mock.Mock
}

func (m *mockCapacityRestorer) GetTier(id string) (*models.Tier, error) {
	args := m.Called(id)
	if tier := args.Get(0); tier != nil {
		return tier.(*models.Tier), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCapacityRestorer) IncrementTierRemaining(tierID string, qty int) error {
	return m.Called(tierID, qty).Error(0)
}

func (m *mockCapacityRestorer) IncrementSessionRemaining(sessionID string, qty int) error {
	return m.Called(sessionID, qty).Error(0)
}

func TestRestoreVoidedCapacity_IncrementsTierAndSession(t *testing.T) {
	tx := new(mockCapacityRestorer)

	tx.On("IncrementTierRemaining", "tier-a", 2).Return(nil)
	tx.On("GetTier", "tier-a").Return(&models.Tier{ID: "tier-a", SessionID: "session-1"}, nil)
	tx.On("IncrementSessionRemaining", "session-1", 2).Return(nil)

	err := restoreVoidedCapacity(tx, map[string]int{"tier-a": 2})

	require.NoError(t, err)
	tx.AssertExpectations(t)
}

func TestRestoreVoidedCapacity_TierFaultStopsEarly(t *testing.T) {
	tx := new(mockCapacityRestorer)

	tx.On("IncrementTierRemaining", "tier-a", 1).Return(errors.New("db down"))

	err := restoreVoidedCapacity(tx, map[string]int{"tier-a": 1})

	assert.Error(t, err)
	tx.AssertNotCalled(t, "IncrementSessionRemaining", mock.Anything, mock.Anything)
}

func TestDecodeLines_RoundTrip(t *testing.T) {
	lines, err := decodeLines(`[{"tier_id":"tier-a","quantity":2,"unit_price":"25.5","token":"tok-a"}]`)

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "tier-a", lines[0].TierID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "tok-a", lines[0].Token)
	assert.Equal(t, "25.5", lines[0].UnitPrice.String())
}

func TestDecodeLines_Malformed(t *testing.T) {
	_, err := decodeLines(`{not json`)
	assert.Error(t, err)
}
