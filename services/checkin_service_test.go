package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"boleteria/config"
	"boleteria/internal/status"
	"boleteria/internal/store"
	"boleteria/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTicketStore struct {
	mock.Mock
}

func (m *mockTicketStore) FindTicketByToken(token string) (*store.TicketScan, error) {
	args := m.Called(token)
	if scan := args.Get(0); scan != nil {
		return scan.(*store.TicketScan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTicketStore) GetTicketScan(ticketID string) (*store.TicketScan, error) {
	args := m.Called(ticketID)
	if scan := args.Get(0); scan != nil {
		return scan.(*store.TicketScan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTicketStore) MarkTicketUsed(ticketID, verifierID string, usedAt time.Time) (bool, error) {
	args := m.Called(ticketID, verifierID, usedAt)
	return args.Bool(0), args.Error(1)
}

var testNow = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func setupTestCheckinService(tickets *mockTicketStore) *CheckinService {
	return &CheckinService{
		Tickets: tickets,
		Config: &config.Config{
			CheckinRetryAttempts: 3,
			CheckinRetryDelay:    time.Millisecond,
		},
		now: func() time.Time { return testNow },
	}
}

func soldScan() *store.TicketScan {
	return &store.TicketScan{
		Ticket: models.Ticket{
			ID:     "ticket-1",
			TierID: "tier-1",
			Status: models.TicketSold,
		},
		EventID:      "event-1",
		SessionID:    "session-1",
		SessionStart: testNow.Add(time.Hour),
		SessionEnd:   testNow.Add(4 * time.Hour),
		SessionState: models.SessionActive,
	}
}

func TestCheckinService_Verify_ValidTicket(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("FindTicketByToken", "TOKEN1").Return(soldScan(), nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	tickets.AssertExpectations(t)
}

func TestCheckinService_Verify_UnknownCode(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("FindTicketByToken", "NOPE").Return(nil, status.ErrInvalidTicket)

	result, err := service.Verify(context.Background(), "NOPE", "event-1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "unknown ticket code")
	tickets.AssertExpectations(t)
}

func TestCheckinService_Verify_WrongEvent(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("FindTicketByToken", "TOKEN1").Return(soldScan(), nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "other-event")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "ticket belongs to a different event")
}

func TestCheckinService_Verify_AlreadyUsedIncludesTimestamp(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	usedAt := testNow.Add(-30 * time.Minute)
	scan := soldScan()
	scan.Ticket.Status = models.TicketUsed
	scan.Ticket.UsedAt = &usedAt
	tickets.On("FindTicketByToken", "TOKEN1").Return(scan, nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "already used at")
	assert.Contains(t, result.Errors[0], usedAt.Format(time.RFC3339))
}

func TestCheckinService_Verify_VoidedTicket(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	scan := soldScan()
	scan.Ticket.Status = models.TicketVoid
	tickets.On("FindTicketByToken", "TOKEN1").Return(scan, nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "ticket was voided")
}

func TestCheckinService_Verify_CancelledSession(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	scan := soldScan()
	scan.SessionState = models.SessionCancelled
	tickets.On("FindTicketByToken", "TOKEN1").Return(scan, nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "session was cancelled")
}

func TestCheckinService_Verify_EndedSession(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	scan := soldScan()
	scan.SessionStart = testNow.Add(-5 * time.Hour)
	scan.SessionEnd = testNow.Add(-time.Hour)
	tickets.On("FindTicketByToken", "TOKEN1").Return(scan, nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "session has already ended")
}

func TestCheckinService_Verify_EarlyScanWarnsButAdmits(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	scan := soldScan()
	scan.SessionStart = testNow.Add(48 * time.Hour)
	scan.SessionEnd = testNow.Add(52 * time.Hour)
	tickets.On("FindTicketByToken", "TOKEN1").Return(scan, nil)

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "does not start until")
}

func TestCheckinService_Verify_StorageFaultSurfaces(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("FindTicketByToken", "TOKEN1").Return(nil, errors.New("db down"))

	result, err := service.Verify(context.Background(), "TOKEN1", "event-1")

	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestCheckinService_MarkUsed_Success(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).Return(true, nil)
	used := soldScan()
	used.Ticket.Status = models.TicketUsed
	used.Ticket.UsedAt = &testNow
	used.Ticket.VerifierID = "gate-7"
	tickets.On("GetTicketScan", "ticket-1").Return(used, nil)

	ticket, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "")

	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, ticket.Status)
	assert.Equal(t, "gate-7", ticket.VerifierID)
	tickets.AssertExpectations(t)
}

func TestCheckinService_MarkUsed_SecondScanLoses(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	// Guard did not match: another verifier won the race
	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).Return(false, nil)
	used := soldScan()
	used.Ticket.Status = models.TicketUsed
	tickets.On("GetTicketScan", "ticket-1").Return(used, nil)

	_, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "")

	assert.ErrorIs(t, err, status.ErrAlreadyUsed)
	tickets.AssertExpectations(t)
}

func TestCheckinService_MarkUsed_VoidedTicket(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).Return(false, nil)
	voided := soldScan()
	voided.Ticket.Status = models.TicketVoid
	tickets.On("GetTicketScan", "ticket-1").Return(voided, nil)

	_, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "")

	assert.ErrorIs(t, err, status.ErrTicketVoid)
}

func TestCheckinService_MarkUsed_UnknownTicket(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("MarkTicketUsed", "ghost", "gate-7", testNow).Return(false, nil)
	tickets.On("GetTicketScan", "ghost").Return(nil, status.ErrNotFound)

	_, err := service.MarkUsed(context.Background(), "ghost", "gate-7", "")

	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCheckinService_MarkUsed_WrongEventRefusedBeforeUpdate(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("GetTicketScan", "ticket-1").Return(soldScan(), nil)

	_, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "other-event")

	assert.ErrorIs(t, err, status.ErrWrongEvent)
	tickets.AssertNotCalled(t, "MarkTicketUsed", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckinService_MarkUsed_MatchingEventProceeds(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("GetTicketScan", "ticket-1").Return(soldScan(), nil).Once()
	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).Return(true, nil)
	used := soldScan()
	used.Ticket.Status = models.TicketUsed
	tickets.On("GetTicketScan", "ticket-1").Return(used, nil).Once()

	ticket, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "event-1")

	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, ticket.Status)
	tickets.AssertExpectations(t)
}

func TestCheckinService_MarkUsed_RetriesTransientFault(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).
		Return(false, errors.New("database is locked")).Once()
	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).
		Return(true, nil).Once()
	used := soldScan()
	used.Ticket.Status = models.TicketUsed
	tickets.On("GetTicketScan", "ticket-1").Return(used, nil)

	ticket, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "")

	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, ticket.Status)
	tickets.AssertExpectations(t)
}

func TestCheckinService_MarkUsed_ExhaustedRetriesSurface(t *testing.T) {
	tickets := new(mockTicketStore)
	service := setupTestCheckinService(tickets)

	tickets.On("MarkTicketUsed", "ticket-1", "gate-7", testNow).
		Return(false, errors.New("database is locked"))

	_, err := service.MarkUsed(context.Background(), "ticket-1", "gate-7", "")

	assert.Error(t, err)
	tickets.AssertNumberOfCalls(t, "MarkTicketUsed", 3)
}
