package capital

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/mocks"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

var now = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func TestRecord(t *testing.T) {
	repo := new(mocks.CapitalRepository)
	svc := NewCapitalService(repo, clockwork.NewFakeClockAt(now))
	ctx := context.Background()
	userID := uuid.New()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.CapitalLog")).Return(nil)

	entry, err := svc.Record(ctx, RecordInput{
		UserID:   userID,
		Kind:     "deposit",
		Amount:   decimal.NewFromInt(1000),
		Exchange: " Binance ",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.CapitalDeposit, entry.Kind)
	assert.Equal(t, "binance", entry.Exchange)
	assert.Equal(t, now, entry.OccurredAt)
	repo.AssertExpectations(t)
}

func TestRecord_RejectsNonPositiveAmount(t *testing.T) {
	repo := new(mocks.CapitalRepository)
	svc := NewCapitalService(repo, clockwork.NewFakeClockAt(now))

	_, err := svc.Record(context.Background(), RecordInput{
		UserID: uuid.New(),
		Kind:   domain.CapitalWithdrawal,
		Amount: decimal.NewFromInt(-5),
	})

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBalanceAndList(t *testing.T) {
	repo := new(mocks.CapitalRepository)
	svc := NewCapitalService(repo, clockwork.NewFakeClockAt(now))
	ctx := context.Background()
	userID := uuid.New()
	logs := []domain.CapitalLog{
		{Kind: domain.CapitalDeposit, Amount: decimal.NewFromInt(1000), Exchange: "binance", OccurredAt: now.AddDate(0, -2, 0)},
		{Kind: domain.CapitalDeposit, Amount: decimal.NewFromInt(500), Exchange: "bybit", OccurredAt: now.AddDate(0, -1, 0)},
		{Kind: domain.CapitalWithdrawal, Amount: decimal.NewFromInt(300), Exchange: "binance", OccurredAt: now},
		{Kind: domain.CapitalDeposit, Amount: decimal.NewFromInt(50), OccurredAt: now.AddDate(0, 0, -1)},
	}
	repo.On("List", ctx, userID).Return(logs, nil)

	b, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Net.Equal(decimal.NewFromInt(1250)))
	assert.True(t, b.Deposits.Equal(decimal.NewFromInt(1550)))
	assert.True(t, b.Withdrawn.Equal(decimal.NewFromInt(300)))
	assert.True(t, b.ByExchange["binance"].Equal(decimal.NewFromInt(700)))
	assert.True(t, b.ByExchange["unspecified"].Equal(decimal.NewFromInt(50)))

	net, err := svc.NetCapital(ctx, userID)
	require.NoError(t, err)
	assert.True(t, net.Equal(decimal.NewFromInt(1250)))

	listed, err := svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, domain.CapitalWithdrawal, listed[0].Kind)
	assert.Equal(t, "bybit", listed[2].Exchange)
}
