//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

var testDB *DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tradejournal"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	testDB, err = NewDB(ctx, connStr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	if err := testDB.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to migrate: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTrade(userID uuid.UUID, symbol string, openedAt time.Time) *domain.Trade {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Trade{
		ID:          uuid.New(),
		UserID:      userID,
		Symbol:      symbol,
		Exchange:    "binance",
		Side:        domain.SideLong,
		Status:      domain.TradeStatusOpen,
		EntryPrice:  dec("50000"),
		Quantity:    dec("0.1"),
		Leverage:    dec("10"),
		Fees:        dec("2.5"),
		FundingFees: dec("0"),
		FeeType:     domain.FeeTypeTaker,
		Tags:        []string{"breakout"},
		Source:      domain.TradeSourceManual,
		OpenedAt:    openedAt.UTC().Truncate(time.Microsecond),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	require.NoError(t, testDB.Migrate(context.Background()))
}

func TestTradeRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewTradeRepository(testDB)
	userID := uuid.New()
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tr := newTrade(userID, "BTCUSDT", opened)
	stop := dec("49000")
	tr.StopLoss = &stop
	require.NoError(t, repo.Create(ctx, tr))

	got, err := repo.GetByID(ctx, userID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.True(t, got.EntryPrice.Equal(tr.EntryPrice))
	require.NotNil(t, got.StopLoss)
	assert.True(t, got.StopLoss.Equal(stop))
	assert.Nil(t, got.ExitPrice)
	assert.Equal(t, []string{"breakout"}, got.Tags)
	assert.True(t, got.OpenedAt.Equal(opened))

	_, err = repo.GetByID(ctx, uuid.New(), tr.ID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound), "other users cannot see the trade")

	require.NoError(t, tr.Close(dec("51000"), opened.Add(2*time.Hour), dec("2.55")))
	require.NoError(t, repo.Update(ctx, tr))
	got, err = repo.GetByID(ctx, userID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusClosed, got.Status)
	assert.True(t, got.NetPnL().Equal(dec("94.95")))

	require.NoError(t, repo.Delete(ctx, userID, tr.ID))
	err = repo.Delete(ctx, userID, tr.ID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestTradeRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewTradeRepository(testDB)
	userID := uuid.New()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		symbol := "BTCUSDT"
		if i%2 == 1 {
			symbol = "ETHUSDT"
		}
		require.NoError(t, repo.Create(ctx, newTrade(userID, symbol, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Create(ctx, newTrade(uuid.New(), "BTCUSDT", base)))

	filter := domain.TradeFilter{Symbol: "BTCUSDT", Limit: 2}
	page, err := repo.List(ctx, userID, filter)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].OpenedAt.After(page[1].OpenedAt), "newest first")

	total, err := repo.Count(ctx, userID, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	tagged, err := repo.Count(ctx, userID, domain.TradeFilter{Tag: "breakout"})
	require.NoError(t, err)
	assert.Equal(t, 5, tagged)

	from := base.Add(time.Hour)
	to := base.Add(3 * time.Hour)
	ranged, err := repo.ListRange(ctx, userID, &from, &to)
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	n, err := repo.CountCreatedSince(ctx, userID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestTradeRepository_BatchAndExternalIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewTradeRepository(testDB)
	userID := uuid.New()
	opened := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	a := newTrade(userID, "BTCUSDT", opened)
	a.ExternalID = "row-a"
	b := newTrade(userID, "ETHUSDT", opened)
	b.ExternalID = "row-b"
	require.NoError(t, repo.CreateBatch(ctx, []*domain.Trade{a, b}))

	found, err := repo.ExistingExternalIDs(ctx, userID, []string{"row-a", "row-c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"row-a": true}, found)

	// A duplicate inside the batch rolls the whole batch back.
	c := newTrade(userID, "SOLUSDT", opened)
	c.ExternalID = "row-c"
	dup := newTrade(userID, "SOLUSDT", opened)
	dup.ExternalID = "row-a"
	err = repo.CreateBatch(ctx, []*domain.Trade{c, dup})
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict))

	found, err = repo.ExistingExternalIDs(ctx, userID, []string{"row-c"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestTradeRepository_ExistingIDsMatchManualTrades(t *testing.T) {
	ctx := context.Background()
	repo := NewTradeRepository(testDB)
	userID := uuid.New()

	manual := newTrade(userID, "BTCUSDT", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, manual))

	// an export writes the trade id in place of the missing external id
	found, err := repo.ExistingExternalIDs(ctx, userID, []string{manual.ID.String(), uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{manual.ID.String(): true}, found)

	found, err = repo.ExistingExternalIDs(ctx, uuid.New(), []string{manual.ID.String()})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGoalRepository_MarkAchievedOncePerPeriod(t *testing.T) {
	ctx := context.Background()
	repo := NewGoalRepository(testDB)
	g := &domain.Goal{
		ID: uuid.New(), UserID: uuid.New(), Kind: domain.GoalKindNetPnL,
		Target: dec("100"), Period: domain.GoalPeriodWeekly, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, g))

	week1 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	week2 := week1.AddDate(0, 0, 7)

	ok, err := repo.MarkAchieved(ctx, g.ID, week1, week1.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkAchieved(ctx, g.ID, week1, week1.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkAchieved(ctx, g.ID, week2, week2.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	goals, err := repo.List(ctx, g.UserID)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.True(t, goals[0].AchievedAt.Equal(week2.Add(time.Hour)))
}

func TestSubscriptionRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(testDB)
	userID := uuid.New()

	_, err := repo.Get(ctx, userID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))

	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		UserID: userID, Plan: domain.PlanPro, Status: domain.SubscriptionActive,
		StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1", CurrentPeriodEnd: &end,
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Upsert(ctx, sub))
	require.NoError(t, repo.Upsert(ctx, sub))

	got, err := repo.GetByStripeSubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, domain.PlanPro, got.Plan)
	assert.True(t, got.CurrentPeriodEnd.Equal(end))
}

func TestWidgetAndCapitalRepositories(t *testing.T) {
	ctx := context.Background()
	widgets := NewWidgetRepository(testDB)
	capital := NewCapitalRepository(testDB)
	userID := uuid.New()

	layout := []domain.Widget{
		{ID: uuid.New(), UserID: userID, Kind: domain.WidgetGoals, Position: 1, Width: 2, Settings: map[string]any{"compact": true}},
		{ID: uuid.New(), UserID: userID, Kind: domain.WidgetCalendar, Position: 0, Width: 4},
	}
	require.NoError(t, widgets.ReplaceLayout(ctx, userID, layout))
	require.NoError(t, widgets.ReplaceLayout(ctx, userID, layout))

	got, err := widgets.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.WidgetCalendar, got[0].Kind)
	assert.Equal(t, true, got[1].Settings["compact"])

	require.NoError(t, capital.Create(ctx, &domain.CapitalLog{
		ID: uuid.New(), UserID: userID, Kind: domain.CapitalDeposit, Amount: dec("1000"), OccurredAt: time.Now().UTC(),
	}))
	require.NoError(t, capital.Create(ctx, &domain.CapitalLog{
		ID: uuid.New(), UserID: userID, Kind: domain.CapitalWithdrawal, Amount: dec("250"), OccurredAt: time.Now().UTC(),
	}))
	logs, err := capital.List(ctx, userID)
	require.NoError(t, err)
	assert.True(t, domain.NetCapital(logs).Equal(dec("750")))
}

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(testDB)
	imports := NewImportRepository(testDB)
	userID := uuid.New()
	now := time.Now().UTC()

	_, err := repo.Get(ctx, userID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))

	rows := []struct {
		reason domain.XPReason
		amount int
	}{
		{domain.XPTradeLogged, 10},
		{domain.XPGoalAchieved, 100},
	}
	for _, row := range rows {
		_, err := repo.Update(ctx, userID, func(p *domain.UserProgress, ledger domain.XPLedger) ([]*domain.XPEvent, error) {
			p.XP += row.amount
			p.UpdatedAt = now
			return []*domain.XPEvent{{ID: uuid.New(), UserID: userID, Reason: row.reason, Amount: row.amount, CreatedAt: now}}, nil
		})
		require.NoError(t, err)
	}

	got, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 110, got.XP)
	assert.Equal(t, 1, got.Level)

	capped, err := repo.SumSince(ctx, userID, now.Add(-time.Minute), domain.XPGoalAchieved)
	require.NoError(t, err)
	assert.Equal(t, 10, capped)

	all, err := repo.SumSince(ctx, userID, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 110, all)

	_, err = repo.Update(ctx, userID, func(p *domain.UserProgress, ledger domain.XPLedger) ([]*domain.XPEvent, error) {
		p.XP = 9999
		return nil, errors.New("rejected")
	})
	require.Error(t, err)
	got, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 110, got.XP)

	require.NoError(t, imports.Record(ctx, &domain.ImportRecord{
		ID: uuid.New(), UserID: userID, Kind: domain.ImportKindScreenshot, Imported: 1, CreatedAt: now,
	}))
	n, err := imports.CountSince(ctx, userID, domain.ImportKindScreenshot, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProgressRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(testDB)
	userID := uuid.New()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, userID, func(p *domain.UserProgress, ledger domain.XPLedger) ([]*domain.XPEvent, error) {
				earned, err := ledger.SumSince(ctx, userID, time.Time{})
				if err != nil {
					return nil, err
				}
				if earned != p.XP {
					return nil, fmt.Errorf("ledger %d out of step with xp %d", earned, p.XP)
				}
				p.XP += 7
				p.UpdatedAt = time.Now().UTC()
				return []*domain.XPEvent{{ID: uuid.New(), UserID: userID, Reason: domain.XPTradeLogged, Amount: 7, CreatedAt: time.Now().UTC()}}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, workers*7, got.XP)
	total, err := repo.SumSince(ctx, userID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, workers*7, total)
}
