package grpc

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/mocks"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
	"github.com/simaogato/tradejournal-backend/internal/usecase/leverage"
	"github.com/simaogato/tradejournal-backend/internal/usecase/regime"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
	"github.com/simaogato/tradejournal-backend/internal/usecase/trade"
)

type testEnv struct {
	conn      *grpc.ClientConn
	tradeRepo *mocks.TradeRepository
	subRepo   *mocks.SubscriptionRepository
	market    *mocks.MarketData
	token     string
	userID    uuid.UUID
	logs      *test.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	verifier := auth.NewVerifier("test-secret", "")
	userID := uuid.New()
	token, err := verifier.Issue(userID, "trader@example.com", time.Hour)
	require.NoError(t, err)

	tradeRepo := new(mocks.TradeRepository)
	subRepo := new(mocks.SubscriptionRepository)
	market := new(mocks.MarketData)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))

	regimeService := regime.NewRegimeService(market)
	regimeService.Plans = subscription.NewSubscriptionService(subRepo, tradeRepo, nil, clock)

	srv := &Server{
		TradeService:  trade.NewTradeService(tradeRepo, nil, nil, nil, clock),
		Calculator:    leverage.NewCalculator(fees.DefaultSchedule()),
		RegimeService: regimeService,
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(logger), AuthInterceptor(verifier)))
	Register(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{
		conn:      conn,
		tradeRepo: tradeRepo,
		subRepo:   subRepo,
		market:    market,
		token:     token,
		userID:    userID,
		logs:      hook,
	}
}

func (e *testEnv) invoke(ctx context.Context, method string, req, resp any) error {
	return e.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(CodecName))
}

func (e *testEnv) authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+e.token)
}

func TestServer_LogTrade(t *testing.T) {
	env := newTestEnv(t)
	env.tradeRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Trade")).Return(nil).Once()

	var resp TradeResponse
	err := env.invoke(env.authed(), "LogTrade", &LogTradeRequest{
		Symbol:     "btcusdt",
		Exchange:   "Binance",
		Side:       "long",
		EntryPrice: "65000",
		ExitPrice:  "66000",
		Quantity:   "0.1",
		Fees:       "5",
		Tags:       []string{"Breakout", "breakout"},
		OpenedAt:   time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
	}, &resp)
	require.NoError(t, err)

	require.NotNil(t, resp.Trade)
	assert.Equal(t, "BTCUSDT", resp.Trade.Symbol)
	assert.Equal(t, "binance", resp.Trade.Exchange)
	assert.Equal(t, "CLOSED", resp.Trade.Status)
	assert.Equal(t, "100", resp.Trade.GrossPnL)
	assert.Equal(t, "95", resp.Trade.NetPnL)
	assert.Equal(t, "WIN", resp.Trade.Outcome)
	assert.Equal(t, []string{"breakout"}, resp.Trade.Tags)
	env.tradeRepo.AssertExpectations(t)

	stored := env.tradeRepo.Calls[0].Arguments.Get(1).(*domain.Trade)
	assert.Equal(t, env.userID, stored.UserID)
}

func TestServer_LogTrade_InvalidDecimal(t *testing.T) {
	env := newTestEnv(t)

	var resp TradeResponse
	err := env.invoke(env.authed(), "LogTrade", &LogTradeRequest{
		Symbol:     "BTCUSDT",
		Side:       "LONG",
		EntryPrice: "sixty-five",
		Quantity:   "0.1",
	}, &resp)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	assert.Contains(t, st.Message(), "invalid entry_price format")
	env.tradeRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestServer_LogTrade_DomainValidation(t *testing.T) {
	env := newTestEnv(t)

	var resp TradeResponse
	err := env.invoke(env.authed(), "LogTrade", &LogTradeRequest{
		Symbol:     "BTCUSDT",
		Side:       "SIDEWAYS",
		EntryPrice: "65000",
		Quantity:   "0.1",
	}, &resp)

	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "side must be LONG or SHORT")
}

func TestServer_GetTrade(t *testing.T) {
	env := newTestEnv(t)
	missing := uuid.New()
	env.tradeRepo.On("GetByID", mock.Anything, env.userID, missing).
		Return(nil, apperrors.NotFoundError("trade not found")).Once()

	var resp Trade
	err := env.invoke(env.authed(), "GetTrade", &IDRequest{ID: missing.String()}, &resp)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = env.invoke(env.authed(), "GetTrade", &IDRequest{ID: "not-a-uuid"}, &resp)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "invalid id format")
}

func TestServer_ListTrades_RejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)

	var resp ListTradesResponse
	err := env.invoke(env.authed(), "ListTrades", &ListTradesRequest{Status: "PENDING"}, &resp)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_QuoteLeverage(t *testing.T) {
	env := newTestEnv(t)

	var resp map[string]any
	err := env.invoke(env.authed(), "QuoteLeverage", &QuoteLeverageRequest{
		Exchange: "binance",
		Side:     "LONG",
		Entry:    "100",
		Stop:     "95",
		Balance:  "1000",
		RiskPct:  "1",
	}, &resp)
	require.NoError(t, err)
	assert.NotEmpty(t, resp)

	err = env.invoke(env.authed(), "QuoteLeverage", &QuoteLeverageRequest{Entry: "100", Stop: "x"}, &resp)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_GetMarketRegime_RequiresPaidPlan(t *testing.T) {
	env := newTestEnv(t)
	env.subRepo.On("Get", mock.Anything, env.userID).
		Return(nil, apperrors.NotFoundError("subscription not found")).Once()

	var resp regime.Result
	err := env.invoke(env.authed(), "GetMarketRegime", &MarketRegimeRequest{Symbol: "BTCUSDT", Interval: "1h"}, &resp)

	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "PRO or ELITE")
	env.market.AssertNotCalled(t, "Klines", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestServer_GetMarketRegime_ProPlan(t *testing.T) {
	env := newTestEnv(t)
	env.subRepo.On("Get", mock.Anything, env.userID).Return(&domain.Subscription{
		UserID: env.userID,
		Plan:   domain.PlanPro,
		Status: domain.SubscriptionActive,
	}, nil).Once()

	candles := make([]domain.Candle, 21)
	for i := range candles {
		c := decimal.NewFromInt(int64(100 + i))
		candles[i] = domain.Candle{
			OpenTime: time.Date(2024, 3, 1, i, 0, 0, 0, time.UTC),
			Open:     c,
			High:     c.Add(decimal.RequireFromString("0.5")),
			Low:      c.Sub(decimal.RequireFromString("0.5")),
			Close:    c,
		}
	}
	env.market.On("Klines", mock.Anything, "BTCUSDT", domain.KlineInterval("1h"), 21).Return(candles, nil).Once()

	var resp regime.Result
	err := env.invoke(env.authed(), "GetMarketRegime", &MarketRegimeRequest{Symbol: "btcusdt", Interval: "1h"}, &resp)

	require.NoError(t, err)
	assert.Equal(t, regime.TrendingUp, resp.Label)
	env.market.AssertExpectations(t)
}

func TestServer_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	var resp ListTradesResponse
	err := env.invoke(context.Background(), "ListTrades", &ListTradesRequest{}, &resp)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_CorrelationIDLogged(t *testing.T) {
	env := newTestEnv(t)

	ctx := metadata.AppendToOutgoingContext(env.authed(), CorrelationHeader, "abc12345")
	var header metadata.MD
	var resp ListTradesResponse
	err := env.conn.Invoke(ctx, "/"+ServiceName+"/ListTrades", &ListTradesRequest{Status: "bogus"}, &resp,
		grpc.CallContentSubtype(CodecName), grpc.Header(&header))
	require.Error(t, err)
	assert.Equal(t, []string{"abc12345"}, header.Get(CorrelationHeader))

	require.Eventually(t, func() bool { return env.logs.LastEntry() != nil }, time.Second, 10*time.Millisecond)
	entry := env.logs.LastEntry()
	assert.Equal(t, "abc12345", entry.Data["correlation_id"])
	assert.Equal(t, "/"+ServiceName+"/ListTrades", entry.Data["method"])
	assert.Equal(t, codes.InvalidArgument.String(), entry.Data["code"])
	assert.Equal(t, logrus.WarnLevel, entry.Level)
}

func TestServer_HealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestParseHelpers(t *testing.T) {
	d, err := optionalDecimal("stop_loss", "  ")
	require.NoError(t, err)
	assert.Nil(t, d)

	z, err := decimalOrZero("fees", "")
	require.NoError(t, err)
	assert.True(t, z.Equal(decimal.Zero))

	_, err = parseDecimal("fees", "1,5")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	loc, err := location("Europe/Lisbon")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", loc.String())

	_, err = location("Mars/Olympus")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServiceDesc_MethodsAreDeclared(t *testing.T) {
	iface := reflect.TypeOf((*JournalService)(nil)).Elem()
	assert.Equal(t, len(ServiceDesc.Methods), iface.NumMethod())
	for _, m := range ServiceDesc.Methods {
		_, ok := iface.MethodByName(m.MethodName)
		assert.True(t, ok, "%s is registered but not part of JournalService", m.MethodName)
	}
}
