package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/simaogato/tradejournal-backend/internal/usecase/analytics"
	"github.com/simaogato/tradejournal-backend/internal/usecase/costbasis"
	"github.com/simaogato/tradejournal-backend/internal/usecase/dashboard"
	"github.com/simaogato/tradejournal-backend/internal/usecase/leverage"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
	"github.com/simaogato/tradejournal-backend/internal/usecase/regime"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
	"github.com/simaogato/tradejournal-backend/internal/usecase/trade"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "tradejournal.v1.JournalService"

// JournalService is the handler type registered with ServiceDesc.
type JournalService interface {
	LogTrade(context.Context, *LogTradeRequest) (*TradeResponse, error)
	UpdateTrade(context.Context, *UpdateTradeRequest) (*Trade, error)
	CloseTrade(context.Context, *CloseTradeRequest) (*TradeResponse, error)
	DeleteTrade(context.Context, *IDRequest) (*Empty, error)
	GetTrade(context.Context, *IDRequest) (*Trade, error)
	ListTrades(context.Context, *ListTradesRequest) (*ListTradesResponse, error)
	GetOpenPositions(context.Context, *Empty) (*trade.OpenPositionsView, error)

	GetAnalytics(context.Context, *AnalyticsRequest) (*analytics.Report, error)
	GetOverview(context.Context, *OverviewRequest) (*dashboard.Overview, error)
	GetProgress(context.Context, *Empty) (*progress.Snapshot, error)

	CreateGoal(context.Context, *CreateGoalRequest) (*Goal, error)
	ListGoals(context.Context, *Empty) (*ListGoalsResponse, error)
	DeleteGoal(context.Context, *IDRequest) (*Empty, error)
	EvaluateGoals(context.Context, *Empty) (*EvaluateGoalsResponse, error)

	GetLayout(context.Context, *Empty) (*LayoutMessage, error)
	SaveLayout(context.Context, *LayoutMessage) (*LayoutMessage, error)
	ResetLayout(context.Context, *Empty) (*LayoutMessage, error)

	RecordCapital(context.Context, *RecordCapitalRequest) (*CapitalEntry, error)
	ListCapital(context.Context, *Empty) (*ListCapitalResponse, error)
	DeleteCapital(context.Context, *IDRequest) (*Empty, error)

	QuoteLeverage(context.Context, *QuoteLeverageRequest) (*leverage.Quote, error)
	CalculateCostBasis(context.Context, *SymbolRequest) (*costbasis.SymbolReport, error)
	GetMarketRegime(context.Context, *MarketRegimeRequest) (*regime.Result, error)
	GetSubscription(context.Context, *Empty) (*subscription.View, error)
}

var _ JournalService = (*Server)(nil)

// unary adapts a typed Server method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, h func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, r any) (any, error) {
				return h(srv.(*Server), ctx, r.(*Req))
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, call)
		},
	}
}

// ServiceDesc describes JournalService. Messages are JSON encoded, so clients
// must use the "json" content subtype.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*JournalService)(nil),
	Methods: []grpc.MethodDesc{
		unary("LogTrade", (*Server).LogTrade),
		unary("UpdateTrade", (*Server).UpdateTrade),
		unary("CloseTrade", (*Server).CloseTrade),
		unary("DeleteTrade", (*Server).DeleteTrade),
		unary("GetTrade", (*Server).GetTrade),
		unary("ListTrades", (*Server).ListTrades),
		unary("GetOpenPositions", (*Server).GetOpenPositions),
		unary("GetAnalytics", (*Server).GetAnalytics),
		unary("GetOverview", (*Server).GetOverview),
		unary("GetProgress", (*Server).GetProgress),
		unary("CreateGoal", (*Server).CreateGoal),
		unary("ListGoals", (*Server).ListGoals),
		unary("DeleteGoal", (*Server).DeleteGoal),
		unary("EvaluateGoals", (*Server).EvaluateGoals),
		unary("GetLayout", (*Server).GetLayout),
		unary("SaveLayout", (*Server).SaveLayout),
		unary("ResetLayout", (*Server).ResetLayout),
		unary("RecordCapital", (*Server).RecordCapital),
		unary("ListCapital", (*Server).ListCapital),
		unary("DeleteCapital", (*Server).DeleteCapital),
		unary("QuoteLeverage", (*Server).QuoteLeverage),
		unary("CalculateCostBasis", (*Server).CalculateCostBasis),
		unary("GetMarketRegime", (*Server).GetMarketRegime),
		unary("GetSubscription", (*Server).GetSubscription),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradejournal/v1/journal.json",
}

// Register attaches the journal, health and reflection services to s.
func Register(s *grpc.Server, srv *Server) *health.Server {
	s.RegisterService(&ServiceDesc, srv)

	hsrv := health.NewServer()
	hsrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hsrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hsrv)

	reflection.Register(s)
	return hsrv
}
