package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/platform/config"
	"github.com/simaogato/tradejournal-backend/internal/usecase/importer"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
)

// --- Mock implementations ---

type mockImportService struct {
	importCSVFn        func(ctx context.Context, userID uuid.UUID, exchange string, format importer.Format, r io.Reader) (*importer.ImportResult, error)
	importScreenshotFn func(ctx context.Context, userID uuid.UUID, exchange string, rows []importer.ScreenshotRow) (*importer.ImportResult, error)
	exportCSVFn        func(ctx context.Context, userID uuid.UUID, w io.Writer, filter importer.ExportFilter) (int, error)
}

func (m *mockImportService) ImportCSV(ctx context.Context, userID uuid.UUID, exchange string, format importer.Format, r io.Reader) (*importer.ImportResult, error) {
	if m.importCSVFn != nil {
		return m.importCSVFn(ctx, userID, exchange, format, r)
	}
	return nil, errors.New("not implemented")
}

func (m *mockImportService) ImportScreenshot(ctx context.Context, userID uuid.UUID, exchange string, rows []importer.ScreenshotRow) (*importer.ImportResult, error) {
	if m.importScreenshotFn != nil {
		return m.importScreenshotFn(ctx, userID, exchange, rows)
	}
	return nil, errors.New("not implemented")
}

func (m *mockImportService) ExportCSV(ctx context.Context, userID uuid.UUID, w io.Writer, filter importer.ExportFilter) (int, error) {
	if m.exportCSVFn != nil {
		return m.exportCSVFn(ctx, userID, w, filter)
	}
	return 0, errors.New("not implemented")
}

type mockBillingService struct {
	getFn            func(ctx context.Context, userID uuid.UUID) (*subscription.View, error)
	createCheckoutFn func(ctx context.Context, userID uuid.UUID, email string, plan domain.Plan) (string, error)
	handleWebhookFn  func(ctx context.Context, payload []byte, signatureHeader string) error
}

func (m *mockBillingService) Get(ctx context.Context, userID uuid.UUID) (*subscription.View, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockBillingService) CreateCheckout(ctx context.Context, userID uuid.UUID, email string, plan domain.Plan) (string, error) {
	if m.createCheckoutFn != nil {
		return m.createCheckoutFn(ctx, userID, email, plan)
	}
	return "", errors.New("not implemented")
}

func (m *mockBillingService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if m.handleWebhookFn != nil {
		return m.handleWebhookFn(ctx, payload, signatureHeader)
	}
	return nil
}

type mockHub struct {
	serveFn func(userID uuid.UUID, conn *websocket.Conn) error
}

func (m *mockHub) Serve(userID uuid.UUID, conn *websocket.Conn) error {
	if m.serveFn != nil {
		return m.serveFn(userID, conn)
	}
	return conn.Close()
}

// --- Test helpers ---

const testSecret = "test-secret-key-32-bytes-long!!!"

type testServer struct {
	*Server
	userID uuid.UUID
	token  string
	logs   *test.Hook
}

func newTestServer(t *testing.T, deps Deps, opts ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		HTTPAddr:       ":0",
		HTTPRatePerSec: 1000,
		HTTPRateBurst:  1000,
		MaxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if deps.Imports == nil {
		deps.Imports = &mockImportService{}
	}
	if deps.Billing == nil {
		deps.Billing = &mockBillingService{}
	}
	if deps.Hub == nil {
		deps.Hub = &mockHub{}
	}

	verifier := auth.NewVerifier(testSecret, "")
	userID := uuid.New()
	token, err := verifier.Issue(userID, "trader@example.com", time.Hour)
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	return &testServer{
		Server: NewServer(cfg, logger, verifier, deps),
		userID: userID,
		token:  token,
		logs:   hook,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+ts.token)
	return req
}
