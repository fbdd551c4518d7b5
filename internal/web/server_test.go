package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/metrics"
	"github.com/vitos/level_cross_trader/internal/infrastructure/storage"
	"github.com/vitos/level_cross_trader/internal/infrastructure/venue"
	"github.com/vitos/level_cross_trader/internal/usecase"
	"github.com/vitos/level_cross_trader/internal/web"
	"go.uber.org/zap"
)

type fixture struct {
	store  *storage.SQLiteStore
	venue  *venue.PaperVenue
	server *web.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.Window.Enabled = false
	cfg.BarsRequired = 0

	logger := zap.NewNop()
	m := metrics.New()
	pv := venue.NewPaperVenue(cfg.PointValue(), logger)
	t.Cleanup(pv.Close)

	svc := usecase.NewStrategyService(cfg, store, pv, store, m, logger)
	return &fixture{
		store:  store,
		venue:  pv,
		server: web.NewServer(0, store, store, svc, m, logger),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAnnotationsCRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/annotations", `{"price":"5000.25","tag":"Support"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.StoredAnnotation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "http", created.Source)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("5000.25")))

	rec = f.do(t, http.MethodGet, "/annotations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []domain.StoredAnnotation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Support", listed[0].Text)

	rec = f.do(t, http.MethodDelete, "/annotations/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/annotations/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/annotations", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAddAnnotation_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"price":`},
		{"zero price", `{"price":"0","tag":"Support"}`},
		{"blank tag", `{"price":"5000","tag":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/annotations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLevels_RefreshAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, a := range []*domain.StoredAnnotation{
		{Price: decimal.RequireFromString("5000"), Text: "Support"},
		{Price: decimal.RequireFromString("5010"), Text: "Resistance"},
		{Price: decimal.RequireFromString("5020"), Text: "random note"},
	} {
		require.NoError(t, f.store.SaveAnnotation(ctx, a))
	}

	rec := f.do(t, http.MethodGet, "/levels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/levels/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed []domain.PriceLevel
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&refreshed))
	assert.Len(t, refreshed, 3)

	rec = f.do(t, http.MethodGet, "/levels", "")
	var views []map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	assert.Len(t, views, 3)
	assert.Equal(t, "Support", views[0]["description"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "symbol")
}

func TestOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	for i, state := range []domain.OrderState{domain.OrderWorking, domain.OrderFilled, domain.OrderCancelled} {
		require.NoError(t, f.store.SaveOrderEvent(ctx, &domain.OrderUpdate{
			OrderID: "o-1",
			Tag:     "EntryLong",
			State:   state,
			Time:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	rec := f.do(t, http.MethodGet, "/orders?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.OrderUpdate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	assert.Len(t, events, 2)

	rec = f.do(t, http.MethodGet, "/orders?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/levels", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, price := range []string{"5000", "5010"} {
		require.NoError(t, f.store.SaveSignal(ctx, &domain.SignalRecord{
			Time:        time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC),
			Direction:   domain.DirectionLong,
			LevelPrice:  decimal.RequireFromString(price),
			Description: "Support",
			EntryPrice:  decimal.RequireFromString(price),
			Quantity:    2,
		}))
	}

	rec = f.do(t, http.MethodGet, "/signals?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var signals []domain.SignalRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signals))
	require.Len(t, signals, 1)
	assert.Equal(t, "5010", signals[0].LevelPrice.String())

	rec = f.do(t, http.MethodGet, "/signals?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SaveDailyPnL(ctx, &domain.DailyPnL{
		TradingDate:  day,
		Realized:     decimal.NewFromInt(-300),
		Unrealized:   decimal.NewFromInt(-250),
		LimitReached: true,
	}))

	rec := f.do(t, http.MethodGet, "/daily?date=2024-03-11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pnl domain.DailyPnL
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pnl))
	assert.Equal(t, "-300", pnl.Realized.String())
	assert.True(t, pnl.LimitReached)

	rec = f.do(t, http.MethodGet, "/daily?date=2024-03-12", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/daily", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
