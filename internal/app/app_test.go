package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_STORE", "memory")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, 10*time.Second, cfg.CloseTxMaxWait)
	require.Equal(t, 30*time.Second, cfg.CloseTxTimeout)
	require.Equal(t, "0.01", cfg.Threshold().String())
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	t.Setenv("APP_STORE", "sqlite")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "APP_STORE")
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	t.Setenv("APP_STORE", "memory")
	t.Setenv("VARIANCE_THRESHOLD", "-1")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "VARIANCE_THRESHOLD")
}

func TestInTestMode(t *testing.T) {
	t.Setenv("INVENTORY_TEST_MODE", "1")
	require.True(t, InTestMode())
	t.Setenv("INVENTORY_TEST_MODE", "")
	require.False(t, InTestMode())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", AppEnv: "test"}, &buf)
	logger.Info("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"env":"test"`)
}

func TestActorFromHeaders(t *testing.T) {
	var got shared.Actor
	h := ActorFromHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.CurrentActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "42")
	req.Header.Set(HeaderActorRole, "Supervisor")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, shared.Actor{ID: 42, Role: "supervisor"}, got)

	got = shared.Actor{}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "nope")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, got.Valid())
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.Catalog().PutLocation(catalog.Location{ID: 1, Code: "K1", Name: "Kitchen", Type: catalog.LocationKitchen, Active: true})
	metrics := observability.NewMetrics()
	services := NewServices(MemoryBackend(store), ServiceDeps{
		Notifier: &memory.Outbox{},
		Logger:   slog.Default(),
		Tracker:  metrics.Operations(),
	})
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000, AppRequestTimeout: 5 * time.Second}
	return NewRouter(RouterParams{Logger: slog.Default(), Config: cfg, Services: services, Metrics: metrics}), store
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "stockledger_http_requests_total")
}

func TestRouterEnforcesActorPermissions(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"name":"2026-10","start_date":"2026-10-01","end_date":"2026-10-31"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/periods", strings.NewReader(body))
	req.Header.Set(HeaderActorID, "7")
	req.Header.Set(HeaderActorRole, shared.RoleOperator)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/periods", strings.NewReader(body))
	req.Header.Set(HeaderActorID, "1")
	req.Header.Set(HeaderActorRole, shared.RoleAdmin)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"DRAFT"`)
}
