package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/wc-matomo-tracking/internal/api/middleware"
	"github.com/example/wc-matomo-tracking/internal/auth"
	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/domain/order"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/store"
	"github.com/example/wc-matomo-tracking/internal/infrastructure/store/mocks"
	"github.com/example/wc-matomo-tracking/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "hook-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type published struct {
	key   string
	event *order.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{key: key, event: event.(*order.Event)})
	return nil
}

type testServer struct {
	engine    *gin.Engine
	logs      *mocks.MockLogStore
	publisher *fakePublisher
	jwt       *auth.JWTService
	settings  settings.Static
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		logs:      mocks.NewMockLogStore(),
		publisher: &fakePublisher{},
		jwt:       auth.NewJWTService("test-secret-key", 15*time.Minute),
		settings:  settings.Static{RetentionDays: 30},
	}
	handlers := NewHandlers(auditlog.NewService(ts.logs), ts.settings, ts.publisher, nil)
	ts.engine = NewRouter(RouterConfig{
		Handlers:      handlers,
		JWTService:    ts.jwt,
		WebhookSecret: testWebhookSecret,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, role string) string {
	t.Helper()
	token, _, err := ts.jwt.GenerateToken("operator", role)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) admin(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, auth.RoleAdmin))
	return ts.do(req)
}

func hookRequest(target string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, base64.StdEncoding.EncodeToString(middleware.Sign(testWebhookSecret, raw)))
	return req
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seedLogs(ls *mocks.MockLogStore, orderID int64, n int, createdAt time.Time) {
	for i := 0; i < n; i++ {
		ls.AddEntry(store.LogEntry{
			OrderID:   orderID,
			EventType: order.EventNewOrder,
			EventData: json.RawMessage(`{}`),
			Status:    store.LogStatusSuccess,
			CreatedAt: createdAt.Add(time.Duration(i) * time.Second),
		})
	}
}

// ============================================
// Health and Metrics Tests
// ============================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[map[string]string](t, rec).Success)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================
// Webhook Tests
// ============================================

func TestNewOrderHook(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(hookRequest("/hooks/orders/new", map[string]any{
		"order_id": 101,
		"visit":    map[string]any{"page_url": "https://shop.example.com/checkout"},
	}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[map[string]string](t, rec)
	require.Len(t, ts.publisher.events, 1)

	got := ts.publisher.events[0]
	assert.Equal(t, "101", got.key)
	assert.Equal(t, order.EventNewOrder, got.event.EventType)
	assert.Equal(t, int64(101), got.event.OrderID)
	assert.Equal(t, got.event.ID, resp.Data["event_id"])

	var data order.NewOrder
	require.NoError(t, json.Unmarshal(got.event.Data, &data))
	assert.Equal(t, "https://shop.example.com/checkout", data.Visit.PageURL)
}

func TestStatusChangeHook(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(hookRequest("/hooks/orders/status", map[string]any{
		"order_id":   55,
		"old_status": "pending",
		"new_status": "completed",
	}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, ts.publisher.events, 1)

	var data order.StatusChanged
	require.NoError(t, json.Unmarshal(ts.publisher.events[0].event.Data, &data))
	assert.Equal(t, order.StatusChanged{OrderID: 55, OldStatus: "pending", NewStatus: "completed"}, data)
}

func TestHooks_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		target string
		body   any
	}{
		{"missing order id", "/hooks/orders/new", map[string]any{}},
		{"negative order id", "/hooks/orders/new", map[string]any{"order_id": -1}},
		{"missing new status", "/hooks/orders/status", map[string]any{"order_id": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(hookRequest(tt.target, tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", decode[any](t, rec).Code)
		})
	}
	assert.Empty(t, ts.publisher.events)
}

func TestHooks_PublishFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.err = errors.New("broker down")

	rec := ts.do(hookRequest("/hooks/orders/new", map[string]any{"order_id": 1}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PUBLISH_FAILED", decode[any](t, rec).Code)
}

func TestHooks_BadSignature(t *testing.T) {
	ts := newTestServer(t)

	req := hookRequest("/hooks/orders/new", map[string]any{"order_id": 1})
	req.Header.Set(middleware.SignatureHeader, base64.StdEncoding.EncodeToString([]byte("forged")))
	rec := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.publisher.events)
}

// ============================================
// Admin Tests
// ============================================

func TestAdmin_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/admin/logs", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/logs", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "viewer"))
	rec := ts.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListLogs_Paging(t *testing.T) {
	ts := newTestServer(t)
	seedLogs(ts.logs, 7, 5, time.Now().UTC().Add(-time.Hour))

	rec := ts.admin(t, http.MethodGet, "/admin/logs?page=2&per_page=2")

	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[auditlog.Page](t, rec).Data
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, []mocks.ListCall{{Offset: 2, Limit: 2}}, ts.logs.ListCalls)
}

func TestListLogs_Defaults(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.admin(t, http.MethodGet, "/admin/logs?page=abc")

	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[auditlog.Page](t, rec).Data
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, auditlog.DefaultPageSize, page.PerPage)
	assert.Equal(t, 0, page.TotalPages)
}

func TestListLogs_StorageError(t *testing.T) {
	ts := newTestServer(t)
	ts.logs.CountErr = errors.New("db gone")

	rec := ts.admin(t, http.MethodGet, "/admin/logs")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "STORAGE_ERROR", decode[any](t, rec).Code)
}

func TestOrderLogs(t *testing.T) {
	ts := newTestServer(t)
	seedLogs(ts.logs, 42, 2, time.Now().UTC().Add(-time.Hour))
	seedLogs(ts.logs, 43, 1, time.Now().UTC().Add(-time.Hour))

	rec := ts.admin(t, http.MethodGet, "/admin/orders/42/logs")

	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]store.LogEntry](t, rec).Data
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, int64(42), e.OrderID)
	}
}

func TestOrderLogs_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"abc", "0", "-4"} {
		rec := ts.admin(t, http.MethodGet, "/admin/orders/"+id+"/logs")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestPruneLogs_ExplicitDays(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()
	seedLogs(ts.logs, 1, 3, now.AddDate(0, 0, -20))
	seedLogs(ts.logs, 1, 2, now.Add(-time.Hour))

	rec := ts.admin(t, http.MethodPost, "/admin/logs/prune?days=7")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]int64](t, rec).Data
	assert.Equal(t, int64(7), resp["retention_days"])
	assert.Equal(t, int64(3), resp["deleted"])

	count, err := ts.logs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPruneLogs_ConfiguredRetention(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()
	seedLogs(ts.logs, 1, 2, now.AddDate(0, 0, -45))
	seedLogs(ts.logs, 1, 2, now.AddDate(0, 0, -20))

	rec := ts.admin(t, http.MethodPost, "/admin/logs/prune")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]int64](t, rec).Data
	assert.Equal(t, int64(30), resp["retention_days"])
	assert.Equal(t, int64(2), resp["deleted"])
}

func TestPruneLogs_InvalidDays(t *testing.T) {
	ts := newTestServer(t)

	for _, days := range []string{"abc", "0", "-1"} {
		rec := ts.admin(t, http.MethodPost, "/admin/logs/prune?days="+days)
		assert.Equal(t, http.StatusBadRequest, rec.Code, days)
	}
	assert.Empty(t, ts.logs.DeleteBeforeCalls)
}

func TestPruneLogs_StorageError(t *testing.T) {
	ts := newTestServer(t)
	ts.logs.DeleteErr = errors.New("db gone")

	rec := ts.admin(t, http.MethodPost, "/admin/logs/prune?days=10")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
