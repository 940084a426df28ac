package matomo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records every form posted to /matomo.php.
type collector struct {
	mu     sync.Mutex
	forms  []url.Values
	paths  []string
	status int
	calls  atomic.Int32
}

func newCollector(t *testing.T, status int) (*collector, *httptest.Server) {
	c := &collector{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls.Add(1)
		assert.NoError(t, r.ParseForm())
		c.mu.Lock()
		c.forms = append(c.forms, r.PostForm)
		c.paths = append(c.paths, r.URL.Path)
		c.mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.WriteHeader(c.status)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		SiteID:          3,
		AuthToken:       "secret-token",
		TrackingEnabled: true,
	}
}

func newOrderEvent() TrackingEvent {
	return TrackingEvent{
		Category:      "WooCommerce",
		Action:        "New Order",
		Name:          "Order #101",
		Value:         "49.99",
		OrderID:       101,
		OrderTotal:    49.99,
		OrderCurrency: "USD",
		CustomerID:    7,
		Items: []Item{
			{ID: 11, Name: "Mug", Quantity: 1, Price: 19.99, Category: "Kitchen"},
			{ID: 12, Name: "Tea", Quantity: 2, Price: 15, Category: "Food|Drinks"},
		},
		Visit: Visit{PageURL: "https://shop.example.com", Referrer: "https://shop.example.com/checkout", UserID: 7},
	}
}

func TestClient_Deliver_Success(t *testing.T) {
	col, srv := newCollector(t, http.StatusOK)
	client := NewClient(WithNonce(func() string { return "nonce-1" }))

	outcome := client.Deliver(context.Background(), testConfig(srv.URL), newOrderEvent())

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.True(t, outcome.Succeeded())
	assert.True(t, outcome.Attempted())
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Empty(t, outcome.ErrorMessage())
	require.Len(t, col.forms, 1)
	assert.Equal(t, "/matomo.php", col.paths[0])

	form := col.forms[0]
	assert.Equal(t, "3", form.Get("idsite"))
	assert.Equal(t, "1", form.Get("rec"))
	assert.Equal(t, "1", form.Get("apiv"))
	assert.Equal(t, "WooCommerce", form.Get("e_c"))
	assert.Equal(t, "New Order", form.Get("e_a"))
	assert.Equal(t, "Order #101", form.Get("e_n"))
	assert.Equal(t, "49.99", form.Get("e_v"))
	assert.Equal(t, "101", form.Get("c_order_id"))
	assert.Equal(t, "49.99", form.Get("c_order_total"))
	assert.Equal(t, "USD", form.Get("c_order_currency"))
	assert.Equal(t, "7", form.Get("c_customer_id"))
	assert.Equal(t, "https://shop.example.com", form.Get("url"))
	assert.Equal(t, "https://shop.example.com/checkout", form.Get("urlref"))
	assert.Equal(t, "7", form.Get("uid"))
	assert.Equal(t, "nonce-1", form.Get("rand"))
	assert.Equal(t, "secret-token", form.Get("token_auth"))

	var items []Item
	require.NoError(t, json.Unmarshal([]byte(form.Get("c_items")), &items))
	assert.Equal(t, newOrderEvent().Items, items)
}

func TestClient_Deliver_TrailingSlashStripped(t *testing.T) {
	col, srv := newCollector(t, http.StatusOK)
	client := NewClient()

	outcome := client.Deliver(context.Background(), testConfig(srv.URL+"///"), newOrderEvent())

	require.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, []string{"/matomo.php"}, col.paths)
}

func TestClient_Deliver_TrackingDisabled_NoRequest(t *testing.T) {
	col, srv := newCollector(t, http.StatusOK)
	cfg := testConfig(srv.URL)
	cfg.TrackingEnabled = false

	outcome := NewClient().Deliver(context.Background(), cfg, newOrderEvent())

	assert.Equal(t, OutcomeSkipped, outcome.Kind)
	assert.False(t, outcome.Attempted())
	assert.Empty(t, outcome.ErrorMessage())
	assert.Zero(t, col.calls.Load())
}

func TestClient_Deliver_Unconfigured_NoRequest(t *testing.T) {
	col, srv := newCollector(t, http.StatusOK)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.BaseURL = "" }},
		{"blank url", func(c *Config) { c.BaseURL = "   " }},
		{"missing site id", func(c *Config) { c.SiteID = 0 }},
		{"missing token", func(c *Config) { c.AuthToken = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(srv.URL)
			tt.mutate(&cfg)

			outcome := NewClient().Deliver(context.Background(), cfg, newOrderEvent())

			assert.Equal(t, OutcomeSkippedUnconfigured, outcome.Kind)
			assert.False(t, outcome.Attempted())
		})
	}
	assert.Zero(t, col.calls.Load())
}

func TestClient_Deliver_Non200IsHTTPError(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			_, srv := newCollector(t, status)

			outcome := NewClient().Deliver(context.Background(), testConfig(srv.URL), newOrderEvent())

			assert.Equal(t, OutcomeHTTPError, outcome.Kind)
			assert.Equal(t, status, outcome.StatusCode)
			assert.True(t, errors.Is(outcome.Err, ErrHTTPStatus))
			assert.Contains(t, outcome.ErrorMessage(), http.StatusText(status))
		})
	}
}

func TestClient_Deliver_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	outcome := NewClient().Deliver(context.Background(), testConfig(baseURL), newOrderEvent())

	assert.Equal(t, OutcomeTransportError, outcome.Kind)
	assert.True(t, errors.Is(outcome.Err, ErrTransport))
	assert.NotEmpty(t, outcome.ErrorMessage())
}

func TestClient_Deliver_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := NewClient(WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	outcome := client.Deliver(context.Background(), testConfig(srv.URL), newOrderEvent())

	assert.Equal(t, OutcomeTransportError, outcome.Kind)
	assert.True(t, errors.Is(outcome.Err, ErrTransport))
}

func TestClient_Deliver_SingleAttempt(t *testing.T) {
	col, srv := newCollector(t, http.StatusServiceUnavailable)

	NewClient().Deliver(context.Background(), testConfig(srv.URL), newOrderEvent())

	assert.Equal(t, int32(1), col.calls.Load())
}

func TestClient_Deliver_FreshNonceEachCall(t *testing.T) {
	col, srv := newCollector(t, http.StatusOK)
	client := NewClient()

	client.Deliver(context.Background(), testConfig(srv.URL), newOrderEvent())
	client.Deliver(context.Background(), testConfig(srv.URL), newOrderEvent())

	require.Len(t, col.forms, 2)
	assert.NotEmpty(t, col.forms[0].Get("rand"))
	assert.NotEqual(t, col.forms[0].Get("rand"), col.forms[1].Get("rand"))
}

func TestClient_Deliver_Concurrent(t *testing.T) {
	col, srv := newCollector(t, http.StatusOK)
	client := NewClient()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			ev := newOrderEvent()
			ev.OrderID = orderID
			outcome := client.Deliver(context.Background(), testConfig(srv.URL), ev)
			assert.Equal(t, OutcomeSuccess, outcome.Kind)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, f := range col.forms {
		seen[f.Get("c_order_id")] = true
	}
	assert.Len(t, seen, 20)
}
