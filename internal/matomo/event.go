package matomo

import "strings"

// Config is the collector configuration for a single delivery. It is resolved
// by the caller for every event and never cached here.
type Config struct {
	BaseURL         string `json:"matomo_url"`
	SiteID          int    `json:"site_id"`
	AuthToken       string `json:"-"`
	TrackingEnabled bool   `json:"tracking_enabled"`
}

// Configured reports whether every field required to reach the collector is set.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && c.SiteID > 0 && c.AuthToken != ""
}

// Endpoint returns the tracking endpoint for the configured collector.
func (c Config) Endpoint() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/matomo.php"
}

// Item is a line item of a new order.
type Item struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// Visit is the request context the platform captured when the order event fired.
type Visit struct {
	PageURL  string `json:"url,omitempty"`
	Referrer string `json:"urlref,omitempty"`
	UserID   int64  `json:"uid,omitempty"`
}

// TrackingEvent is built from an already-loaded order snapshot. The first four
// fields map onto the collector's event descriptors; the order fields travel
// as c_-prefixed custom parameters.
type TrackingEvent struct {
	Category string `json:"e_c"`
	Action   string `json:"e_a"`
	Name     string `json:"e_n"`
	Value    string `json:"e_v"`

	OrderID       int64   `json:"order_id"`
	OrderTotal    float64 `json:"order_total"`
	OrderCurrency string  `json:"order_currency"`
	CustomerID    int64   `json:"customer_id"`
	Items         []Item  `json:"items,omitempty"`

	Visit Visit `json:"visit"`
}
