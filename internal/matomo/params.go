package matomo

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// CustomPrefix namespaces order fields so they never collide with protocol fields.
const CustomPrefix = "c_"

// Params serializes a tracking event into the collector's form fields.
func Params(cfg Config, ev TrackingEvent, nonce string) (url.Values, error) {
	v := url.Values{}
	v.Set("idsite", strconv.Itoa(cfg.SiteID))
	v.Set("rec", "1")
	v.Set("apiv", "1")

	v.Set("e_c", ev.Category)
	v.Set("e_a", ev.Action)
	v.Set("e_n", ev.Name)
	v.Set("e_v", ev.Value)

	v.Set("url", ev.Visit.PageURL)
	v.Set("urlref", ev.Visit.Referrer)
	v.Set("uid", strconv.FormatInt(ev.Visit.UserID, 10))
	v.Set("rand", nonce)
	v.Set("token_auth", cfg.AuthToken)

	v.Set(CustomPrefix+"order_id", strconv.FormatInt(ev.OrderID, 10))
	v.Set(CustomPrefix+"order_total", formatDecimal(ev.OrderTotal))
	v.Set(CustomPrefix+"order_currency", ev.OrderCurrency)
	v.Set(CustomPrefix+"customer_id", strconv.FormatInt(ev.CustomerID, 10))

	if len(ev.Items) > 0 {
		items, err := json.Marshal(ev.Items)
		if err != nil {
			return nil, fmt.Errorf("encode items: %w", err)
		}
		v.Set(CustomPrefix+"items", string(items))
	}

	return v, nil
}

func formatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
