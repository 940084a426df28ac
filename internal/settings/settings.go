package settings

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/wc-matomo-tracking/internal/matomo"
)

// Option keys as stored by the shop's settings screen.
const (
	KeyMatomoURL       = "matomo_url"
	KeySiteID          = "site_id"
	KeyAuthToken       = "auth_token"
	KeyTrackingEnabled = "tracking_enabled"
	KeyRetentionDays   = "log_retention_days"
)

const (
	DefaultRetentionDays = 30
	MinRetentionDays     = 1
	MaxRetentionDays     = 365
)

// Settings is the operator configuration in effect for one event.
type Settings struct {
	Delivery      matomo.Config
	RetentionDays int
}

// Provider resolves the current settings. It is called once per event so that
// changes take effect without a restart.
type Provider interface {
	Load(ctx context.Context) (Settings, error)
}

// Static always returns the same settings.
type Static Settings

func (s Static) Load(ctx context.Context) (Settings, error) {
	return Settings(s), nil
}

// FromMap sanitizes raw option values. Unknown keys are ignored.
func FromMap(raw map[string]string) Settings {
	return Settings{
		Delivery: matomo.Config{
			BaseURL:         sanitizeURL(raw[KeyMatomoURL]),
			SiteID:          absInt(raw[KeySiteID]),
			AuthToken:       strings.TrimSpace(raw[KeyAuthToken]),
			TrackingEnabled: truthy(raw[KeyTrackingEnabled]),
		},
		RetentionDays: retentionDays(raw[KeyRetentionDays]),
	}
}

func sanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// absInt parses the leading integer of s and drops its sign. Anything
// without leading digits is 0.
func absInt(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "+-")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func retentionDays(s string) int {
	days, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return DefaultRetentionDays
	}
	if days < MinRetentionDays {
		return MinRetentionDays
	}
	if days > MaxRetentionDays {
		return MaxRetentionDays
	}
	return days
}
