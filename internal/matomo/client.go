package matomo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds the single POST made per event.
const DefaultTimeout = 5 * time.Second

// Client sends tracking events to a Matomo collector. It holds no per-call
// state and may be shared between goroutines.
type Client struct {
	httpClient *http.Client
	nonce      func() string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (5s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNonce overrides the anti-cache value sent as "rand".
func WithNonce(fn func() string) Option {
	return func(c *Client) { c.nonce = fn }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		nonce:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver makes at most one attempt to send ev. Disabled tracking and missing
// configuration return without touching the network.
func (c *Client) Deliver(ctx context.Context, cfg Config, ev TrackingEvent) Outcome {
	if !cfg.TrackingEnabled {
		return Outcome{Kind: OutcomeSkipped}
	}
	if !cfg.Configured() {
		return Outcome{Kind: OutcomeSkippedUnconfigured}
	}

	start := time.Now()
	outcome := c.post(ctx, cfg, ev)
	outcome.Duration = time.Since(start)
	return outcome
}

func (c *Client) post(ctx context.Context, cfg Config, ev TrackingEvent) Outcome {
	params, err := Params(cfg, ev, c.nonce())
	if err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint(), strings.NewReader(params.Encode()))
	if err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return Outcome{
			Kind:       OutcomeHTTPError,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
	return Outcome{Kind: OutcomeSuccess, StatusCode: resp.StatusCode}
}
