package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/example/wc-matomo-tracking/internal/domain/order"
	"github.com/example/wc-matomo-tracking/internal/matomo"
	"github.com/example/wc-matomo-tracking/internal/metrics"
	"github.com/example/wc-matomo-tracking/internal/settings"
	"go.uber.org/zap"
)

const (
	EventCategory      = "WooCommerce"
	ActionNewOrder     = "New Order"
	ActionStatusChange = "Order Status Change"

	categorySeparator = "|"

	// Metric outcome labels for events that never reach Deliver.
	outcomeOrderNotFound = "order_not_found"
	outcomeLookupError   = "lookup_error"
)

// Sender delivers one event to the collector.
type Sender interface {
	Deliver(ctx context.Context, cfg matomo.Config, ev matomo.TrackingEvent) matomo.Outcome
}

// Recorder writes the audit entry for an attempted delivery.
type Recorder interface {
	Record(ctx context.Context, orderID int64, eventType string, payload any, outcome matomo.Outcome) (int64, error)
}

// Handler turns order lifecycle events into Matomo tracking events
type Handler struct {
	settings settings.Provider
	orders   order.Lookup
	sender   Sender
	recorder Recorder
	logger   *zap.Logger
	homeURL  string
	async    bool
	inflight sync.WaitGroup
}

type Option func(*Handler)

// WithAsync makes the On* methods return before delivery. Call Wait before
// shutting down to let in-flight deliveries finish.
func WithAsync(async bool) Option {
	return func(h *Handler) { h.async = async }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHomeURL sets the page URL reported when an event carries none.
func WithHomeURL(u string) Option {
	return func(h *Handler) { h.homeURL = u }
}

// NewHandler creates a new tracking handler
func NewHandler(provider settings.Provider, orders order.Lookup, sender Sender, recorder Recorder, opts ...Option) *Handler {
	h := &Handler{
		settings: provider,
		orders:   orders,
		sender:   sender,
		recorder: recorder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnNewOrder tracks a newly created order.
func (h *Handler) OnNewOrder(ctx context.Context, orderID int64, visit order.Visit) error {
	return h.track(ctx, order.EventNewOrder, orderID, visit, func(snap *order.Snapshot) matomo.TrackingEvent {
		ev := baseEvent(snap, ActionNewOrder)
		ev.Value = strconv.FormatFloat(snap.Total, 'f', -1, 64)
		ev.Items = trackingItems(snap.Items)
		return ev
	})
}

// OnOrderStatusChanged tracks a status transition. The old status is only logged.
func (h *Handler) OnOrderStatusChanged(ctx context.Context, orderID int64, oldStatus, newStatus string, visit order.Visit) error {
	h.logger.Debug("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus),
	)
	return h.track(ctx, order.EventStatusChanged, orderID, visit, func(snap *order.Snapshot) matomo.TrackingEvent {
		ev := baseEvent(snap, ActionStatusChange)
		ev.Value = newStatus
		return ev
	})
}

// HandleEvent processes an order event envelope from Kafka or Kinesis
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event order.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("failed to unmarshal event", zap.ByteString("key", key), zap.Error(err))
		return err
	}

	switch event.EventType {
	case order.EventNewOrder:
		var e order.NewOrder
		if err := json.Unmarshal(event.Data, &e); err != nil {
			h.logger.Error("failed to unmarshal new order event", zap.String("event_id", event.ID), zap.Error(err))
			return err
		}
		return h.OnNewOrder(ctx, e.OrderID, e.Visit)

	case order.EventStatusChanged:
		var e order.StatusChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			h.logger.Error("failed to unmarshal status change event", zap.String("event_id", event.ID), zap.Error(err))
			return err
		}
		return h.OnOrderStatusChanged(ctx, e.OrderID, e.OldStatus, e.NewStatus, e.Visit)
	}

	h.logger.Debug("ignoring event", zap.String("event_type", event.EventType))
	return nil
}

// Wait blocks until every asynchronous delivery has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// track returns an error only when settings or the order could not be read.
// Delivery and audit failures are logged and counted, never returned.
func (h *Handler) track(ctx context.Context, eventType string, orderID int64, visit order.Visit, build func(*order.Snapshot) matomo.TrackingEvent) error {
	current, err := h.settings.Load(ctx)
	if err != nil {
		h.logger.Error("failed to load settings", zap.Int64("order_id", orderID), zap.Error(err))
		return fmt.Errorf("load settings: %w", err)
	}
	if !current.Delivery.TrackingEnabled {
		metrics.DeliveriesTotal.WithLabelValues(eventType, string(matomo.OutcomeSkipped)).Inc()
		return nil
	}

	snap, err := h.orders.Get(ctx, orderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		metrics.DeliveriesTotal.WithLabelValues(eventType, outcomeOrderNotFound).Inc()
		h.logger.Info("order not found, skipping", zap.Int64("order_id", orderID), zap.String("event_type", eventType))
		return nil
	}
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(eventType, outcomeLookupError).Inc()
		h.logger.Error("failed to load order", zap.Int64("order_id", orderID), zap.Error(err))
		return fmt.Errorf("load order %d: %w", orderID, err)
	}

	ev := build(snap)
	ev.Visit = h.visit(visit)

	if !h.async {
		h.deliver(ctx, current.Delivery, eventType, ev)
		return nil
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.deliver(context.WithoutCancel(ctx), current.Delivery, eventType, ev)
	}()
	return nil
}

func (h *Handler) deliver(ctx context.Context, cfg matomo.Config, eventType string, ev matomo.TrackingEvent) {
	outcome := h.sender.Deliver(ctx, cfg, ev)
	metrics.DeliveriesTotal.WithLabelValues(eventType, string(outcome.Kind)).Inc()

	fields := []zap.Field{
		zap.Int64("order_id", ev.OrderID),
		zap.String("event_type", eventType),
		zap.String("outcome", string(outcome.Kind)),
		zap.Int("status_code", outcome.StatusCode),
		zap.Duration("duration", outcome.Duration),
	}

	if !outcome.Attempted() {
		h.logger.Debug("delivery skipped", fields...)
		return
	}
	metrics.DeliveryDuration.Observe(outcome.Duration.Seconds())

	if outcome.Succeeded() {
		h.logger.Info("delivered event", fields...)
	} else {
		h.logger.Warn("delivery failed", append(fields, zap.Error(outcome.Err))...)
	}

	if _, err := h.recorder.Record(ctx, ev.OrderID, eventType, ev, outcome); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		h.logger.Error("failed to write audit entry", zap.Int64("order_id", ev.OrderID), zap.Error(err))
	}
}

func (h *Handler) visit(v order.Visit) matomo.Visit {
	page := v.PageURL
	if page == "" {
		page = h.homeURL
	}
	return matomo.Visit{PageURL: page, Referrer: v.Referrer, UserID: v.UserID}
}

func baseEvent(snap *order.Snapshot, action string) matomo.TrackingEvent {
	return matomo.TrackingEvent{
		Category:      EventCategory,
		Action:        action,
		Name:          "Order #" + strconv.FormatInt(snap.ID, 10),
		OrderID:       snap.ID,
		OrderTotal:    snap.Total,
		OrderCurrency: snap.Currency,
		CustomerID:    snap.CustomerID,
	}
}

func trackingItems(items []order.Item) []matomo.Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]matomo.Item, len(items))
	for i, it := range items {
		out[i] = matomo.Item{
			ID:       it.ProductID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Category: strings.Join(it.Categories, categorySeparator),
		}
	}
	return out
}
