package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/example/wc-matomo-tracking/internal/api/httpdto"
	"github.com/example/wc-matomo-tracking/internal/domain/auditlog"
	"github.com/example/wc-matomo-tracking/internal/domain/order"
	"github.com/example/wc-matomo-tracking/internal/settings"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Publisher puts order events on the stream the tracker consumes.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handlers struct {
	logs      *auditlog.Service
	settings  settings.Provider
	publisher Publisher
	logger    *zap.Logger
}

func NewHandlers(logs *auditlog.Service, provider settings.Provider, publisher Publisher, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		logs:      logs,
		settings:  provider,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
}

// Webhook Handlers

func (h *Handlers) NewOrderHook(c *gin.Context) {
	var req httpdto.NewOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	h.publish(c, order.EventNewOrder, req.OrderID, order.NewOrder{
		OrderID: req.OrderID,
		Visit:   req.Visit,
	})
}

func (h *Handlers) StatusChangeHook(c *gin.Context) {
	var req httpdto.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	h.publish(c, order.EventStatusChanged, req.OrderID, order.StatusChanged{
		OrderID:   req.OrderID,
		OldStatus: req.OldStatus,
		NewStatus: req.NewStatus,
		Visit:     req.Visit,
	})
}

func (h *Handlers) publish(c *gin.Context, eventType string, orderID int64, data any) {
	event, err := order.NewEvent(eventType, orderID, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	if err := h.publisher.Publish(c.Request.Context(), strconv.FormatInt(orderID, 10), event); err != nil {
		h.logger.Error("failed to publish order event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("event stream unavailable", "PUBLISH_FAILED"))
		return
	}

	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.AcceptedResponse{EventID: event.ID}))
}

// Admin Handlers

func (h *Handlers) ListLogs(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", auditlog.DefaultPageSize)

	result, err := h.logs.FetchPage(c.Request.Context(), page, perPage)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(result))
}

func (h *Handlers) OrderLogs(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid order id", "INVALID_REQUEST"))
		return
	}

	entries, err := h.logs.OrderLogs(c.Request.Context(), orderID)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(entries))
}

// PruneLogs applies ?days= or, when absent, the configured retention.
func (h *Handlers) PruneLogs(c *gin.Context) {
	var days int
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("days must be an integer", "INVALID_REQUEST"))
			return
		}
		days = n
	} else {
		current, err := h.settings.Load(c.Request.Context())
		if err != nil {
			h.logger.Error("failed to load settings", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("settings unavailable", "SETTINGS_UNAVAILABLE"))
			return
		}
		days = current.RetentionDays
	}

	deleted, err := h.logs.Prune(c.Request.Context(), days)
	if errors.Is(err, auditlog.ErrInvalidRetention) {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}
	if err != nil {
		h.storageError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PruneResponse{RetentionDays: days, Deleted: deleted}))
}

func (h *Handlers) storageError(c *gin.Context, err error) {
	h.logger.Error("audit log request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("audit log unavailable", "STORAGE_ERROR"))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil {
		return n
	}
	return fallback
}
