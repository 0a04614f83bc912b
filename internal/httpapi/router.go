// Package httpapi exposes an event store over HTTP with gin.
//
// Routes:
//
//	GET  /health             liveness
//	POST /v1/events/query    query the log
//	POST /v1/events          append events, optionally scoped
//	GET  /v1/events/stream   server-sent events of every append
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/wire"
)

const (
	defaultStreamBuffer = 64

	logMsgRequestHandled = "http request handled"
	logMsgRequestFailed  = "http request failed"

	logAttrMethod     = "method"
	logAttrPath       = "path"
	logAttrStatus     = "status"
	logAttrDurationMS = "duration_ms"
	logAttrError      = "error"
)

// Store is the part of an event store the API serves.
type Store interface {
	Query(ctx context.Context, criteria eventstore.FilterCriteria) (eventstore.QueryResult, error)
	Append(ctx context.Context, scope eventstore.AppendScope, events ...eventstore.Event) error
	Subscribe(handle eventstore.HandleEvents) (eventstore.EventSubscription, error)
}

type handler struct {
	store        Store
	logger       *slog.Logger
	streamBuffer int
}

// Option configures the router.
type Option func(*handler)

// WithStreamBuffer sets how many notifications a stream client may lag behind before it is disconnected.
func WithStreamBuffer(size int) Option {
	return func(h *handler) {
		if size > 0 {
			h.streamBuffer = size
		}
	}
}

// NewRouter wires all routes to store. A nil logger discards request logs.
func NewRouter(store Store, logger *slog.Logger, options ...Option) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &handler{store: store, logger: logger, streamBuffer: defaultStreamBuffer}
	for _, option := range options {
		option(h)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1/events")
	v1.POST("/query", h.query)
	v1.POST("", h.append)
	v1.GET("/stream", h.stream)

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.InfoContext(
			c.Request.Context(),
			logMsgRequestHandled,
			logAttrMethod, c.Request.Method,
			logAttrPath, c.FullPath(),
			logAttrStatus, c.Writer.Status(),
			logAttrDurationMS, float64(time.Since(start).Microseconds())/1000.0,
		)
	}
}

func (h *handler) query(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, errors.Join(wire.ErrInvalidRequest, err))
		return
	}

	req, err := wire.DecodeQueryRequest(raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	criteria, err := req.Criteria()
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.store.Query(c.Request.Context(), criteria)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, wire.FromQueryResult(result))
}

func (h *handler) append(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, errors.Join(wire.ErrInvalidRequest, err))
		return
	}

	req, err := wire.DecodeAppendRequest(raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	events, err := req.BuildEvents()
	if err != nil {
		h.fail(c, err)
		return
	}

	scope, err := req.AppendScope()
	if err != nil {
		h.fail(c, err)
		return
	}

	if err = h.store.Append(c.Request.Context(), scope, events...); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, wire.AppendResponse{Appended: len(events)})
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), logMsgRequestFailed, logAttrPath, c.FullPath(), logAttrError, err.Error())
	}

	c.AbortWithStatusJSON(status, wire.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return http.StatusConflict

	case errors.Is(err, wire.ErrInvalidRequest),
		errors.Is(err, eventstore.ErrMissingExpectedMaxSequenceNumber),
		errors.Is(err, eventstore.ErrEmptyEventType),
		errors.Is(err, eventstore.ErrInvalidPayloadJSON),
		errors.Is(err, eventstore.ErrUnsupportedPayloadValue):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
