package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/wire"
)

const (
	sseEventSubscribed = "subscribed"
	sseEventRecords    = "records"
	sseEventLagged     = "lagged"
)

// ErrStreamClientLagging is returned to the notifier when a stream client can not keep up.
var ErrStreamClientLagging = errors.New("stream client is lagging behind")

// stream sends one "records" event per notification until the client goes away.
// A client that lags more than streamBuffer notifications behind gets a "lagged" event and is disconnected.
func (h *handler) stream(c *gin.Context) {
	ctx := c.Request.Context()

	batches := make(chan eventstore.EventRecords, h.streamBuffer)
	lagged := make(chan struct{})
	var lagOnce sync.Once

	sub, err := h.store.Subscribe(func(_ context.Context, records eventstore.EventRecords) error {
		select {
		case batches <- records:
			return nil
		default:
			lagOnce.Do(func() { close(lagged) })
			return ErrStreamClientLagging
		}
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	c.Status(http.StatusOK)
	c.Header("Connection", "keep-alive")
	c.SSEvent(sseEventSubscribed, gin.H{"subscription": sub.ID()})
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return

		case <-lagged:
			c.SSEvent(sseEventLagged, wire.ErrorResponse{Error: ErrStreamClientLagging.Error()})
			c.Writer.Flush()
			return

		case records := <-batches:
			c.SSEvent(sseEventRecords, wire.FromRecords(records))
			c.Writer.Flush()
		}
	}
}
