package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/domain/event"
)

const defaultListLimit = 50

// GetEvent returns one event's processing state by provider event ID.
func (r *Router) GetEvent(c *gin.Context) {
	ev, err := r.ingestSvc.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		r.logger.Error("event_lookup_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, ev)
}

// ListEvents lists events by status, oldest first. Defaults to failed so
// the bare endpoint answers the operator's usual question.
func (r *Router) ListEvents(c *gin.Context) {
	status := event.Status(c.DefaultQuery("status", string(event.StatusFailed)))
	switch status {
	case event.StatusReceived, event.StatusQueued, event.StatusProcessing,
		event.StatusProcessed, event.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := r.events.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		r.logger.Error("event_list_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"count":  len(events),
		"events": events,
	})
}

// RequeueEvent redrives one failed event. The attempt budget resets; the
// handlers' idempotency makes a second full run safe.
func (r *Router) RequeueEvent(c *gin.Context) {
	id := c.Param("id")

	requeued, err := r.events.Requeue(c.Request.Context(), id)
	if err != nil {
		r.logger.Error("event_requeue_failed", zap.Error(err), zap.String("event_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !requeued {
		// Either absent or not in failed; disambiguate for the operator.
		if _, err := r.events.GetByID(c.Request.Context(), id); errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "event is not in failed state"})
		return
	}

	r.logger.Info("event_requeued", zap.String("event_id", id))
	c.JSON(http.StatusOK, gin.H{"event_id": id, "status": event.StatusQueued})
}
