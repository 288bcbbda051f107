package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/ingest"
)

const signatureHeader = "X-Payments-Signature"

// ReceiveWebhook is the provider-facing delivery endpoint. The raw body is
// read before any parsing so signature verification covers the exact bytes
// on the wire. Status codes steer the provider's retry machinery: 2xx stops
// redelivery (including for duplicates), 4xx means the delivery itself is
// unacceptable, 503 asks for a retry later.
func (r *Router) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, r.cfg.WebhookMaxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if int64(len(body)) > r.cfg.WebhookMaxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	res, err := r.ingestSvc.Ingest(c.Request.Context(), body, c.GetHeader(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrBadSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, ingest.ErrBadTimestamp):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired timestamp"})
		case errors.Is(err, ingest.ErrBadPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		case errors.Is(err, ingest.ErrStorage):
			r.logger.Error("webhook_store_unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		default:
			r.logger.Error("webhook_ingest_failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":  res.EventID,
		"duplicate": res.Outcome == ingest.OutcomeDuplicate,
	})
}
