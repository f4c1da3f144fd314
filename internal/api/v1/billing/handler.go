package billing

import (
	"errors"
	"io"
	"net/http"
	"time"

	"rackgen-backend/config"
	"rackgen-backend/internal/billing"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/services"
	"rackgen-backend/internal/utils"
	"rackgen-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Webhook receives billing provider events. The signature is verified
// against the raw body before anything is parsed; unsupported event
// types are acknowledged with 200 so the provider stops retrying them.
func Webhook(c *gin.Context) {
	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Configuration error"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Unable to read request body"))
		return
	}

	header := c.GetHeader("Webhook-Signature")
	if err := billing.VerifySignature(cfg.WebhookSecret, header, body, time.Now(), cfg.WebhookTolerance); err != nil {
		logger.Log.Warn("webhook signature verification failed",
			zap.String("remote_addr", c.ClientIP()),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid signature"))
		return
	}

	event, err := billing.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed event payload"))
		return
	}

	engine := entitlement.NewEngine(entitlement.RulesFromConfig(cfg), nil)
	adapter := billing.NewAdapter(engine, cfg)

	if err := adapter.Handle(event); err != nil {
		switch {
		case errors.Is(err, billing.ErrUnsupportedEvent):
			logger.Log.Warn("unsupported webhook event type",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
			c.JSON(http.StatusOK, utils.NewSuccessResponse("Event ignored", gin.H{"received": true}))
		case errors.Is(err, billing.ErrMissingAccountID), errors.Is(err, billing.ErrUnknownPrice):
			logger.Log.Error("webhook event rejected",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, err.Error()))
		case errors.Is(err, services.ErrAccountNotFound):
			// The provider knows an account we do not. Surface it so
			// the provider retries once the account sync lands.
			logger.Log.Error("webhook references unknown account",
				zap.String("event_id", event.ID))
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Account not found"))
		default:
			logger.Log.Error("webhook processing failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Event processing failed"))
		}
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Event processed", gin.H{"received": true}))
}
