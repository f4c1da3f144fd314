package account

import (
	"errors"
	"net/http"

	"rackgen-backend/config"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/middleware"
	"rackgen-backend/internal/models"
	"rackgen-backend/internal/services"
	"rackgen-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

func newEngine() (*entitlement.Engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return entitlement.NewEngine(entitlement.RulesFromConfig(cfg), nil), nil
}

func toResponse(a *models.Account, created bool) AccountResponse {
	return AccountResponse{
		ID:                  a.ID,
		Email:               a.Email,
		Balance:             a.Balance,
		Plan:                string(a.Plan),
		SubscriptionStatus:  string(a.SubscriptionStatus),
		SubscriptionRef:     a.SubscriptionRef,
		PeriodEnd:           a.PeriodEnd,
		BonusCreditsAwarded: a.BonusCreditsAwarded,
		DeletedAt:           a.DeletedAt,
		CreatedAt:           a.CreatedAt,
		Created:             created,
	}
}

// Sync resolves the authenticated identity to a ledger account,
// creating it on first sight.
func Sync(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}
	if identity.Email == "" {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Identity has no email"))
		return
	}

	engine, err := newEngine()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Configuration error"))
		return
	}

	acct, created, err := services.SyncAccount(engine, identity.AccountID, identity.Email)
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrFraudSuspected):
			c.JSON(http.StatusForbidden, utils.NewErrorResponse(http.StatusForbidden, err.Error()))
		case errors.Is(err, entitlement.ErrAccountDeleted):
			c.JSON(http.StatusGone, utils.NewResponse(http.StatusGone, "Account is deactivated", toResponse(acct, false)))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to sync account"))
		}
		return
	}

	message := "Account retrieved"
	if created {
		message = "Account created"
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse(message, toResponse(acct, created)))
}

// Get returns the current account state, served from the display cache
// when warm.
func Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	acct, err := services.FindAccountByID(identity.AccountID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Account not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load account"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Account retrieved", toResponse(&acct, false)))
}

// Delete soft-deletes the account. Balance and plan are retained for
// the cooldown window.
func Delete(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	engine, err := newEngine()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Configuration error"))
		return
	}

	if err := services.DeleteAccount(engine, identity.AccountID); err != nil {
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Account not found"))
		case errors.Is(err, entitlement.ErrAccountDeleted):
			c.JSON(http.StatusConflict, utils.NewErrorResponse(http.StatusConflict, "Account is already deactivated"))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to delete account"))
		}
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Account deactivated", nil))
}

// Reactivate clears the soft-delete marker once the cooldown elapsed.
func Reactivate(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	engine, err := newEngine()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Configuration error"))
		return
	}

	acct, err := services.ReactivateAccount(engine, identity.AccountID)
	if err != nil {
		var tooSoon *entitlement.ReactivationTooSoonError
		switch {
		case errors.As(err, &tooSoon):
			c.JSON(http.StatusConflict, utils.NewResponse(http.StatusConflict, tooSoon.Error(), ReactivationInfo{
				EligibleAt:    tooSoon.EligibleAt,
				DaysRemaining: tooSoon.DaysRemaining,
			}))
		case errors.Is(err, services.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Account not found"))
		case errors.Is(err, entitlement.ErrNotDeleted):
			c.JSON(http.StatusConflict, utils.NewErrorResponse(http.StatusConflict, "Account is not deactivated"))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to reactivate account"))
		}
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Account reactivated", toResponse(acct, false)))
}
