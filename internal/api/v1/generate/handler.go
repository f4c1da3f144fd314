package generate

import (
	"errors"
	"net/http"
	"strconv"

	"rackgen-backend/config"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/middleware"
	"rackgen-backend/internal/rackgen"
	"rackgen-backend/internal/services"
	"rackgen-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Generate runs one generation request: balance check, engine call,
// debit, record.
func Generate(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "prompt is required"))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Configuration error"))
		return
	}
	engine := entitlement.NewEngine(entitlement.RulesFromConfig(cfg), nil)
	client := rackgen.NewClient(cfg.EngineBaseURL, cfg.EngineTimeout)

	result, _, err := services.GenerateRack(c.Request.Context(), engine, client, identity.AccountID, req.Prompt, req.RequestID)
	if err != nil {
		var engineErr *rackgen.EngineError
		switch {
		case errors.Is(err, entitlement.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, utils.NewErrorResponse(http.StatusPaymentRequired, "Insufficient credits, please top up"))
		case errors.Is(err, entitlement.ErrAccountDeleted):
			c.JSON(http.StatusGone, utils.NewErrorResponse(http.StatusGone, "Account is deactivated"))
		case errors.Is(err, services.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Account not found"))
		case errors.As(err, &engineErr):
			c.JSON(http.StatusBadGateway, utils.NewErrorResponse(http.StatusBadGateway, engineErr.Error()))
		case errors.Is(err, services.ErrLedgerUnavailable):
			c.JSON(http.StatusServiceUnavailable, utils.NewErrorResponse(http.StatusServiceUnavailable, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Generation failed"))
		}
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Generation completed", GenerateResponse{
		Result:      result,
		DownloadURL: client.DownloadURL(result.Filename),
		RequestID:   req.RequestID,
	}))
}

// List returns the account's generation history, newest first.
func List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, total, err := services.ListGenerations(identity.AccountID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list generations"))
		return
	}

	items := make([]GenerationItem, 0, len(records))
	for _, r := range records {
		items = append(items, GenerationItem{
			ID:              r.ID,
			Prompt:          r.Prompt,
			ResultReference: r.ResultReference,
			CreativeName:    r.CreativeName,
			CreatedAt:       r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Generations retrieved", ListResponse{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}
