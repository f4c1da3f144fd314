package transaction

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"rackgen-backend/internal/models"
	"rackgen-backend/internal/services"
	"rackgen-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func parseFilter(c *gin.Context) services.TransactionFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	filter := services.TransactionFilter{
		Page:  page,
		Limit: limit,
	}

	if accountID, exists := c.GetQuery("account_id"); exists {
		filter.AccountID = &accountID
	}
	if txType, exists := c.GetQuery("type"); exists {
		t := models.TransactionType(txType)
		filter.Type = &t
	}
	if startTimeStr, exists := c.GetQuery("start_time"); exists {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filter.StartTime = &startTime
		}
	}
	if endTimeStr, exists := c.GetQuery("end_time"); exists {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filter.EndTime = &endTime
		}
	}

	return filter
}

// ListTransactions returns a filtered, paginated view of the ledger.
func (h *Handler) ListTransactions(c *gin.Context) {
	filter := parseFilter(c)

	transactions, total, err := services.FindTransactions(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, err.Error()))
		return
	}

	var items []TransactionListItem
	for _, t := range transactions {
		eventID := ""
		if t.ProviderEventID != nil {
			eventID = *t.ProviderEventID
		}
		items = append(items, TransactionListItem{
			ID:              t.ID,
			AccountID:       t.AccountID,
			Type:            string(t.Type),
			CreditsDelta:    t.CreditsDelta,
			BalanceBefore:   t.BalanceBefore,
			BalanceAfter:    t.BalanceAfter,
			ProviderEventID: eventID,
			Reason:          t.Reason,
			Status:          string(t.Status),
			CreatedAt:       t.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("success", TransactionListResponse{
		Transactions: items,
		Total:        total,
		Page:         filter.Page,
		Limit:        filter.Limit,
	}))
}

// ExportTransactions streams the filtered ledger as a CSV download.
// Pagination is ignored for exports; the filter window bounds the size.
func (h *Handler) ExportTransactions(c *gin.Context) {
	filter := parseFilter(c)
	filter.Page = 1
	filter.Limit = 100000

	transactions, _, err := services.FindTransactions(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, err.Error()))
		return
	}

	data, err := services.GenerateTransactionCSV(transactions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, err.Error()))
		return
	}

	filename := fmt.Sprintf("transactions_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", data)
}
