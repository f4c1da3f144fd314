package transaction

import "time"

// TransactionListItem is one ledger row in the admin listing.
type TransactionListItem struct {
	ID              uint      `json:"id"`
	AccountID       string    `json:"account_id"`
	Type            string    `json:"type"`
	CreditsDelta    int       `json:"credits_delta"`
	BalanceBefore   int       `json:"balance_before"`
	BalanceAfter    int       `json:"balance_after"`
	ProviderEventID string    `json:"provider_event_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// TransactionListResponse is the paginated admin listing.
type TransactionListResponse struct {
	Transactions []TransactionListItem `json:"transactions"`
	Total        int64                 `json:"total"`
	Page         int                   `json:"page"`
	Limit        int                   `json:"limit"`
}
