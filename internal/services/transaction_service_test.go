package services

import (
	"strings"
	"testing"
	"time"

	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFindTransactionsAndExport(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("tx-user", 10)
	seedAccount("tx-other", 10)

	_, err := DebitIfSufficient("tx-user", 1, "gen one")
	assert.NoError(t, err)
	_, err = DebitIfSufficient("tx-user", 1, "gen two")
	assert.NoError(t, err)
	_, err = DebitIfSufficient("tx-other", 1, "gen other")
	assert.NoError(t, err)

	err = ApplyTransactionIfNew("evt_csv_1", "tx-user", entitlement.Effects{
		AddBalance:      20,
		TransactionType: models.TransactionTypeOneTime,
	}, "Starter pack")
	assert.NoError(t, err)

	accountID := "tx-user"
	transactions, total, err := FindTransactions(TransactionFilter{
		AccountID: &accountID,
		Page:      1,
		Limit:     10,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, transactions, 3)

	debitType := models.TransactionTypeDebit
	_, total, err = FindTransactions(TransactionFilter{
		AccountID: &accountID,
		Type:      &debitType,
		Page:      1,
		Limit:     10,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)

	future := time.Now().Add(time.Hour)
	_, total, err = FindTransactions(TransactionFilter{
		StartTime: &future,
		Page:      1,
		Limit:     10,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), total)

	data, err := GenerateTransactionCSV(transactions)
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4) // header + 3 rows
	assert.Contains(t, lines[0], "Credits Delta")
	assert.Contains(t, string(data), "evt_csv_1")
	assert.Contains(t, string(data), "Starter pack")
}
