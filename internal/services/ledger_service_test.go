package services

import (
	"errors"
	"testing"
	"time"

	"rackgen-backend/internal/database"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.Migrator().DropTable(&models.Account{}, &models.BonusClaim{}, &models.GenerationRecord{}, &models.Transaction{})
	db.AutoMigrate(&models.Account{}, &models.BonusClaim{}, &models.GenerationRecord{}, &models.Transaction{})

	database.DB = db
}

func setupLedgerTestRedis() *miniredis.Miniredis {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}

	database.RedisClient = redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr
}

func seedAccount(id string, balance int) models.Account {
	account := models.Account{
		ID:                 id,
		Email:              id + "@example.com",
		Balance:            balance,
		Plan:               models.PlanFree,
		SubscriptionStatus: models.SubscriptionNone,
		Version:            1,
	}
	database.DB.Create(&account)
	return account
}

func TestDebitIfSufficient(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("acct-1", 2)

	// Two debits fit, the third must be rejected at zero.
	balance, err := DebitIfSufficient("acct-1", 1, "gen 1")
	assert.NoError(t, err)
	assert.Equal(t, 1, balance)

	balance, err = DebitIfSufficient("acct-1", 1, "gen 2")
	assert.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = DebitIfSufficient("acct-1", 1, "gen 3")
	assert.ErrorIs(t, err, entitlement.ErrInsufficientBalance)

	var account models.Account
	database.DB.First(&account, "id = ?", "acct-1")
	assert.Equal(t, 0, account.Balance)
	assert.Equal(t, 3, account.Version)

	// Every successful debit left a ledger row with a consistent
	// before/after pair.
	var transactions []models.Transaction
	database.DB.Where("account_id = ?", "acct-1").Order("id asc").Find(&transactions)
	assert.Len(t, transactions, 2)
	assert.Equal(t, 2, transactions[0].BalanceBefore)
	assert.Equal(t, 1, transactions[0].BalanceAfter)
	assert.Equal(t, -1, transactions[0].CreditsDelta)
	assert.Equal(t, 1, transactions[1].BalanceBefore)
	assert.Equal(t, 0, transactions[1].BalanceAfter)
}

func TestDebitIfSufficient_ExhaustedSequence(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("acct-drain", 3)

	succeeded := 0
	rejected := 0
	for i := 0; i < 5; i++ {
		_, err := DebitIfSufficient("acct-drain", 1, "drain")
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, entitlement.ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, rejected)

	var account models.Account
	database.DB.First(&account, "id = ?", "acct-drain")
	assert.Equal(t, 0, account.Balance)
	assert.GreaterOrEqual(t, account.Balance, 0)
}

func TestDebitIfSufficient_DeletedAndMissing(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	now := time.Now()
	account := seedAccount("acct-gone", 10)
	database.DB.Model(&account).Update("deleted_at", now)

	_, err := DebitIfSufficient("acct-gone", 1, "gen")
	assert.ErrorIs(t, err, entitlement.ErrAccountDeleted)

	_, err = DebitIfSufficient("no-such-account", 1, "gen")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// The deleted account's balance was untouched.
	var reread models.Account
	database.DB.First(&reread, "id = ?", "acct-gone")
	assert.Equal(t, 10, reread.Balance)
}

func TestClaimBonus_Exclusivity(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	now := time.Now()
	hash := entitlement.HashEmail("shared@example.com")

	result, err := ClaimBonus(hash, "acct-a", now)
	assert.NoError(t, err)
	assert.Equal(t, Claimed, result)

	// Replaying our own claim is benign.
	result, err = ClaimBonus(hash, "acct-a", now)
	assert.NoError(t, err)
	assert.Equal(t, AlreadyClaimedBySelf, result)

	// A different account never gets the same email's bonus.
	result, err = ClaimBonus(hash, "acct-b", now)
	assert.NoError(t, err)
	assert.Equal(t, AlreadyClaimedByOther, result)

	var count int64
	database.DB.Model(&models.BonusClaim{}).Where("email_hash = ?", hash).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestApplyTransactionIfNew_Idempotent(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("acct-topup", 5)

	effects := entitlement.Effects{
		AddBalance:      20,
		TransactionType: models.TransactionTypeOneTime,
	}

	err := ApplyTransactionIfNew("evt_100", "acct-topup", effects, "Starter pack")
	assert.NoError(t, err)

	var account models.Account
	database.DB.First(&account, "id = ?", "acct-topup")
	assert.Equal(t, 25, account.Balance)

	// Same provider event id replayed: no second credit, no second row.
	err = ApplyTransactionIfNew("evt_100", "acct-topup", effects, "Starter pack")
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	database.DB.First(&account, "id = ?", "acct-topup")
	assert.Equal(t, 25, account.Balance)

	var count int64
	database.DB.Model(&models.Transaction{}).Where("provider_event_id = ?", "evt_100").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestApplyTransactionIfNew_FlatSet(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("acct-sub", 7)

	balance := 80
	plan := models.PlanPro
	status := models.SubscriptionActive
	ref := "sub_123"
	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	effects := entitlement.Effects{
		SetBalance:         &balance,
		SetPlan:            &plan,
		SetStatus:          &status,
		SetSubscriptionRef: &ref,
		SetPeriodEnd:       &periodEnd,
		TransactionType:    models.TransactionTypeSubscription,
	}

	err := ApplyTransactionIfNew("evt_sub_1", "acct-sub", effects, "Pro activated")
	assert.NoError(t, err)

	var account models.Account
	database.DB.First(&account, "id = ?", "acct-sub")
	// Flat set: the remaining free credits are overwritten, not added.
	assert.Equal(t, 80, account.Balance)
	assert.Equal(t, models.PlanPro, account.Plan)
	assert.Equal(t, models.SubscriptionActive, account.SubscriptionStatus)
	assert.Equal(t, "sub_123", account.SubscriptionRef)

	var trans models.Transaction
	database.DB.Last(&trans)
	assert.Equal(t, 7, trans.BalanceBefore)
	assert.Equal(t, 80, trans.BalanceAfter)
	assert.Equal(t, 73, trans.CreditsDelta)
}

func TestSoftDeleteAndReactivateGuards(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("acct-del", 4)
	now := time.Now()

	assert.NoError(t, SoftDeleteAccount("acct-del", now))
	assert.ErrorIs(t, SoftDeleteAccount("acct-del", now), entitlement.ErrAccountDeleted)
	assert.ErrorIs(t, SoftDeleteAccount("no-such", now), ErrAccountNotFound)

	assert.NoError(t, ClearDeletedAt("acct-del"))
	assert.ErrorIs(t, ClearDeletedAt("acct-del"), entitlement.ErrNotDeleted)

	var account models.Account
	database.DB.First(&account, "id = ?", "acct-del")
	assert.Nil(t, account.DeletedAt)
	assert.Equal(t, 4, account.Balance)
}

func TestFindAccountByID_Cache(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("acct-cache", 9)

	account, err := FindAccountByID("acct-cache")
	assert.NoError(t, err)
	assert.Equal(t, 9, account.Balance)

	// Second read is served from redis.
	assert.True(t, mr.Exists("account:acct-cache"))
	account, err = FindAccountByID("acct-cache")
	assert.NoError(t, err)
	assert.Equal(t, 9, account.Balance)

	// Any mutation drops the cached copy.
	_, err = DebitIfSufficient("acct-cache", 1, "gen")
	assert.NoError(t, err)
	assert.False(t, mr.Exists("account:acct-cache"))

	account, err = FindAccountByID("acct-cache")
	assert.NoError(t, err)
	assert.Equal(t, 8, account.Balance)

	_, err = FindAccountByID("missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
