package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rackgen-backend/config"
	"rackgen-backend/internal/database"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyApplied means the provider event id was seen before.
	// Not a failure: webhook replay is expected under at-least-once
	// delivery.
	ErrAlreadyApplied = errors.New("transaction already applied")
)

// ClaimResult is the outcome of the atomic check-and-insert on the
// bonus claim registry.
type ClaimResult int

const (
	Claimed ClaimResult = iota
	AlreadyClaimedBySelf
	AlreadyClaimedByOther
)

func ledgerSecret() string {
	cfg, _ := config.LoadConfig()
	if cfg != nil && cfg.JWTSecret != "" {
		return cfg.JWTSecret
	}
	return "default-secret"
}

// FindAccountByID reads an account, serving from the redis cache when
// possible. Cached reads are for display only; every mutation path
// goes to the database.
func FindAccountByID(accountID string) (models.Account, error) {
	cacheKey := fmt.Sprintf("account:%s", accountID)
	if database.RedisClient != nil {
		val, err := database.RedisClient.Get(database.Ctx, cacheKey).Result()
		if err == nil {
			var account models.Account
			if err := json.Unmarshal([]byte(val), &account); err == nil {
				return account, nil
			}
		}
	}

	var account models.Account
	if err := database.DB.First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account, ErrAccountNotFound
		}
		return account, err
	}

	if database.RedisClient != nil {
		if data, err := json.Marshal(account); err == nil {
			database.RedisClient.Set(database.Ctx, cacheKey, data, time.Hour)
		}
	}

	return account, nil
}

// ReadAccount reads an account fresh from the database, bypassing the
// cache. Entitlement decisions are always made over this snapshot.
func ReadAccount(accountID string) (models.Account, error) {
	var account models.Account
	if err := database.DB.First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account, ErrAccountNotFound
		}
		return account, err
	}
	return account, nil
}

func invalidateAccountCache(accountID string) {
	if database.RedisClient != nil {
		database.RedisClient.Del(database.Ctx, fmt.Sprintf("account:%s", accountID))
	}
}

// LookupClaim reports how the registry stands for an email hash from
// the point of view of one account.
func LookupClaim(emailHash, accountID string) (entitlement.ClaimStatus, error) {
	var claim models.BonusClaim
	err := database.DB.First(&claim, "email_hash = ?", emailHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entitlement.ClaimNone, nil
	}
	if err != nil {
		return entitlement.ClaimNone, err
	}
	if claim.AccountID == accountID {
		return entitlement.ClaimBySelf, nil
	}
	return entitlement.ClaimByOther, nil
}

// ClaimBonus is a single atomic check-and-insert against the unique
// email_hash index. Exactly one of any number of concurrent claimants
// wins; the rest observe who got there first.
func ClaimBonus(emailHash, accountID string, now time.Time) (ClaimResult, error) {
	claim := models.BonusClaim{
		EmailHash: emailHash,
		AccountID: accountID,
		ClaimedAt: now,
	}

	result := database.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email_hash"}},
		DoNothing: true,
	}).Create(&claim)
	if result.Error != nil {
		return AlreadyClaimedByOther, result.Error
	}
	if result.RowsAffected == 1 {
		return Claimed, nil
	}

	var existing models.BonusClaim
	if err := database.DB.First(&existing, "email_hash = ?", emailHash).Error; err != nil {
		return AlreadyClaimedByOther, err
	}
	if existing.AccountID == accountID {
		return AlreadyClaimedBySelf, nil
	}
	return AlreadyClaimedByOther, nil
}

// CreateAccount inserts the account row with its opening balance and
// records the opening grant in the transaction ledger.
func CreateAccount(account *models.Account, grant int, bonusAwarded int) error {
	account.Balance = grant
	account.BonusCreditsAwarded = bonusAwarded
	account.Plan = models.PlanFree
	account.SubscriptionStatus = models.SubscriptionNone

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}

		ledgerTx := models.Transaction{
			AccountID:     account.ID,
			CreditsDelta:  grant,
			BalanceBefore: 0,
			BalanceAfter:  grant,
			Type:          models.TransactionTypeSignupBonus,
			Status:        models.TransactionStatusSucceeded,
			Reason:        fmt.Sprintf("Signup grant: %d credit(s)", grant),
			CreatedAt:     time.Now(),
		}
		ledgerTx.Hash = ledgerTx.GenerateHash(ledgerSecret())
		return tx.Create(&ledgerTx).Error
	})
	if err != nil {
		return err
	}

	invalidateAccountCache(account.ID)
	return nil
}

// DebitIfSufficient atomically decrements the balance if and only if
// it covers the amount. The compare-and-set lives in the WHERE clause,
// so concurrent debits can never drive the balance negative. This is
// the single most important statement in the service.
func DebitIfSufficient(accountID string, amount int, reason string) (int, error) {
	var newBalance int

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Account{}).
			Where("id = ? AND deleted_at IS NULL AND balance >= ?", accountID, amount).
			Updates(map[string]interface{}{
				"balance": gorm.Expr("balance - ?", amount),
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var account models.Account
			if err := tx.First(&account, "id = ?", accountID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
			if account.Deleted() {
				return entitlement.ErrAccountDeleted
			}
			return entitlement.ErrInsufficientBalance
		}

		var account models.Account
		if err := tx.First(&account, "id = ?", accountID).Error; err != nil {
			return err
		}
		newBalance = account.Balance

		ledgerTx := models.Transaction{
			AccountID:     accountID,
			CreditsDelta:  -amount,
			BalanceBefore: newBalance + amount,
			BalanceAfter:  newBalance,
			Type:          models.TransactionTypeDebit,
			Status:        models.TransactionStatusSucceeded,
			Reason:        reason,
			CreatedAt:     time.Now(),
		}
		ledgerTx.Hash = ledgerTx.GenerateHash(ledgerSecret())
		return tx.Create(&ledgerTx).Error
	})
	if err != nil {
		return 0, err
	}

	invalidateAccountCache(accountID)
	return newBalance, nil
}

// ApplyTransactionIfNew applies a billing effect exactly once per
// provider event id. The unique index on provider_event_id is the
// idempotency guarantee: a replayed event inserts zero rows and the
// balance mutation is skipped.
func ApplyTransactionIfNew(providerEventID, accountID string, effects entitlement.Effects, reason string) error {
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account, "id = ?", accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		before := account.Balance
		after := before
		delta := 0
		if effects.SetBalance != nil {
			after = *effects.SetBalance
			delta = after - before
		} else if effects.AddBalance != 0 {
			delta = effects.AddBalance
			after = before + delta
		}

		eventID := providerEventID
		ledgerTx := models.Transaction{
			AccountID:       accountID,
			ProviderEventID: &eventID,
			CreditsDelta:    delta,
			BalanceBefore:   before,
			BalanceAfter:    after,
			Type:            effects.TransactionType,
			Status:          models.TransactionStatusSucceeded,
			Reason:          reason,
			CreatedAt:       time.Now(),
		}
		ledgerTx.Hash = ledgerTx.GenerateHash(ledgerSecret())

		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).Create(&ledgerTx)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			return ErrAlreadyApplied
		}

		updates := map[string]interface{}{
			"version": gorm.Expr("version + 1"),
		}
		if effects.SetBalance != nil {
			updates["balance"] = *effects.SetBalance
		} else if effects.AddBalance != 0 {
			updates["balance"] = gorm.Expr("balance + ?", effects.AddBalance)
		}
		if effects.SetPlan != nil {
			updates["plan"] = *effects.SetPlan
		}
		if effects.SetStatus != nil {
			updates["subscription_status"] = *effects.SetStatus
		}
		if effects.SetSubscriptionRef != nil {
			updates["subscription_ref"] = *effects.SetSubscriptionRef
		}
		if effects.SetPeriodEnd != nil {
			updates["period_end"] = *effects.SetPeriodEnd
		}

		return tx.Model(&models.Account{}).Where("id = ?", accountID).Updates(updates).Error
	})
	if err != nil {
		return err
	}

	invalidateAccountCache(accountID)
	return nil
}

// UpdateSubscriptionState applies status-only effects (cancel, past
// due). These carry no credits delta, so no transaction row is
// written; the update is naturally idempotent.
func UpdateSubscriptionState(accountID string, effects entitlement.Effects) error {
	updates := map[string]interface{}{}
	if effects.SetStatus != nil {
		updates["subscription_status"] = *effects.SetStatus
	}
	if effects.SetPeriodEnd != nil {
		updates["period_end"] = *effects.SetPeriodEnd
	}
	if len(updates) == 0 {
		return nil
	}

	result := database.DB.Model(&models.Account{}).Where("id = ?", accountID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	invalidateAccountCache(accountID)
	return nil
}

// SoftDeleteAccount marks the account deleted. Balance, plan and the
// bonus claim row are all retained for a possible reactivation.
func SoftDeleteAccount(accountID string, now time.Time) error {
	result := database.DB.Model(&models.Account{}).
		Where("id = ? AND deleted_at IS NULL", accountID).
		Updates(map[string]interface{}{
			"deleted_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := ReadAccount(accountID); err != nil {
			return err
		}
		return entitlement.ErrAccountDeleted
	}

	invalidateAccountCache(accountID)
	return nil
}

// ClearDeletedAt reactivates a soft-deleted account. The guard on
// deleted_at keeps a concurrent double-reactivation harmless.
func ClearDeletedAt(accountID string) error {
	result := database.DB.Model(&models.Account{}).
		Where("id = ? AND deleted_at IS NOT NULL", accountID).
		Updates(map[string]interface{}{
			"deleted_at": nil,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := ReadAccount(accountID); err != nil {
			return err
		}
		return entitlement.ErrNotDeleted
	}

	invalidateAccountCache(accountID)
	return nil
}
