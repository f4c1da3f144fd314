package services

import (
	"errors"

	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"
	"rackgen-backend/pkg/logger"

	"go.uber.org/zap"
)

// SyncAccount resolves an authenticated identity to a ledger account,
// creating one on first sight. Returns the account and whether it was
// created by this call.
//
// The create path is re-entrant: a claim row recorded by an earlier
// attempt that died before the account insert is honored, not treated
// as fraud, as long as it belongs to the same account id.
func SyncAccount(engine *entitlement.Engine, accountID, email string) (*models.Account, bool, error) {
	existing, err := ReadAccount(accountID)
	if err == nil {
		if existing.Deleted() {
			return &existing, false, entitlement.ErrAccountDeleted
		}
		return &existing, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	emailHash := entitlement.HashEmail(email)
	claimStatus, err := LookupClaim(emailHash, accountID)
	if err != nil {
		return nil, false, err
	}

	effects, err := engine.Decide(nil, entitlement.FirstSeen{
		AccountID: accountID,
		Email:     email,
		Claim:     claimStatus,
	})
	if err != nil {
		return nil, false, err
	}

	if effects.RecordClaim {
		result, err := ClaimBonus(emailHash, accountID, engine.Now())
		if err != nil {
			return nil, false, err
		}
		switch result {
		case AlreadyClaimedByOther:
			// Lost the insert race to a concurrent signup with the
			// same email under a different identity.
			return nil, false, entitlement.ErrFraudSuspected
		case AlreadyClaimedBySelf:
			// Benign replay of our own claim.
		}
	}

	account := &models.Account{
		ID:    accountID,
		Email: email,
	}
	if err := CreateAccount(account, effects.GrantCredits, effects.BonusAwarded); err != nil {
		// A concurrent sync for the same identity may have won the
		// insert; the unique primary key makes that safe to re-read.
		if recovered, readErr := ReadAccount(accountID); readErr == nil {
			return &recovered, false, nil
		}
		return nil, false, err
	}

	logger.Log.Info("account created",
		zap.String("account_id", accountID),
		zap.Int("opening_balance", effects.GrantCredits),
		zap.Bool("launch_bonus", effects.BonusAwarded > 0))

	return account, true, nil
}

// DeleteAccount soft-deletes: the row is retained for the cooldown
// window so balance and plan survive a reactivation.
func DeleteAccount(engine *entitlement.Engine, accountID string) error {
	return SoftDeleteAccount(accountID, engine.Now())
}

// ReactivateAccount clears the soft-delete marker once the cooldown
// has elapsed. Balance and plan come back exactly as they were, and no
// new bonus is possible because the claim row was never removed.
func ReactivateAccount(engine *entitlement.Engine, accountID string) (*models.Account, error) {
	account, err := ReadAccount(accountID)
	if err != nil {
		return nil, err
	}

	effects, err := engine.Decide(&account, entitlement.Reactivate{})
	if err != nil {
		return nil, err
	}

	if effects.ClearDeletedAt {
		if err := ClearDeletedAt(accountID); err != nil {
			return nil, err
		}
	}

	reactivated, err := ReadAccount(accountID)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("account reactivated",
		zap.String("account_id", accountID),
		zap.Int("balance", reactivated.Balance))

	return &reactivated, nil
}
