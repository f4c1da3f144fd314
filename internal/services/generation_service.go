package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rackgen-backend/internal/database"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"
	"rackgen-backend/internal/rackgen"
	"rackgen-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrLedgerUnavailable means the store kept failing after bounded
// retries. No partial debit is ever left behind when it is returned.
var ErrLedgerUnavailable = errors.New("ledger temporarily unavailable, please retry")

// GenerationClient is the boundary to the external engine. Only
// success or failure and the artifact reference matter here.
type GenerationClient interface {
	Generate(ctx context.Context, prompt string) (*rackgen.Result, error)
}

const (
	debitRetryAttempts = 3
	debitRetryDelay    = 100 * time.Millisecond
	requestMarkerTTL   = 24 * time.Hour
)

func requestMarkerKey(requestID string) string {
	return fmt.Sprintf("generate:done:%s", requestID)
}

// GenerateRack runs one generation request end to end: balance check,
// engine call, debit, record. Exactly one debit happens per successful
// generation; a replayed request id returns the previous artifact
// without touching the engine or the ledger again.
func GenerateRack(ctx context.Context, engine *entitlement.Engine, client GenerationClient, accountID, prompt, requestID string) (*rackgen.Result, *models.GenerationRecord, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Replay of a request that already reached the debited state must
	// not re-invoke the engine or re-debit.
	if result, record, ok := replayedResult(requestID); ok {
		return result, record, nil
	}

	// Fail fast before the external call.
	account, err := ReadAccount(accountID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := engine.Decide(&account, entitlement.Debit{Amount: 1}); err != nil {
		return nil, nil, err
	}

	// The only long-latency step. The context deadline is the
	// caller-visible timeout; expiry counts as engine failure and
	// leaves the ledger untouched.
	result, err := client.Generate(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	newBalance, err := debitWithRetry(accountID, fmt.Sprintf("Generation %s", requestID))
	if errors.Is(err, entitlement.ErrInsufficientBalance) {
		// Concurrent requests exhausted the balance between the
		// pre-check and the debit. The engine already did the work, so
		// the caller keeps the artifact; the mismatch is a reporting
		// event, not a rollback.
		logger.Log.Warn("generation succeeded but balance was concurrently exhausted",
			zap.String("account_id", accountID),
			zap.String("request_id", requestID),
			zap.String("artifact", result.Filename))
		markRequestDone(requestID, result)
		return result, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	markRequestDone(requestID, result)

	record, err := persistGeneration(accountID, requestID, prompt, result)
	if err != nil {
		// Debit already happened; losing the history row is reported,
		// never compensated by a second debit.
		logger.Log.Error("failed to persist generation record after debit",
			zap.String("account_id", accountID),
			zap.String("request_id", requestID),
			zap.Error(err))
		return result, nil, nil
	}

	logger.Log.Info("generation completed",
		zap.String("account_id", accountID),
		zap.String("request_id", requestID),
		zap.String("artifact", result.Filename),
		zap.Int("balance", newBalance))

	return result, record, nil
}

// replayedResult looks for a completed request with the same id: first
// the durable record, then the redis marker covering the window where
// the debit landed but the record write did not.
func replayedResult(requestID string) (*rackgen.Result, *models.GenerationRecord, bool) {
	var record models.GenerationRecord
	if err := database.DB.First(&record, "request_id = ?", requestID).Error; err == nil {
		result := &rackgen.Result{
			Filename:     record.ResultReference,
			CreativeName: record.CreativeName,
		}
		if len(record.Detail) > 0 {
			json.Unmarshal(record.Detail, result)
		}
		return result, &record, true
	}

	if database.RedisClient != nil {
		val, err := database.RedisClient.Get(database.Ctx, requestMarkerKey(requestID)).Result()
		if err == nil && val != "" {
			result := &rackgen.Result{}
			if json.Unmarshal([]byte(val), result) == nil && result.Filename != "" {
				return result, nil, true
			}
		}
	}

	return nil, nil, false
}

func markRequestDone(requestID string, result *rackgen.Result) {
	if database.RedisClient == nil {
		return
	}
	if data, err := json.Marshal(result); err == nil {
		database.RedisClient.Set(database.Ctx, requestMarkerKey(requestID), data, requestMarkerTTL)
	}
}

// debitWithRetry retries transient store failures with bounded
// backoff. Domain rejections are returned immediately.
func debitWithRetry(accountID, reason string) (int, error) {
	var lastErr error
	for attempt := 0; attempt < debitRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(debitRetryDelay * time.Duration(attempt))
		}

		newBalance, err := DebitIfSufficient(accountID, 1, reason)
		if err == nil {
			return newBalance, nil
		}
		if errors.Is(err, entitlement.ErrInsufficientBalance) ||
			errors.Is(err, entitlement.ErrAccountDeleted) ||
			errors.Is(err, ErrAccountNotFound) {
			return 0, err
		}
		lastErr = err
	}

	logger.Log.Error("ledger debit retries exhausted",
		zap.String("account_id", accountID),
		zap.Error(lastErr))
	return 0, ErrLedgerUnavailable
}

func persistGeneration(accountID, requestID, prompt string, result *rackgen.Result) (*models.GenerationRecord, error) {
	detail, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	record := &models.GenerationRecord{
		AccountID:       accountID,
		RequestID:       requestID,
		Prompt:          prompt,
		ResultReference: result.Filename,
		CreativeName:    result.CreativeName,
		Detail:          datatypes.JSON(detail),
	}
	if err := database.DB.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// ListGenerations returns an account's generation history, newest
// first.
func ListGenerations(accountID string, page, limit int) ([]models.GenerationRecord, int64, error) {
	var records []models.GenerationRecord
	var total int64

	query := database.DB.Model(&models.GenerationRecord{}).Where("account_id = ?", accountID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
