package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"rackgen-backend/internal/database"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"
	"rackgen-backend/internal/rackgen"

	"github.com/stretchr/testify/assert"
)

type fakeGenClient struct {
	calls  int
	err    error
	result *rackgen.Result
	// onGenerate runs inside the call, before returning. Used to
	// simulate concurrent activity during the long engine round trip.
	onGenerate func()
}

func (f *fakeGenClient) Generate(ctx context.Context, prompt string) (*rackgen.Result, error) {
	f.calls++
	if f.onGenerate != nil {
		f.onGenerate()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &rackgen.Result{
		Filename:     "rack_demo.adg",
		CreativeName: "Demo Rack",
	}, nil
}

func generationTestEngine() *entitlement.Engine {
	return entitlement.NewEngine(accountTestRules, func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	})
}

func TestGenerateRack_Success(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-user", 5)
	client := &fakeGenClient{}

	result, record, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-user", "warm analog bass", "req-1")
	assert.NoError(t, err)
	assert.Equal(t, "rack_demo.adg", result.Filename)
	assert.NotNil(t, record)
	assert.Equal(t, "req-1", record.RequestID)
	assert.Equal(t, 1, client.calls)

	var account models.Account
	database.DB.First(&account, "id = ?", "gen-user")
	assert.Equal(t, 4, account.Balance)

	var trans models.Transaction
	database.DB.Last(&trans)
	assert.Equal(t, models.TransactionTypeDebit, trans.Type)
	assert.Equal(t, -1, trans.CreditsDelta)
}

func TestGenerateRack_EngineFailureLeavesBalance(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-fail", 5)
	client := &fakeGenClient{err: &rackgen.EngineError{StatusCode: 500, Detail: "model overloaded"}}

	_, _, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-fail", "prompt", "req-fail")
	var engineErr *rackgen.EngineError
	assert.ErrorAs(t, err, &engineErr)

	// Failed generation must not cost a credit or leave a record.
	var account models.Account
	database.DB.First(&account, "id = ?", "gen-fail")
	assert.Equal(t, 5, account.Balance)

	var count int64
	database.DB.Model(&models.GenerationRecord{}).Count(&count)
	assert.Equal(t, int64(0), count)
	database.DB.Model(&models.Transaction{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestGenerateRack_InsufficientBalance(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-broke", 0)
	client := &fakeGenClient{}

	_, _, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-broke", "prompt", "req-broke")
	assert.ErrorIs(t, err, entitlement.ErrInsufficientBalance)

	// Rejected before the engine was ever contacted.
	assert.Equal(t, 0, client.calls)
}

func TestGenerateRack_DeletedAccount(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	account := seedAccount("gen-del", 5)
	database.DB.Model(&account).Update("deleted_at", time.Now())
	client := &fakeGenClient{}

	_, _, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-del", "prompt", "req-del")
	assert.ErrorIs(t, err, entitlement.ErrAccountDeleted)
	assert.Equal(t, 0, client.calls)
}

func TestGenerateRack_ReplaySameRequestID(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-replay", 5)
	client := &fakeGenClient{}

	first, _, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-replay", "prompt", "req-replay")
	assert.NoError(t, err)

	// A retry with the same id is answered from the record: no second
	// engine call, no second debit.
	second, record, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-replay", "prompt", "req-replay")
	assert.NoError(t, err)
	assert.Equal(t, first.Filename, second.Filename)
	assert.NotNil(t, record)
	assert.Equal(t, 1, client.calls)

	var account models.Account
	database.DB.First(&account, "id = ?", "gen-replay")
	assert.Equal(t, 4, account.Balance)

	var count int64
	database.DB.Model(&models.Transaction{}).Where("type = ?", models.TransactionTypeDebit).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGenerateRack_BalanceExhaustedDuringCall(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-race", 1)

	// The last credit is spent elsewhere while the engine is working.
	client := &fakeGenClient{}
	client.onGenerate = func() {
		_, err := DebitIfSufficient("gen-race", 1, "concurrent request")
		assert.NoError(t, err)
	}

	result, record, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-race", "prompt", "req-race")

	// The work was already done, so the caller keeps the artifact. The
	// mismatch shows up as a missing history row, never a negative
	// balance.
	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Nil(t, record)

	var account models.Account
	database.DB.First(&account, "id = ?", "gen-race")
	assert.Equal(t, 0, account.Balance)

	var count int64
	database.DB.Model(&models.GenerationRecord{}).Count(&count)
	assert.Equal(t, int64(0), count)

	// The completed request is still replayable from the marker.
	replayed, rec, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-race", "prompt", "req-race")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, result.Filename, replayed.Filename)
	assert.Equal(t, 1, client.calls)
}

func TestGenerateRack_LedgerUnavailable(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-dbdown", 5)

	// Drop the accounts table after the pre-check read to make every
	// debit attempt fail with a non-domain error.
	client := &fakeGenClient{}
	client.onGenerate = func() {
		database.DB.Migrator().DropTable(&models.Transaction{})
	}

	_, _, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-dbdown", "prompt", "req-dbdown")
	assert.True(t, errors.Is(err, ErrLedgerUnavailable))
}

func TestListGenerations(t *testing.T) {
	setupLedgerTestDB()
	mr := setupLedgerTestRedis()
	defer mr.Close()

	seedAccount("gen-list", 10)
	client := &fakeGenClient{}

	for _, id := range []string{"req-a", "req-b", "req-c"} {
		_, _, err := GenerateRack(context.Background(), generationTestEngine(), client, "gen-list", "prompt "+id, id)
		assert.NoError(t, err)
	}

	records, total, err := ListGenerations("gen-list", 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, records, 2)
}
