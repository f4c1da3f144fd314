package entitlement

import (
	"errors"
	"fmt"
	"time"

	"rackgen-backend/config"
	"rackgen-backend/internal/models"
)

var (
	// ErrFraudSuspected means the email hash was already claimed by a
	// different account. Not retryable; the caller is told to contact
	// support.
	ErrFraudSuspected = errors.New("signup bonus already claimed by another account, please contact support")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountExists       = errors.New("account already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountDeleted      = errors.New("account is deactivated")
	ErrNotDeleted          = errors.New("account is not deactivated")
)

// ReactivationTooSoonError reports exactly when the account becomes
// eligible so the caller can show an actionable message.
type ReactivationTooSoonError struct {
	EligibleAt    time.Time
	DaysRemaining int
}

func (e *ReactivationTooSoonError) Error() string {
	return fmt.Sprintf("account can be reactivated in %d day(s), on %s",
		e.DaysRemaining, e.EligibleAt.UTC().Format("2006-01-02"))
}

// Clock is injected so tests can place themselves before or after the
// bonus deadline and the reactivation cooldown deterministically.
type Clock func() time.Time

// ClaimStatus is the registry lookup result fed into a FirstSeen
// decision.
type ClaimStatus int

const (
	ClaimNone ClaimStatus = iota
	ClaimBySelf
	ClaimByOther
)

// Event is the closed set of inputs the engine decides over. Adding a
// billing event type means adding a variant here; there is no default
// branch to swallow it.
type Event interface {
	isEvent()
}

type FirstSeen struct {
	AccountID string
	Email     string
	Claim     ClaimStatus
}

type Reactivate struct{}

type Debit struct {
	Amount int
}

type CreditTopUp struct {
	Amount          int
	ProviderEventID string
}

type ActivateSubscription struct {
	SubscriptionRef string
	PeriodEnd       time.Time
	ProviderEventID string
}

type SubscriptionRenewed struct {
	PeriodEnd       time.Time
	ProviderEventID string
}

type SubscriptionCanceled struct{}

type PaymentFailed struct{}

func (FirstSeen) isEvent()            {}
func (Reactivate) isEvent()           {}
func (Debit) isEvent()                {}
func (CreditTopUp) isEvent()          {}
func (ActivateSubscription) isEvent() {}
func (SubscriptionRenewed) isEvent()  {}
func (SubscriptionCanceled) isEvent() {}
func (PaymentFailed) isEvent()        {}

// Effects is what the ledger store must apply. The engine itself never
// touches storage.
type Effects struct {
	CreateAccount bool
	GrantCredits  int
	RecordClaim   bool
	BonusAwarded  int

	DebitAmount int
	AddBalance  int
	SetBalance  *int

	SetPlan            *models.Plan
	SetStatus          *models.SubscriptionStatus
	SetSubscriptionRef *string
	SetPeriodEnd       *time.Time
	ClearDeletedAt     bool

	TransactionType models.TransactionType
}

type Rules struct {
	StandardCredits      int
	BonusCredits         int
	BonusEnabled         bool
	BonusDeadline        time.Time
	ProMonthlyCredits    int
	ReactivationCooldown time.Duration
}

func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		StandardCredits:      cfg.StandardCredits,
		BonusCredits:         cfg.BonusCredits,
		BonusEnabled:         cfg.BonusEnabled,
		BonusDeadline:        cfg.BonusDeadline,
		ProMonthlyCredits:    cfg.ProMonthlyCredits,
		ReactivationCooldown: cfg.ReactivationCooldown,
	}
}

type Engine struct {
	Rules Rules
	Now   Clock
}

func NewEngine(rules Rules, now Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{Rules: rules, Now: now}
}

// BonusActive reports whether the launch bonus window is open.
func (e *Engine) BonusActive() bool {
	return e.Rules.BonusEnabled && e.Now().Before(e.Rules.BonusDeadline)
}

// Decide computes the next ledger state for one event as pure effects.
// state is nil when no account exists yet. Rejections are returned as
// error values, never panics.
func (e *Engine) Decide(state *models.Account, ev Event) (Effects, error) {
	switch event := ev.(type) {
	case FirstSeen:
		return e.decideFirstSeen(state, event)
	case Reactivate:
		return e.decideReactivate(state)
	case Debit:
		return e.decideDebit(state, event)
	case CreditTopUp:
		return e.decideTopUp(state, event)
	case ActivateSubscription:
		return e.decideActivate(state, event)
	case SubscriptionRenewed:
		return e.decideRenewed(state, event)
	case SubscriptionCanceled:
		return e.decideStatusOnly(state, models.SubscriptionCanceled)
	case PaymentFailed:
		return e.decideStatusOnly(state, models.SubscriptionPastDue)
	}
	return Effects{}, fmt.Errorf("unknown event %T", ev)
}

func (e *Engine) decideFirstSeen(state *models.Account, event FirstSeen) (Effects, error) {
	if state != nil {
		return Effects{}, ErrAccountExists
	}

	switch event.Claim {
	case ClaimByOther:
		// Same email, different identity: multi-provider abuse guard.
		return Effects{}, ErrFraudSuspected
	case ClaimBySelf:
		// Re-entrant signup: the claim row is already ours, likely from
		// a partially completed earlier attempt. Honor the bonus but do
		// not write a second claim.
		return Effects{
			CreateAccount:   true,
			GrantCredits:    e.Rules.BonusCredits,
			BonusAwarded:    e.Rules.BonusCredits - e.Rules.StandardCredits,
			TransactionType: models.TransactionTypeSignupBonus,
		}, nil
	}

	if e.BonusActive() {
		return Effects{
			CreateAccount:   true,
			GrantCredits:    e.Rules.BonusCredits,
			RecordClaim:     true,
			BonusAwarded:    e.Rules.BonusCredits - e.Rules.StandardCredits,
			TransactionType: models.TransactionTypeSignupBonus,
		}, nil
	}

	return Effects{
		CreateAccount:   true,
		GrantCredits:    e.Rules.StandardCredits,
		TransactionType: models.TransactionTypeSignupBonus,
	}, nil
}

func (e *Engine) decideReactivate(state *models.Account) (Effects, error) {
	if state == nil {
		return Effects{}, ErrAccountNotFound
	}
	if state.DeletedAt == nil {
		return Effects{}, ErrNotDeleted
	}

	eligibleAt := state.DeletedAt.Add(e.Rules.ReactivationCooldown)
	now := e.Now()
	if now.Before(eligibleAt) {
		remaining := eligibleAt.Sub(now)
		days := int(remaining / (24 * time.Hour))
		if remaining%(24*time.Hour) > 0 {
			days++
		}
		return Effects{}, &ReactivationTooSoonError{
			EligibleAt:    eligibleAt,
			DaysRemaining: days,
		}
	}

	// Balance and plan are preserved. No new bonus: the claim row from
	// the original signup is still in the registry.
	return Effects{ClearDeletedAt: true}, nil
}

func (e *Engine) decideDebit(state *models.Account, event Debit) (Effects, error) {
	if state == nil {
		return Effects{}, ErrAccountNotFound
	}
	if state.Deleted() {
		return Effects{}, ErrAccountDeleted
	}
	if state.Balance < event.Amount {
		return Effects{}, ErrInsufficientBalance
	}
	return Effects{
		DebitAmount:     event.Amount,
		TransactionType: models.TransactionTypeDebit,
	}, nil
}

func (e *Engine) decideTopUp(state *models.Account, event CreditTopUp) (Effects, error) {
	if state == nil {
		return Effects{}, ErrAccountNotFound
	}
	return Effects{
		AddBalance:      event.Amount,
		TransactionType: models.TransactionTypeOneTime,
	}, nil
}

func (e *Engine) decideActivate(state *models.Account, event ActivateSubscription) (Effects, error) {
	if state == nil {
		return Effects{}, ErrAccountNotFound
	}
	// Flat set, not additive: a fresh subscription period overwrites
	// whatever free-tier credits remained.
	balance := e.Rules.ProMonthlyCredits
	plan := models.PlanPro
	status := models.SubscriptionActive
	ref := event.SubscriptionRef
	periodEnd := event.PeriodEnd
	return Effects{
		SetBalance:         &balance,
		SetPlan:            &plan,
		SetStatus:          &status,
		SetSubscriptionRef: &ref,
		SetPeriodEnd:       &periodEnd,
		TransactionType:    models.TransactionTypeSubscription,
	}, nil
}

func (e *Engine) decideRenewed(state *models.Account, event SubscriptionRenewed) (Effects, error) {
	if state == nil {
		return Effects{}, ErrAccountNotFound
	}
	balance := e.Rules.ProMonthlyCredits
	status := models.SubscriptionActive
	periodEnd := event.PeriodEnd
	return Effects{
		SetBalance:      &balance,
		SetStatus:       &status,
		SetPeriodEnd:    &periodEnd,
		TransactionType: models.TransactionTypeRenewal,
	}, nil
}

func (e *Engine) decideStatusOnly(state *models.Account, status models.SubscriptionStatus) (Effects, error) {
	if state == nil {
		return Effects{}, ErrAccountNotFound
	}
	// canceled keeps plan=pro until period end; past_due is advisory
	// and never blocks spending an existing balance.
	return Effects{SetStatus: &status}, nil
}
