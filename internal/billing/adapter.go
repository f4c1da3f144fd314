package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rackgen-backend/config"
	"rackgen-backend/internal/entitlement"
	"rackgen-backend/internal/models"
	"rackgen-backend/internal/services"
	"rackgen-backend/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedEvent marks a payload type outside the closed
	// dispatch set. It is surfaced explicitly so new provider events
	// are a deliberate addition, never a silently ignored default.
	ErrUnsupportedEvent = errors.New("unsupported webhook event type")

	ErrMissingAccountID = errors.New("webhook payload has no account reference")
	ErrUnknownPrice     = errors.New("webhook payload references an unknown price id")
)

// EventType is the closed set of provider event types this adapter
// understands.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventInvoicePaid         EventType = "invoice.payment_succeeded"
	EventInvoiceFailed       EventType = "invoice.payment_failed"
)

const (
	modeSubscription = "subscription"
	modePayment      = "payment"
)

// WebhookEvent is the provider payload after JSON decoding. ID is the
// provider-assigned unique event id used for idempotency.
type WebhookEvent struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	AccountID       string `json:"user_id"`
	Mode            string `json:"mode,omitempty"`
	PriceID         string `json:"price_id,omitempty"`
	SubscriptionRef string `json:"subscription_id,omitempty"`
	Status          string `json:"status,omitempty"`
	PeriodEnd       int64  `json:"period_end,omitempty"`
	AmountTotal     int64  `json:"amount_total,omitempty"`
	Currency        string `json:"currency,omitempty"`
}

// ParseEvent decodes a verified payload.
func ParseEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.ID == "" {
		return event, errors.New("webhook payload has no event id")
	}
	return event, nil
}

// Adapter translates provider events into entitlement decisions and
// ledger writes. It performs no dedup of its own: the unique
// provider_event_id constraint in the store is the real guarantee, so
// the adapter is safe to invoke any number of times with the same
// event.
type Adapter struct {
	engine *entitlement.Engine
	cfg    *config.Config
}

func NewAdapter(engine *entitlement.Engine, cfg *config.Config) *Adapter {
	return &Adapter{engine: engine, cfg: cfg}
}

// Handle dispatches one event. A duplicate delivery returns nil after
// a debug log; it is not an error.
func (a *Adapter) Handle(event WebhookEvent) error {
	if event.Data.AccountID == "" {
		return ErrMissingAccountID
	}

	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		err = a.handleCheckoutCompleted(event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		err = a.handleSubscriptionSync(event)
	case EventSubscriptionDeleted:
		err = a.applyStatusEvent(event, entitlement.SubscriptionCanceled{})
	case EventInvoicePaid:
		err = a.handleInvoicePaid(event)
	case EventInvoiceFailed:
		err = a.applyStatusEvent(event, entitlement.PaymentFailed{})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, event.Type)
	}

	if errors.Is(err, services.ErrAlreadyApplied) {
		logger.Log.Debug("duplicate webhook event ignored",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)))
		return nil
	}
	return err
}

func (a *Adapter) handleCheckoutCompleted(event WebhookEvent) error {
	switch event.Data.Mode {
	case modeSubscription:
		account, err := services.ReadAccount(event.Data.AccountID)
		if err != nil {
			return err
		}
		effects, err := a.engine.Decide(&account, entitlement.ActivateSubscription{
			SubscriptionRef: event.Data.SubscriptionRef,
			PeriodEnd:       time.Unix(event.Data.PeriodEnd, 0),
			ProviderEventID: event.ID,
		})
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("Pro subscription activated (%s)", event.Data.SubscriptionRef)
		return services.ApplyTransactionIfNew(event.ID, event.Data.AccountID, effects, reason)

	case modePayment:
		credits, err := a.packCredits(event.Data.PriceID)
		if err != nil {
			return err
		}
		account, err := services.ReadAccount(event.Data.AccountID)
		if err != nil {
			return err
		}
		effects, err := a.engine.Decide(&account, entitlement.CreditTopUp{
			Amount:          credits,
			ProviderEventID: event.ID,
		})
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("Credit pack purchase: %d credit(s)", credits)
		return services.ApplyTransactionIfNew(event.ID, event.Data.AccountID, effects, reason)
	}

	return fmt.Errorf("checkout completed with unknown mode %q", event.Data.Mode)
}

func (a *Adapter) handleSubscriptionSync(event WebhookEvent) error {
	status, err := mapProviderStatus(event.Data.Status)
	if err != nil {
		return err
	}

	effects := entitlement.Effects{SetStatus: &status}
	if event.Data.PeriodEnd > 0 {
		periodEnd := time.Unix(event.Data.PeriodEnd, 0)
		effects.SetPeriodEnd = &periodEnd
	}
	return services.UpdateSubscriptionState(event.Data.AccountID, effects)
}

func (a *Adapter) handleInvoicePaid(event WebhookEvent) error {
	if event.Data.SubscriptionRef == "" {
		// Invoice unrelated to a subscription: nothing to renew.
		return nil
	}

	account, err := services.ReadAccount(event.Data.AccountID)
	if err != nil {
		return err
	}
	effects, err := a.engine.Decide(&account, entitlement.SubscriptionRenewed{
		PeriodEnd:       time.Unix(event.Data.PeriodEnd, 0),
		ProviderEventID: event.ID,
	})
	if err != nil {
		return err
	}
	reason := fmt.Sprintf("Subscription renewal (%s)", event.Data.SubscriptionRef)
	return services.ApplyTransactionIfNew(event.ID, event.Data.AccountID, effects, reason)
}

func (a *Adapter) applyStatusEvent(event WebhookEvent, ev entitlement.Event) error {
	account, err := services.ReadAccount(event.Data.AccountID)
	if err != nil {
		return err
	}
	effects, err := a.engine.Decide(&account, ev)
	if err != nil {
		return err
	}
	return services.UpdateSubscriptionState(event.Data.AccountID, effects)
}

func (a *Adapter) packCredits(priceID string) (int, error) {
	switch priceID {
	case a.cfg.StarterPriceID:
		return a.cfg.StarterPackCredits, nil
	case a.cfg.PowerPriceID:
		return a.cfg.PowerPackCredits, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPrice, priceID)
}

func mapProviderStatus(raw string) (models.SubscriptionStatus, error) {
	switch raw {
	case "active", "trialing":
		return models.SubscriptionActive, nil
	case "past_due":
		return models.SubscriptionPastDue, nil
	case "canceled", "unpaid", "incomplete_expired":
		return models.SubscriptionCanceled, nil
	}
	return "", fmt.Errorf("unknown subscription status %q", raw)
}
