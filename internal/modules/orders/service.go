package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/events"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/accounts"
	"github.com/ravitejakamalapuram/copytradepro/internal/retry"
)

// AccountDirectory is the slice of the account service the
// orchestrator needs.
type AccountDirectory interface {
	Get(ctx context.Context, accountID string) (*domain.BrokerAccount, error)
}

// Service orchestrates order fan-out and reconciliation.
type Service struct {
	repo         *Repository
	gateway      domain.Gateway
	accounts     AccountDirectory
	eventManager *events.Manager
	policy       retry.Policy
	log          zerolog.Logger
}

// NewService creates the order orchestrator.
func NewService(repo *Repository, gateway domain.Gateway, accounts AccountDirectory, eventManager *events.Manager, policy retry.Policy, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		gateway:      gateway,
		accounts:     accounts,
		eventManager: eventManager,
		policy:       policy,
		log:          log.With().Str("service", "orders").Logger(),
	}
}

// PlaceBatch fans one logical order out across all target accounts.
// A malformed request fails before any account is touched, and every
// target must resolve to an active account before the first broker
// call goes out: one unknown or inactive target rejects the whole
// batch with validation outcomes and zero gateway calls. Once the
// fan-out starts, every account gets its outcome: one slow or failing
// account never short-circuits the others, and the outcomes come back
// in the order the target accounts were supplied.
func (s *Service) PlaceBatch(ctx context.Context, req domain.OrderRequest) (*domain.OrderBatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	batchID := uuid.New().String()

	resolved, rejected := s.resolveTargets(ctx, req.TargetAccounts)
	if rejected != nil {
		s.log.Warn().
			Str("batch_id", batchID).
			Str("symbol", req.Symbol).
			Msg("Order batch rejected before placement")
		result := domain.OrderBatchResult{BatchID: batchID, Outcomes: rejected}
		if err := s.repo.RecordBatch(ctx, req, result); err != nil {
			s.log.Error().Str("batch_id", batchID).Err(err).Msg("Failed to record order batch")
		}
		s.emitBatchEvents(req, result)
		return &result, nil
	}

	outcomes := make([]domain.OrderOutcome, len(req.TargetAccounts))

	s.log.Info().
		Str("batch_id", batchID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int("accounts", len(req.TargetAccounts)).
		Msg("Placing order batch")

	var wg sync.WaitGroup
	for i, accountID := range req.TargetAccounts {
		wg.Add(1)
		go func(index int, accountID string, account *domain.BrokerAccount) {
			defer wg.Done()
			outcomes[index] = s.placeForAccount(ctx, batchID, req, accountID, account)
		}(i, accountID, resolved[i])
	}
	wg.Wait()

	result := domain.OrderBatchResult{BatchID: batchID, Outcomes: outcomes}

	if err := s.repo.RecordBatch(ctx, req, result); err != nil {
		s.log.Error().Str("batch_id", batchID).Err(err).Msg("Failed to record order batch")
	}
	s.emitBatchEvents(req, result)

	return &result, nil
}

// resolveTargets looks up every target account ahead of the fan-out.
// The second return is non-nil when any target is unknown, inactive,
// or has an expired session; it then carries one failed outcome per
// target, the offenders with their specific entry and the rest marked
// as rejected alongside them.
func (s *Service) resolveTargets(ctx context.Context, targets []string) ([]*domain.BrokerAccount, []domain.OrderOutcome) {
	resolved := make([]*domain.BrokerAccount, len(targets))
	entries := make(map[int]domain.ErrorTaxonomyEntry)
	now := time.Now()

	for i, accountID := range targets {
		account, err := s.accounts.Get(ctx, accountID)
		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			entries[i] = unknownAccountEntry()
		case err != nil:
			s.log.Error().Str("account_id", accountID).Err(err).Msg("Account lookup failed")
			entries[i] = accountLookupEntry()
		case !account.IsActive || account.SessionExpired(now):
			entries[i] = inactiveAccountEntry()
		default:
			resolved[i] = account
		}
	}

	if len(entries) == 0 {
		return resolved, nil
	}

	outcomes := make([]domain.OrderOutcome, len(targets))
	for i, accountID := range targets {
		entry, ok := entries[i]
		if !ok {
			entry = rejectedBatchEntry()
		}
		outcomes[i] = failedOutcome(accountID, entry)
	}
	return nil, outcomes
}

// placeForAccount places one pre-resolved account's order with retries.
func (s *Service) placeForAccount(ctx context.Context, batchID string, req domain.OrderRequest, accountID string, account *domain.BrokerAccount) domain.OrderOutcome {
	var placed *domain.PlaceOrderResponse
	result := retry.Do(ctx, s.policy, s.log, func(ctx context.Context) error {
		resp, err := s.gateway.PlaceOrder(ctx, domain.PlaceOrderRequest{
			BrokerKind:   account.BrokerKind,
			AccountID:    accountID,
			Symbol:       req.Symbol,
			Side:         req.Side,
			Quantity:     req.Quantity,
			Kind:         req.Kind,
			LimitPrice:   req.LimitPrice,
			TriggerPrice: req.TriggerPrice,
			Exchange:     req.Exchange,
			ProductType:  req.ProductType,
		})
		if err != nil {
			return err
		}
		placed = resp
		return nil
	})

	if result.Err != nil {
		entry := result.Entry
		s.log.Warn().
			Str("batch_id", batchID).
			Str("account_id", accountID).
			Str("kind", string(entry.Kind)).
			Int("attempts", result.Attempts).
			Msg("Order placement failed")
		return failedOutcome(accountID, entry)
	}

	return domain.OrderOutcome{
		AccountID:     accountID,
		Status:        domain.OutcomePlaced,
		BrokerOrderID: placed.BrokerOrderID,
	}
}

func (s *Service) emitBatchEvents(req domain.OrderRequest, result domain.OrderBatchResult) {
	placed, failed := 0, 0
	for _, outcome := range result.Outcomes {
		if outcome.Status == domain.OutcomePlaced {
			placed++
		} else {
			failed++
		}

		data := &events.OrderCreatedData{
			BatchID:       result.BatchID,
			AccountID:     outcome.AccountID,
			Symbol:        req.Symbol,
			Side:          string(req.Side),
			Quantity:      req.Quantity,
			Status:        string(outcome.Status),
			BrokerOrderID: outcome.BrokerOrderID,
		}
		if outcome.Error != nil {
			data.ErrorKind = string(outcome.Error.Kind)
			data.ErrorMessage = outcome.Error.UserMessage
		}
		s.eventManager.EmitTyped(events.OrderCreated, "orders", data)
	}

	s.eventManager.EmitTyped(events.OrderBatchCompleted, "orders", &events.OrderBatchCompletedData{
		BatchID:      result.BatchID,
		Symbol:       req.Symbol,
		PlacedCount:  placed,
		FailedCount:  failed,
		AllSucceeded: result.AllSucceeded(),
		AllFailed:    result.AllFailed(),
	})
}

// History returns recent cached orders.
func (s *Service) History(ctx context.Context, limit int) ([]CachedOrder, error) {
	return s.repo.History(ctx, limit)
}

// Batch returns the cached rows of one fan-out.
func (s *Service) Batch(ctx context.Context, batchID string) ([]CachedOrder, error) {
	return s.repo.Batch(ctx, batchID)
}

// ByAccount returns an account's cached orders.
func (s *Service) ByAccount(ctx context.Context, accountID string, limit int) ([]CachedOrder, error) {
	return s.repo.ByAccount(ctx, accountID, limit)
}

// ErrOrderNotFound is returned for reconciliation of an unknown order.
var ErrOrderNotFound = errors.New("order not found")

// ErrOrderNotPlaced is returned when the requested order never made it
// to the broker, so there is no authoritative status to fetch.
var ErrOrderNotPlaced = errors.New("order was never placed on the broker")

// ReconcileResult reports one on-demand reconciliation: the broker's
// status, the status the cache held before, and whether they differed.
type ReconcileResult struct {
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	Changed        bool   `json:"changed"`
}

// ReconcileOrder refreshes a single cached order against the broker.
// The status check runs through the same retry policy as placement.
// The broker's answer overwrites the cache unconditionally; calling
// this twice with no broker-side change returns Changed=false and
// leaves the row untouched.
func (s *Service) ReconcileOrder(ctx context.Context, orderID int64) (*ReconcileResult, error) {
	order, err := s.repo.ByID(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.BrokerOrderID == "" {
		return nil, ErrOrderNotPlaced
	}

	var resp *domain.OrderStatusResponse
	result := retry.Do(ctx, s.policy, s.log, func(ctx context.Context) error {
		r, err := s.gateway.CheckOrderStatus(ctx, domain.OrderStatusRequest{OrderID: order.BrokerOrderID})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if result.Err != nil {
		return nil, fmt.Errorf("status check failed for %s: %w", order.BrokerOrderID, result.Err)
	}

	res := &ReconcileResult{
		Status:         resp.Status,
		PreviousStatus: order.Status,
		Changed:        resp.Status != order.Status,
	}
	if !res.Changed {
		return res, nil
	}

	if _, err := s.repo.SetStatus(ctx, order.BrokerOrderID, resp.Status); err != nil {
		return nil, err
	}
	s.eventManager.EmitTyped(events.OrderStatusChanged, "orders", &events.OrderStatusChangedData{
		OrderID:        order.BrokerOrderID,
		AccountID:      order.AccountID,
		PreviousStatus: order.Status,
		Status:         resp.Status,
		Source:         "reconciliation",
	})
	return res, nil
}

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Reconcile walks every unsettled cached order, asks the broker for
// its authoritative status, and overwrites the cache where they
// disagree. The broker always wins; running the sweep twice in a row
// changes nothing the second time.
func (s *Service) Reconcile(ctx context.Context) (ReconcileStats, error) {
	unsettled, err := s.repo.Unsettled(ctx)
	if err != nil {
		return ReconcileStats{}, err
	}

	stats := ReconcileStats{Checked: len(unsettled)}
	for _, order := range unsettled {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		resp, err := s.gateway.CheckOrderStatus(ctx, domain.OrderStatusRequest{OrderID: order.BrokerOrderID})
		if err != nil {
			stats.Failed++
			s.log.Debug().
				Str("broker_order_id", order.BrokerOrderID).
				Err(err).
				Msg("Status check failed, order left for the next sweep")
			continue
		}

		if resp.Status == order.Status {
			continue
		}

		changed, err := s.repo.SetStatus(ctx, order.BrokerOrderID, resp.Status)
		if err != nil {
			stats.Failed++
			s.log.Error().Str("broker_order_id", order.BrokerOrderID).Err(err).Msg("Failed to apply reconciled status")
			continue
		}
		if changed {
			stats.Updated++
			s.eventManager.EmitTyped(events.OrderStatusChanged, "orders", &events.OrderStatusChangedData{
				OrderID:        order.BrokerOrderID,
				AccountID:      order.AccountID,
				PreviousStatus: order.Status,
				Status:         resp.Status,
				Source:         "reconciliation",
			})
		}
	}

	if stats.Checked > 0 {
		s.log.Info().
			Int("checked", stats.Checked).
			Int("updated", stats.Updated).
			Int("failed", stats.Failed).
			Msg("Order reconciliation sweep completed")
	}
	return stats, nil
}

func failedOutcome(accountID string, entry domain.ErrorTaxonomyEntry) domain.OrderOutcome {
	return domain.OrderOutcome{
		AccountID: accountID,
		Status:    domain.OutcomeFailed,
		Error:     &entry,
	}
}

func unknownAccountEntry() domain.ErrorTaxonomyEntry {
	return domain.ErrorTaxonomyEntry{
		Kind:             domain.TaxonomyValidation,
		IsRetryable:      false,
		UserMessage:      "This account is not linked.",
		SuggestedActions: []string{"Link the account before placing orders"},
	}
}

func inactiveAccountEntry() domain.ErrorTaxonomyEntry {
	return domain.ErrorTaxonomyEntry{
		Kind:             domain.TaxonomyValidation,
		IsRetryable:      false,
		UserMessage:      "This account is inactive or its session has expired.",
		SuggestedActions: []string{"Re-activate the broker account"},
	}
}

func rejectedBatchEntry() domain.ErrorTaxonomyEntry {
	return domain.ErrorTaxonomyEntry{
		Kind:             domain.TaxonomyValidation,
		IsRetryable:      false,
		UserMessage:      "The batch was rejected because another target account failed validation.",
		SuggestedActions: []string{"Fix the ineligible accounts and resubmit the batch"},
	}
}

func accountLookupEntry() domain.ErrorTaxonomyEntry {
	return domain.ErrorTaxonomyEntry{
		Kind:             domain.TaxonomyUnknown,
		IsRetryable:      false,
		UserMessage:      "The account could not be looked up.",
		SuggestedActions: []string{"Retry the request", "Contact support if the problem persists"},
	}
}
