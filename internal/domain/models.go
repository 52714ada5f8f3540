// Package domain contains the core domain models for the broker
// integration and order-orchestration core. The domain layer is pure:
// no infrastructure dependencies, no I/O.
package domain

import (
	"fmt"
	"time"
)

// BrokerKind identifies a supported brokerage
type BrokerKind string

const (
	BrokerShoonya BrokerKind = "shoonya"
	BrokerFyers   BrokerKind = "fyers"
)

// Valid reports whether the broker kind is one we support
func (k BrokerKind) Valid() bool {
	switch k {
	case BrokerShoonya, BrokerFyers:
		return true
	}
	return false
}

// BrokerAccount identifies one linked brokerage credential set.
// Created on successful link, destroyed on explicit unlink, mutated
// only by the activate/deactivate operations and by a completed
// handshake.
type BrokerAccount struct {
	AccountID     string     `json:"account_id"` // Opaque, broker-assigned
	BrokerKind    BrokerKind `json:"broker_kind"`
	IsActive      bool       `json:"is_active"`
	SessionExpiry *time.Time `json:"session_expiry,omitempty"` // nil means the broker issues non-expiring sessions
}

// SessionExpired reports whether the account's broker session has lapsed.
// Accounts with no expiry never expire.
func (a BrokerAccount) SessionExpired(now time.Time) bool {
	if a.SessionExpiry == nil {
		return false
	}
	return now.After(*a.SessionExpiry)
}

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid reports whether the side is BUY or SELL
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderKind is the execution style of an order
type OrderKind string

const (
	OrderMarket   OrderKind = "MARKET"
	OrderLimit    OrderKind = "LIMIT"
	OrderSLLimit  OrderKind = "SL-LIMIT"
	OrderSLMarket OrderKind = "SL-MARKET"
)

// Valid reports whether the order kind is supported
func (k OrderKind) Valid() bool {
	switch k {
	case OrderMarket, OrderLimit, OrderSLLimit, OrderSLMarket:
		return true
	}
	return false
}

// RequiresLimitPrice reports whether orders of this kind must carry a limit price
func (k OrderKind) RequiresLimitPrice() bool {
	return k == OrderLimit || k == OrderSLLimit
}

// RequiresTriggerPrice reports whether orders of this kind must carry a trigger price
func (k OrderKind) RequiresTriggerPrice() bool {
	return k == OrderSLLimit || k == OrderSLMarket
}

// OrderRequest is the logical order the user intends to replicate
// across all target accounts.
type OrderRequest struct {
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	Side           OrderSide `json:"side"`
	Quantity       int       `json:"quantity"`
	Kind           OrderKind `json:"order_kind"`
	LimitPrice     *float64  `json:"limit_price,omitempty"`
	TriggerPrice   *float64  `json:"trigger_price,omitempty"`
	ProductType    string    `json:"product_type"`
	TargetAccounts []string  `json:"target_accounts"`
}

// Validate checks the request's local invariants. It does not check
// account state; the orchestrator does that against the account list.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !r.Side.Valid() {
		return fmt.Errorf("invalid side: %s (must be BUY or SELL)", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("invalid quantity: %d (must be positive)", r.Quantity)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid order kind: %s", r.Kind)
	}
	if r.Kind.RequiresLimitPrice() && r.LimitPrice == nil {
		return fmt.Errorf("%s orders require a limit price", r.Kind)
	}
	if !r.Kind.RequiresLimitPrice() && r.LimitPrice != nil {
		return fmt.Errorf("%s orders must not carry a limit price", r.Kind)
	}
	if r.Kind.RequiresTriggerPrice() && r.TriggerPrice == nil {
		return fmt.Errorf("%s orders require a trigger price", r.Kind)
	}
	if !r.Kind.RequiresTriggerPrice() && r.TriggerPrice != nil {
		return fmt.Errorf("%s orders must not carry a trigger price", r.Kind)
	}
	if len(r.TargetAccounts) == 0 {
		return fmt.Errorf("target accounts cannot be empty")
	}
	seen := make(map[string]bool, len(r.TargetAccounts))
	for _, id := range r.TargetAccounts {
		if id == "" {
			return fmt.Errorf("target account id cannot be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate target account: %s", id)
		}
		seen[id] = true
	}
	return nil
}

// OutcomeStatus is the per-account result of a fan-out
type OutcomeStatus string

const (
	OutcomePlaced OutcomeStatus = "PLACED"
	OutcomeFailed OutcomeStatus = "FAILED"
)

// OrderOutcome is the immutable per-account result of a fan-out
type OrderOutcome struct {
	AccountID     string              `json:"account_id"`
	Status        OutcomeStatus       `json:"status"`
	BrokerOrderID string              `json:"broker_order_id,omitempty"` // Present iff PLACED
	Error         *ErrorTaxonomyEntry `json:"error,omitempty"`           // Present iff FAILED
}

// OrderBatchResult is the aggregate result of one orchestration call.
// Outcomes are ordered by the order TargetAccounts was supplied in;
// completion order is never exposed.
type OrderBatchResult struct {
	BatchID  string         `json:"batch_id"`
	Outcomes []OrderOutcome `json:"outcomes"`
}

// AllSucceeded reports whether every outcome is PLACED
func (r OrderBatchResult) AllSucceeded() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Status != OutcomePlaced {
			return false
		}
	}
	return true
}

// AllFailed reports whether every outcome is FAILED
func (r OrderBatchResult) AllFailed() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Status != OutcomeFailed {
			return false
		}
	}
	return true
}

// PartialSuccessCount returns the number of PLACED outcomes when the
// batch is a partial success, and 0 when the batch is uniformly
// succeeded or failed.
func (r OrderBatchResult) PartialSuccessCount() int {
	if r.AllSucceeded() || r.AllFailed() {
		return 0
	}
	count := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomePlaced {
			count++
		}
	}
	return count
}
