package domain

import (
	"context"
	"time"
)

// Gateway defines the operations this core consumes from the upstream
// broker gateway (the server-side adapters that actually talk to
// Shoonya/Fyers). Implementations must not retry or classify failures;
// retry and classification are this core's responsibility, layered on
// top.
type Gateway interface {
	// Connect initiates a broker link. When the broker requires an
	// OAuth authorization code the response carries the auth URL to
	// open; otherwise the account summary is returned directly.
	Connect(ctx context.Context, req ConnectRequest) (*ConnectResponse, error)

	// CompleteOAuth exchanges an authorization code for a linked
	// account summary.
	CompleteOAuth(ctx context.Context, req CompleteOAuthRequest) (*AccountSummary, error)

	// PlaceOrder submits one per-account placement request.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error)

	// CheckOrderStatus fetches the broker's authoritative status for
	// an order.
	CheckOrderStatus(ctx context.Context, req OrderStatusRequest) (*OrderStatusResponse, error)
}

// ConnectRequest initiates a broker link
type ConnectRequest struct {
	BrokerKind  BrokerKind        `json:"brokerKind"`
	Credentials map[string]string `json:"credentials"`
}

// ConnectResponse is the gateway's answer to a link attempt
type ConnectResponse struct {
	AuthURL          string          `json:"authUrl,omitempty"`
	RequiresAuthCode bool            `json:"requiresAuthCode"`
	Account          *AccountSummary `json:"accountSummary,omitempty"`
}

// AccountSummary is the gateway's description of a linked account
type AccountSummary struct {
	AccountID     string     `json:"accountId"`
	BrokerKind    BrokerKind `json:"brokerKind"`
	SessionExpiry *time.Time `json:"sessionExpiry,omitempty"`
}

// CompleteOAuthRequest exchanges an authorization code for a session
type CompleteOAuthRequest struct {
	AccountID string `json:"accountId"`
	AuthCode  string `json:"authCode"`
}

// PlaceOrderRequest is one per-account placement request
type PlaceOrderRequest struct {
	BrokerKind   BrokerKind `json:"brokerKind"`
	AccountID    string     `json:"accountId"`
	Symbol       string     `json:"symbol"`
	Side         OrderSide  `json:"side"`
	Quantity     int        `json:"quantity"`
	Kind         OrderKind  `json:"orderKind"`
	LimitPrice   *float64   `json:"limitPrice,omitempty"`
	TriggerPrice *float64   `json:"triggerPrice,omitempty"`
	Exchange     string     `json:"exchange"`
	ProductType  string     `json:"productType"`
}

// PlaceOrderResponse is the gateway's answer to a placement
type PlaceOrderResponse struct {
	BrokerOrderID string `json:"brokerOrderId"`
	Status        string `json:"status"`
}

// OrderStatusRequest asks for an order's authoritative status
type OrderStatusRequest struct {
	OrderID string `json:"orderId"`
}

// OrderStatusResponse is the broker's authoritative view of an order
type OrderStatusResponse struct {
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	StatusChanged  bool   `json:"statusChanged"`
}
