// Package gateway implements the HTTP client for the broker gateway,
// the sidecar that owns the actual broker SDK sessions. This client
// does transport only: it maps failures to TransportFailure and leaves
// classification and retry to the callers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20 // 1MB cap on response bodies
)

// Client talks JSON over HTTP to the broker gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a gateway client for the given base URL.
func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: log.With().Str("component", "gateway_client").Logger(),
	}
}

// Connect initiates a broker session for the given credentials.
func (c *Client) Connect(ctx context.Context, req domain.ConnectRequest) (*domain.ConnectResponse, error) {
	var resp domain.ConnectResponse
	if err := c.post(ctx, "/broker/connect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteOAuth exchanges an auth code for an active session.
func (c *Client) CompleteOAuth(ctx context.Context, req domain.CompleteOAuthRequest) (*domain.AccountSummary, error) {
	var resp domain.AccountSummary
	if err := c.post(ctx, "/broker/oauth/complete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PlaceOrder places a single order on a single broker account.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.PlaceOrderResponse, error) {
	var resp domain.PlaceOrderResponse
	if err := c.post(ctx, "/broker/place-order", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckOrderStatus fetches the broker-side status of an order.
func (c *Client) CheckOrderStatus(ctx context.Context, req domain.OrderStatusRequest) (*domain.OrderStatusResponse, error) {
	var resp domain.OrderStatusResponse
	if err := c.post(ctx, "/broker/check-order-status", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post issues a JSON POST and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		failure := networkFailure(err)
		c.log.Debug().
			Str("path", path).
			Str("code", string(failure.Code)).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("Gateway request failed before a response")
		return failure
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		return networkFailure(readErr)
	}

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Gateway request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.TransportFailure{
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// networkFailure maps a transport-level error to a TransportFailure
// with the matching network code.
func networkFailure(err error) *domain.TransportFailure {
	return &domain.TransportFailure{
		Code: networkCode(err),
		Err:  err,
	}
}

func networkCode(err error) domain.NetworkCode {
	if errors.Is(err, context.Canceled) {
		return domain.NetworkAborted
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return domain.NetworkTimedOut
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NetworkTimedOut
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NetworkNameNotResolved
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.NetworkConnectionRefused
	}
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return domain.NetworkUnreachable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NetworkAborted
	}

	return domain.NetworkAborted
}
