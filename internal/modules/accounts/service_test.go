package accounts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/events"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
)

// mockGateway is a hand-written gateway double.
type mockGateway struct {
	mu               sync.Mutex
	connectResp      *domain.ConnectResponse
	connectErr       error
	oauthResp        *domain.AccountSummary
	oauthErr         error
	oauthCalls       []domain.CompleteOAuthRequest
	placeOrderFn     func(req domain.PlaceOrderRequest) (*domain.PlaceOrderResponse, error)
	orderStatusResp  *domain.OrderStatusResponse
	orderStatusErr   error
	orderStatusCalls int
}

func (g *mockGateway) Connect(ctx context.Context, req domain.ConnectRequest) (*domain.ConnectResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectResp, g.connectErr
}

func (g *mockGateway) CompleteOAuth(ctx context.Context, req domain.CompleteOAuthRequest) (*domain.AccountSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.oauthCalls = append(g.oauthCalls, req)
	return g.oauthResp, g.oauthErr
}

func (g *mockGateway) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.PlaceOrderResponse, error) {
	if g.placeOrderFn != nil {
		return g.placeOrderFn(req)
	}
	return &domain.PlaceOrderResponse{BrokerOrderID: "ORD-1", Status: "PLACED"}, nil
}

func (g *mockGateway) CheckOrderStatus(ctx context.Context, req domain.OrderStatusRequest) (*domain.OrderStatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderStatusCalls++
	return g.orderStatusResp, g.orderStatusErr
}

// fakeSurface and fakeOpener mirror the handshake package doubles.
type fakeSurface struct {
	mu       sync.Mutex
	location string
	locErr   error
}

func (s *fakeSurface) set(location string, err error) {
	s.mu.Lock()
	s.location = location
	s.locErr = err
	s.mu.Unlock()
}

func (s *fakeSurface) Location() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, s.locErr
}

func (s *fakeSurface) Close() error { return nil }

type fakeOpener struct {
	surface *fakeSurface
	err     error
}

func (o *fakeOpener) Open(authURL string) (handshake.Surface, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.surface, nil
}

func newTestService(t *testing.T, gw domain.Gateway, opener handshake.SurfaceOpener) (*Service, *Repository) {
	t.Helper()

	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:accounts_%s?mode=memory&cache=shared", t.Name()),
		Name: "accounts",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	registry := handshake.NewRegistry(opener, handshake.NewStaging(), manager, handshake.Options{
		PollInterval:     2 * time.Millisecond,
		CrossOriginAfter: 10 * time.Millisecond,
		OverallTimeout:   time.Second,
	}, "", zerolog.Nop())

	return NewService(repo, gw, registry, manager, zerolog.Nop()), repo
}

func TestLinkImmediateActivation(t *testing.T) {
	expiry := time.Now().Add(8 * time.Hour)
	gw := &mockGateway{
		connectResp: &domain.ConnectResponse{
			RequiresAuthCode: false,
			Account: &domain.AccountSummary{
				AccountID:     "FA0001",
				BrokerKind:    "shoonya",
				SessionExpiry: &expiry,
			},
		},
	}
	service, _ := newTestService(t, gw, &fakeOpener{surface: &fakeSurface{}})

	outcome, err := service.Link(context.Background(), domain.BrokerShoonya, map[string]string{"user_id": "FA0001"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Account)
	assert.True(t, outcome.Account.IsActive)
	assert.Empty(t, outcome.HandshakeID)

	active, err := service.ActiveAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "FA0001", active[0].AccountID)
}

func TestLinkStartsHandshakeAndCompletesOAuth(t *testing.T) {
	surface := &fakeSurface{locErr: handshake.ErrCrossOrigin}
	gw := &mockGateway{
		connectResp: &domain.ConnectResponse{
			RequiresAuthCode: true,
			AuthURL:          "https://fyers.example/oauth",
		},
		oauthResp: &domain.AccountSummary{AccountID: "FY0001", BrokerKind: "fyers"},
	}
	service, _ := newTestService(t, gw, &fakeOpener{surface: surface})

	outcome, err := service.Link(context.Background(), domain.BrokerFyers, map[string]string{"user_id": "FY0001"})
	require.NoError(t, err)
	assert.Nil(t, outcome.Account)
	assert.NotEmpty(t, outcome.HandshakeID)
	assert.Equal(t, "https://fyers.example/oauth", outcome.AuthURL)

	// The surface reaches the redirect; the watcher completes OAuth
	surface.set("http://localhost:3000/cb?code=ok-1", nil)

	require.Eventually(t, func() bool {
		accts, err := service.List(context.Background())
		return err == nil && len(accts) == 1 && accts[0].IsActive
	}, 2*time.Second, 5*time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.oauthCalls, 1)
	assert.Equal(t, "FY0001", gw.oauthCalls[0].AccountID)
	assert.Equal(t, "ok-1", gw.oauthCalls[0].AuthCode)
}

func TestLinkRejectsSecondHandshake(t *testing.T) {
	surface := &fakeSurface{locErr: handshake.ErrCrossOrigin}
	gw := &mockGateway{
		connectResp: &domain.ConnectResponse{RequiresAuthCode: true, AuthURL: "https://fyers.example/oauth"},
	}
	service, _ := newTestService(t, gw, &fakeOpener{surface: surface})

	_, err := service.Link(context.Background(), domain.BrokerFyers, map[string]string{"user_id": "FY0001"})
	require.NoError(t, err)

	_, err = service.Link(context.Background(), domain.BrokerFyers, map[string]string{"user_id": "FY0001"})
	assert.ErrorIs(t, err, handshake.ErrHandshakeInFlight)

	require.NoError(t, service.CancelHandshake("FY0001"))
}

func TestLinkValidation(t *testing.T) {
	service, _ := newTestService(t, &mockGateway{}, &fakeOpener{surface: &fakeSurface{}})

	_, err := service.Link(context.Background(), "zerodha", map[string]string{"user_id": "X"})
	assert.Error(t, err)

	_, err = service.Link(context.Background(), domain.BrokerShoonya, map[string]string{})
	assert.Error(t, err)
}

func TestDeactivateAndUnlink(t *testing.T) {
	gw := &mockGateway{
		connectResp: &domain.ConnectResponse{
			Account: &domain.AccountSummary{AccountID: "FA0001", BrokerKind: "shoonya"},
		},
	}
	service, _ := newTestService(t, gw, &fakeOpener{surface: &fakeSurface{}})

	_, err := service.Link(context.Background(), domain.BrokerShoonya, map[string]string{"user_id": "FA0001"})
	require.NoError(t, err)

	require.NoError(t, service.Deactivate(context.Background(), "FA0001"))
	account, err := service.Get(context.Background(), "FA0001")
	require.NoError(t, err)
	assert.False(t, account.IsActive)

	require.NoError(t, service.Unlink(context.Background(), "FA0001"))
	_, err = service.Get(context.Background(), "FA0001")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	assert.ErrorIs(t, service.Deactivate(context.Background(), "missing"), ErrAccountNotFound)
	assert.ErrorIs(t, service.Unlink(context.Background(), "missing"), ErrAccountNotFound)
}

func TestSweepExpiredSessions(t *testing.T) {
	service, repo := newTestService(t, &mockGateway{}, &fakeOpener{surface: &fakeSurface{}})
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, domain.BrokerAccount{AccountID: "expired-1", BrokerKind: domain.BrokerShoonya, IsActive: true, SessionExpiry: &past}))
	require.NoError(t, repo.Upsert(ctx, domain.BrokerAccount{AccountID: "fresh-1", BrokerKind: domain.BrokerFyers, IsActive: true, SessionExpiry: &future}))
	require.NoError(t, repo.Upsert(ctx, domain.BrokerAccount{AccountID: "no-expiry", BrokerKind: domain.BrokerShoonya, IsActive: true}))

	swept, err := service.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	active, err := service.ActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "fresh-1", active[0].AccountID)
	assert.Equal(t, "no-expiry", active[1].AccountID)

	// Sweeping again touches nothing
	swept, err = service.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestActivateUnknownAccount(t *testing.T) {
	service, _ := newTestService(t, &mockGateway{}, &fakeOpener{surface: &fakeSurface{}})

	_, err := service.Activate(context.Background(), "GHOST", nil)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestActivateStartsFreshHandshake(t *testing.T) {
	gw := &mockGateway{
		connectResp: &domain.ConnectResponse{
			RequiresAuthCode: true,
			AuthURL:          "https://broker.example/auth",
		},
	}
	surface := &fakeSurface{locErr: handshake.ErrCrossOrigin}
	service, repo := newTestService(t, gw, &fakeOpener{surface: surface})

	// An expired, deactivated account already on file
	require.NoError(t, repo.Upsert(context.Background(), domain.BrokerAccount{
		AccountID:  "FY0001",
		BrokerKind: domain.BrokerFyers,
		IsActive:   false,
	}))

	outcome, err := service.Activate(context.Background(), "FY0001", map[string]string{"api_key": "k"})
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.HandshakeID)
	assert.Equal(t, "https://broker.example/auth", outcome.AuthURL)

	// A second activation while the handshake is pending is rejected
	_, err = service.Activate(context.Background(), "FY0001", map[string]string{"api_key": "k"})
	assert.ErrorIs(t, err, handshake.ErrHandshakeInFlight)

	require.NoError(t, service.CancelHandshake("FY0001"))
}
