package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/events"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
)

// ErrAccountNotFound is returned for operations on unknown accounts.
var ErrAccountNotFound = errors.New("account not found")

// completeAuthTimeout bounds the OAuth exchange that runs after a
// handshake delivers its code.
const completeAuthTimeout = 30 * time.Second

// LinkOutcome is the result of a link attempt. Either the account is
// active immediately, or a handshake was started and the caller must
// wait for (or submit) an auth code.
type LinkOutcome struct {
	Account     *domain.BrokerAccount `json:"account,omitempty"`
	HandshakeID string                `json:"handshakeId,omitempty"`
	AuthURL     string                `json:"authUrl,omitempty"`
}

// Service coordinates account linking, the auth handshake, and
// session lifecycle.
type Service struct {
	repo         *Repository
	gateway      domain.Gateway
	handshakes   *handshake.Registry
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates the account service.
func NewService(repo *Repository, gateway domain.Gateway, handshakes *handshake.Registry, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		gateway:      gateway,
		handshakes:   handshakes,
		eventManager: eventManager,
		log:          log.With().Str("service", "accounts").Logger(),
	}
}

// Link connects a broker account. Brokers that authenticate with
// credentials alone come back active; OAuth brokers get a handshake
// whose code completes the link asynchronously.
func (s *Service) Link(ctx context.Context, kind domain.BrokerKind, credentials map[string]string) (*LinkOutcome, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unsupported broker kind %q", kind)
	}
	accountID := credentials["user_id"]
	if accountID == "" {
		return nil, errors.New("credentials must include user_id")
	}

	resp, err := s.gateway.Connect(ctx, domain.ConnectRequest{
		BrokerKind:  kind,
		Credentials: credentials,
	})
	if err != nil {
		return nil, err
	}

	if !resp.RequiresAuthCode {
		if resp.Account == nil {
			return nil, errors.New("gateway returned neither an account nor an auth url")
		}
		account, err := s.storeLinked(ctx, *resp.Account)
		if err != nil {
			return nil, err
		}
		return &LinkOutcome{Account: account}, nil
	}

	h, err := s.handshakes.Begin(accountID, resp.AuthURL, handshake.StagedAuth{
		AccountID:   accountID,
		BrokerKind:  string(kind),
		Credentials: credentials,
		StartedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	go s.watchHandshake(h)

	return &LinkOutcome{HandshakeID: h.ID, AuthURL: resp.AuthURL}, nil
}

// watchHandshake completes the OAuth exchange when the handshake
// delivers a code, and logs terminal failures.
func (s *Service) watchHandshake(h *handshake.Handshake) {
	result := <-h.Done()
	if result.State != handshake.StateCodeReceived {
		s.log.Warn().
			Str("account_id", h.AccountID).
			Str("state", string(result.State)).
			Msg("Handshake finished without a code")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), completeAuthTimeout)
	defer cancel()

	if _, err := s.CompleteAuth(ctx, h.AccountID, result.AuthCode); err != nil {
		s.log.Error().
			Str("account_id", h.AccountID).
			Err(err).
			Msg("OAuth completion failed after handshake")
		s.eventManager.EmitError("accounts", err, map[string]interface{}{
			"account_id": h.AccountID,
			"stage":      "oauth_complete",
		})
	}
}

// CompleteAuth exchanges an auth code for an active session and
// stores the resulting account.
func (s *Service) CompleteAuth(ctx context.Context, accountID, authCode string) (*domain.BrokerAccount, error) {
	summary, err := s.gateway.CompleteOAuth(ctx, domain.CompleteOAuthRequest{
		AccountID: accountID,
		AuthCode:  authCode,
	})
	if err != nil {
		return nil, err
	}
	s.handshakes.ClearStaged(accountID)
	return s.storeLinked(ctx, *summary)
}

func (s *Service) storeLinked(ctx context.Context, summary domain.AccountSummary) (*domain.BrokerAccount, error) {
	account := domain.BrokerAccount{
		AccountID:     summary.AccountID,
		BrokerKind:    summary.BrokerKind,
		IsActive:      true,
		SessionExpiry: summary.SessionExpiry,
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", account.AccountID).
		Str("broker_kind", string(account.BrokerKind)).
		Msg("Broker account linked")
	s.eventManager.EmitTyped(events.AccountLinked, "accounts", &events.AccountEventData{
		AccountID:  account.AccountID,
		BrokerKind: string(account.BrokerKind),
		Phase:      "linked",
	})
	return &account, nil
}

// Activate re-authenticates an already linked account. The flow is the
// same as Link but keyed to the stored account: credential brokers come
// back active immediately, OAuth brokers get a fresh handshake. A
// second activation while one is pending is rejected by the registry.
func (s *Service) Activate(ctx context.Context, accountID string, credentials map[string]string) (*LinkOutcome, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if credentials == nil {
		credentials = map[string]string{}
	}
	credentials["user_id"] = accountID

	return s.Link(ctx, account.BrokerKind, credentials)
}

// SubmitAuthCode forwards a manually entered auth code to the
// account's in-flight handshake.
func (s *Service) SubmitAuthCode(accountID, code string) error {
	h, ok := s.handshakes.Get(accountID)
	if !ok {
		return handshake.ErrHandshakeFinished
	}
	return h.SubmitCode(code)
}

// CancelHandshake aborts the account's in-flight handshake.
func (s *Service) CancelHandshake(accountID string) error {
	h, ok := s.handshakes.Get(accountID)
	if !ok {
		return handshake.ErrHandshakeFinished
	}
	h.Cancel()
	return nil
}

// HandshakeState returns the state of the account's in-flight
// handshake, or false when none is running.
func (s *Service) HandshakeState(accountID string) (handshake.State, bool) {
	h, ok := s.handshakes.Get(accountID)
	if !ok {
		return "", false
	}
	return h.State(), true
}

// Deactivate marks an account inactive without unlinking it.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	if err := s.repo.SetActive(ctx, accountID, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	s.eventManager.EmitTyped(events.AccountDeactivated, "accounts", &events.AccountEventData{
		AccountID: accountID,
		Phase:     "deactivated",
	})
	return nil
}

// Unlink removes an account entirely.
func (s *Service) Unlink(ctx context.Context, accountID string) error {
	if h, ok := s.handshakes.Get(accountID); ok {
		h.Cancel()
	}
	if err := s.repo.Delete(ctx, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	s.eventManager.EmitTyped(events.AccountUnlinked, "accounts", &events.AccountEventData{
		AccountID: accountID,
		Phase:     "unlinked",
	})
	return nil
}

// List returns every linked account.
func (s *Service) List(ctx context.Context) ([]domain.BrokerAccount, error) {
	return s.repo.List(ctx)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, accountID string) (*domain.BrokerAccount, error) {
	account, err := s.repo.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// ActiveAccounts returns the accounts eligible for order placement.
func (s *Service) ActiveAccounts(ctx context.Context) ([]domain.BrokerAccount, error) {
	return s.repo.ListActive(ctx, time.Now())
}

// SweepExpiredSessions deactivates accounts whose sessions have
// lapsed. Run periodically by the scheduler.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int, error) {
	expired, err := s.repo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	for _, accountID := range expired {
		s.log.Info().Str("account_id", accountID).Msg("Session expired, account deactivated")
		s.eventManager.EmitTyped(events.SessionExpired, "accounts", &events.AccountEventData{
			AccountID: accountID,
			Phase:     "session_expired",
		})
	}
	return len(expired), nil
}
