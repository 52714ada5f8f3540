// Package accounts manages linked broker accounts and their session
// lifecycle.
package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

// Repository persists broker accounts in the accounts database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates an account repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Upsert inserts or refreshes an account row.
func (r *Repository) Upsert(ctx context.Context, account domain.BrokerAccount) error {
	query := `
		INSERT INTO broker_accounts (account_id, broker_kind, is_active, session_expiry, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET
			broker_kind = excluded.broker_kind,
			is_active = excluded.is_active,
			session_expiry = excluded.session_expiry,
			updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query,
		account.AccountID, string(account.BrokerKind), boolToInt(account.IsActive), account.SessionExpiry)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.AccountID, err)
	}
	return nil
}

// Get returns one account or sql.ErrNoRows.
func (r *Repository) Get(ctx context.Context, accountID string) (*domain.BrokerAccount, error) {
	query := `
		SELECT account_id, broker_kind, is_active, session_expiry
		FROM broker_accounts WHERE account_id = ?`

	return r.scanOne(r.db.QueryRowContext(ctx, query, accountID))
}

// List returns all linked accounts ordered by account id.
func (r *Repository) List(ctx context.Context) ([]domain.BrokerAccount, error) {
	query := `
		SELECT account_id, broker_kind, is_active, session_expiry
		FROM broker_accounts ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListActive returns the accounts currently eligible for order
// placement: active with an unexpired session.
func (r *Repository) ListActive(ctx context.Context, now time.Time) ([]domain.BrokerAccount, error) {
	query := `
		SELECT account_id, broker_kind, is_active, session_expiry
		FROM broker_accounts
		WHERE is_active = 1 AND (session_expiry IS NULL OR session_expiry > ?)
		ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// SetActive flips the active flag. Returns sql.ErrNoRows for unknown
// accounts.
func (r *Repository) SetActive(ctx context.Context, accountID string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE broker_accounts SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE account_id = ?`,
		boolToInt(active), accountID)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", accountID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an account row.
func (r *Repository) Delete(ctx context.Context, accountID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM broker_accounts WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", accountID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateExpired marks accounts with expired sessions inactive and
// returns the ids it touched.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT account_id FROM broker_accounts
		WHERE is_active = 1 AND session_expiry IS NOT NULL AND session_expiry <= ?`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired sessions: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	err = database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		for _, id := range expired {
			if _, err := tx.ExecContext(ctx,
				`UPDATE broker_accounts SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE account_id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *Repository) scanOne(row *sql.Row) (*domain.BrokerAccount, error) {
	var account domain.BrokerAccount
	var brokerKind string
	var isActive int
	var sessionExpiry sql.NullTime

	if err := row.Scan(&account.AccountID, &brokerKind, &isActive, &sessionExpiry); err != nil {
		return nil, err
	}
	account.BrokerKind = domain.BrokerKind(brokerKind)
	account.IsActive = isActive != 0
	if sessionExpiry.Valid {
		expiry := sessionExpiry.Time
		account.SessionExpiry = &expiry
	}
	return &account, nil
}

func (r *Repository) scanAll(rows *sql.Rows) ([]domain.BrokerAccount, error) {
	var accounts []domain.BrokerAccount
	for rows.Next() {
		var account domain.BrokerAccount
		var brokerKind string
		var isActive int
		var sessionExpiry sql.NullTime

		if err := rows.Scan(&account.AccountID, &brokerKind, &isActive, &sessionExpiry); err != nil {
			return nil, err
		}
		account.BrokerKind = domain.BrokerKind(brokerKind)
		account.IsActive = isActive != 0
		if sessionExpiry.Valid {
			expiry := sessionExpiry.Time
			account.SessionExpiry = &expiry
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
