package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// AccountAdapter implements out.AccountRepository, the core's read-only view
// of accounts onboarded by an external flow this module never writes to.
type AccountAdapter struct {
	db *sqlx.DB
}

func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

func (a *AccountAdapter) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	const query = `SELECT account_id, provider_kind, address, created_at FROM accounts WHERE account_id = $1`
	var acct domain.Account
	if err := a.db.QueryRowxContext(ctx, query, accountID).StructScan(&acct); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s not found", accountID)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acct, nil
}

var _ out.AccountRepository = (*AccountAdapter)(nil)
