package admission

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LinkedAccounts manages federated account associations.
type LinkedAccounts interface {
	// FindByUserID returns the first linked account for the user, if any.
	// It is enough for the isOAuth claim, which only cares about existence.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*LinkedAccount, error)
	FindByProviderID(ctx context.Context, provider, providerUserID string) (*LinkedAccount, error)
	ExistsForUser(ctx context.Context, userID uuid.UUID) (bool, error)
	Link(ctx context.Context, account *LinkedAccount) (*LinkedAccount, error)
	LinkTx(ctx context.Context, tx bun.IDB, account *LinkedAccount) (*LinkedAccount, error)
}

type linkedAccounts struct {
	db *bun.DB
}

var _ LinkedAccounts = (*linkedAccounts)(nil)

func NewLinkedAccountsRepository(db *bun.DB) LinkedAccounts {
	return &linkedAccounts{db: db}
}

func (r *linkedAccounts) FindByUserID(ctx context.Context, userID uuid.UUID) (*LinkedAccount, error) {
	record := &LinkedAccount{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"user_id": userID.String()})
		}
		return nil, err
	}
	return record, nil
}

func (r *linkedAccounts) FindByProviderID(ctx context.Context, provider, providerUserID string) (*LinkedAccount, error) {
	record := &LinkedAccount{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ? AND ?TableAlias.provider_user_id = ?", provider, providerUserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"provider":         provider,
					"provider_user_id": providerUserID,
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *linkedAccounts) ExistsForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*LinkedAccount)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exists(ctx)
}

func (r *linkedAccounts) Link(ctx context.Context, account *LinkedAccount) (*LinkedAccount, error) {
	return r.LinkTx(ctx, r.db, account)
}

func (r *linkedAccounts) LinkTx(ctx context.Context, tx bun.IDB, account *LinkedAccount) (*LinkedAccount, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	// Repeat linkage of the same federated identity is a no-op.
	_, err := tx.NewInsert().
		Model(account).
		On("CONFLICT (provider, provider_user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return account, nil
}
