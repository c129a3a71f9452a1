package admission

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TwoFactorConfirmations manages the one-time second-factor markers.
type TwoFactorConfirmations interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*TwoFactorConfirmation, error)
	Create(ctx context.Context, record *TwoFactorConfirmation) (*TwoFactorConfirmation, error)

	// Consume deletes the confirmation for the user and reports whether a row
	// was actually removed. A single conditional delete, never read-then-delete:
	// under concurrent sign-ins only one caller can observe true.
	Consume(ctx context.Context, userID uuid.UUID) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (bool, error)
}

type twoFactorConfirmations struct {
	db *bun.DB
}

var _ TwoFactorConfirmations = (*twoFactorConfirmations)(nil)

func NewTwoFactorConfirmationsRepository(db *bun.DB) TwoFactorConfirmations {
	return &twoFactorConfirmations{db: db}
}

func (r *twoFactorConfirmations) FindByUserID(ctx context.Context, userID uuid.UUID) (*TwoFactorConfirmation, error) {
	record := &TwoFactorConfirmation{}
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

func (r *twoFactorConfirmations) Create(ctx context.Context, record *TwoFactorConfirmation) (*TwoFactorConfirmation, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	_, err := r.db.NewInsert().
		Model(record).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *twoFactorConfirmations) Consume(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.ConsumeTx(ctx, r.db, userID)
}

func (r *twoFactorConfirmations) ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*TwoFactorConfirmation)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
