package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
)

// ErrRefreshInvalid is returned when a refresh token is unknown, revoked or
// expired.  Callers answer 401 without telling the cases apart.
var ErrRefreshInvalid = errors.New("refresh token invalid")

// TokenRepo stores refresh tokens by SHA-256 hash; the raw token never
// reaches the database.  A token is live while revoked_at is NULL and
// expires_at is in the future.
type TokenRepo struct {
	db  *database.DB
	now func() time.Time
}

func NewTokenRepo(db *database.DB) *TokenRepo {
	return &TokenRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// StoreRefresh records a new live token for userID.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	const q = `INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.Conn(ctx).ExecContext(ctx, q, userID, tokenHash, exp.UTC(), r.now()); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// ValidateRefresh returns the owner of a live token without consuming it.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	const q = `SELECT user_id FROM refresh_tokens
	           WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`
	var userID uint64
	err := r.db.Conn(ctx).QueryRowContext(ctx, q, tokenHash, r.now()).Scan(&userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrRefreshInvalid
	case err != nil:
		return 0, fmt.Errorf("validate refresh token: %w", err)
	}
	return userID, nil
}

// ConsumeRefresh revokes a live token and returns its owner.  The revoke is
// a conditional update checked by affected rows, so when the same token is
// presented twice concurrently exactly one caller gets the user ID and the
// other gets ErrRefreshInvalid.
func (r *TokenRepo) ConsumeRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		id, err := r.ValidateRefresh(ctx, tokenHash)
		if err != nil {
			return err
		}
		const q = `UPDATE refresh_tokens SET revoked_at = ?
		           WHERE token_hash = ? AND revoked_at IS NULL`
		res, err := r.db.Conn(ctx).ExecContext(ctx, q, r.now(), tokenHash)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		} else if n != 1 {
			return ErrRefreshInvalid
		}
		userID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// RevokeAllForUser ends every session of userID.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	const q = `UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`
	if _, err := r.db.Conn(ctx).ExecContext(ctx, q, r.now(), userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}
