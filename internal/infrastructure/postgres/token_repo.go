package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) CreateToken(ctx context.Context, userID string, purpose domain.TokenPurpose, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_tokens (id, user_id, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, string(purpose), tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// ClaimToken is a single UPDATE so two concurrent claims of the same token
// cannot both succeed.
func (r *TokenRepository) ClaimToken(ctx context.Context, purpose domain.TokenPurpose, tokenHash string) (*domain.ActionToken, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE user_tokens
		SET used_at = NOW()
		WHERE token_hash = $1
		  AND purpose = $2
		  AND used_at IS NULL
		  AND expires_at > NOW()
		RETURNING id, user_id, purpose, token_hash, expires_at, used_at, created_at`,
		tokenHash, string(purpose),
	)

	var (
		t  domain.ActionToken
		pp string
	)
	err := row.Scan(&t.ID, &t.UserID, &pp, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("claim token: %w", err)
	}
	t.Purpose = domain.TokenPurpose(pp)
	return &t, nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_tokens WHERE expires_at < $1 OR used_at IS NOT NULL`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
