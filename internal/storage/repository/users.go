package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/models"
)

// GetUser возвращает пользователя по его uid в сети Pi.
// Для неизвестного uid возвращает errs.ErrUserNotFound.
func (s *Storage) GetUser(ctx context.Context, uid string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, username, is_premium, premium_expiry, created_at, updated_at
			  FROM users
			  WHERE uid = $1`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, uid)

	var premiumExpiry sql.NullTime
	if err := row.Scan(&u.UID, &u.Username, &u.IsPremium, &premiumExpiry,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if premiumExpiry.Valid {
		u.PremiumExpiry = &premiumExpiry.Time
	}
	return u, nil
}

// UpsertUserIdentity создаёт пользователя при первом появлении либо
// обновляет только отображаемое имя. Поля премиум-доступа этим путём
// не затрагиваются, чтобы не гоняться с конкурентным начислением.
func (s *Storage) UpsertUserIdentity(ctx context.Context, uid, username string) (*models.User, error) {
	const op = "storage.UpsertUserIdentity"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (uid, username)
			  VALUES ($1, $2)
			  ON CONFLICT (uid) DO UPDATE
			      SET username = EXCLUDED.username,
			          updated_at = now()
			  RETURNING uid, username, is_premium, premium_expiry, created_at, updated_at`
	u := &models.User{}
	var premiumExpiry sql.NullTime
	if err := s.DB.QueryRowContext(ctx, query, uid, username).Scan(
		&u.UID, &u.Username, &u.IsPremium, &premiumExpiry,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if premiumExpiry.Valid {
		u.PremiumExpiry = &premiumExpiry.Time
	}
	return u, nil
}
