package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/models"
)

// CreditPayment атомарно проводит начисление по завершённому платежу:
// в одной транзакции проверяет журнал на повтор payment_id, блокирует
// строку пользователя (создав её при необходимости), применяет apply
// к актуальному состоянию под блокировкой, записывает пользователя и
// добавляет запись в журнал.
//
// Повторный payment_id возвращает errs.ErrAlreadyProcessed; уникальный
// индекс по payment_id страхует от гонки между проверкой и вставкой.
func (s *Storage) CreditPayment(ctx context.Context, uid, username string,
	apply func(current *models.User) (*models.User, error),
	txn models.Transaction) (*models.User, error) {
	const op = "storage.CreditPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pi_transactions WHERE payment_id = $1)`,
		txn.PaymentID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrAlreadyProcessed)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO users (uid, username) VALUES ($1, $2)
		 ON CONFLICT (uid) DO NOTHING`, uid, username); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u := &models.User{}
	var premiumExpiry sql.NullTime
	if err = tx.QueryRowContext(ctx,
		`SELECT uid, username, is_premium, premium_expiry, created_at, updated_at
		 FROM users WHERE uid = $1 FOR UPDATE`, uid).Scan(
		&u.UID, &u.Username, &u.IsPremium, &premiumExpiry,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if premiumExpiry.Valid {
		u.PremiumExpiry = &premiumExpiry.Time
	}

	updated, err := apply(u)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET is_premium = $2, premium_expiry = $3, updated_at = now()
		 WHERE uid = $1`,
		updated.UID, updated.IsPremium, updated.PremiumExpiry); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.QueryRowContext(ctx,
		`INSERT INTO pi_transactions (user_uid, payment_id, amount, status, txid, raw_details)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, processed_at`,
		txn.UserUID, txn.PaymentID, txn.Amount, txn.Status, txn.TxID,
		[]byte(txn.RawDetails)).Scan(&txn.ID, &txn.ProcessedAt); err != nil {
		var pgErr *pgconn.PgError
		// 23505 — нарушение уникальности payment_id при гонке завершений.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrAlreadyProcessed)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// ListTransactions возвращает журнал транзакций пользователя,
// отсортированный от новых к старым, не более limit записей.
func (s *Storage) ListTransactions(ctx context.Context, uid string, limit int) ([]*models.Transaction, error) {
	const op = "storage.ListTransactions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, payment_id, amount, status, txid, raw_details, processed_at
			  FROM pi_transactions
			  WHERE user_uid = $1
			  ORDER BY processed_at DESC, id DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var raw []byte
		if err := rows.Scan(&t.ID, &t.UserUID, &t.PaymentID, &t.Amount,
			&t.Status, &t.TxID, &raw, &t.ProcessedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		t.RawDetails = raw
		result = append(result, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
