package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/models"
)

func TestStorage_GetUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	expiry := time.Now().UTC().AddDate(0, 0, 30)
	factory.CreateUser(t, "uid-1", "stellar", true, &expiry)

	t.Run("существующий пользователь", func(t *testing.T) {
		user, err := storage.GetUser(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.Equal(t, "uid-1", user.UID)
		assert.Equal(t, "stellar", user.Username)
		assert.True(t, user.IsPremium)
		require.NotNil(t, user.PremiumExpiry)
		assert.WithinDuration(t, expiry, *user.PremiumExpiry, time.Second)
	})

	t.Run("неизвестный пользователь", func(t *testing.T) {
		_, err := storage.GetUser(context.Background(), "uid-404")
		assert.ErrorIs(t, err, errs.ErrUserNotFound)
	})
}

func TestStorage_UpsertUserIdentity(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	t.Run("создание нового пользователя", func(t *testing.T) {
		user, err := storage.UpsertUserIdentity(context.Background(), "uid-1", "stellar")
		require.NoError(t, err)
		assert.Equal(t, "uid-1", user.UID)
		assert.Equal(t, "stellar", user.Username)
		assert.False(t, user.IsPremium)
		assert.Nil(t, user.PremiumExpiry)
	})

	t.Run("обновление только имени", func(t *testing.T) {
		// Начисляем премиум другим путём, затем обновляем имя.
		expiry := time.Now().UTC().AddDate(0, 0, 30)
		_, err := storage.DB.Exec(
			`UPDATE users SET is_premium = TRUE, premium_expiry = $2 WHERE uid = $1`,
			"uid-1", expiry)
		require.NoError(t, err)

		user, err := storage.UpsertUserIdentity(context.Background(), "uid-1", "renamed")
		require.NoError(t, err)
		assert.Equal(t, "renamed", user.Username)
		// Премиум-поля не затрагиваются повторной верификацией.
		assert.True(t, user.IsPremium)
		require.NotNil(t, user.PremiumExpiry)
		assert.WithinDuration(t, expiry, *user.PremiumExpiry, time.Second)
	})
}

func creditTxn(paymentID, uid string, amount float64) models.Transaction {
	return models.Transaction{
		UserUID:    uid,
		PaymentID:  paymentID,
		Amount:     amount,
		Status:     "completed",
		TxID:       "tx-" + paymentID,
		RawDetails: []byte(fmt.Sprintf(`{"identifier":%q}`, paymentID)),
	}
}

func TestStorage_CreditPayment(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	expiry := time.Now().UTC().AddDate(0, 0, 30)
	grant := func(current *models.User) (*models.User, error) {
		updated := *current
		updated.IsPremium = true
		updated.PremiumExpiry = &expiry
		return &updated, nil
	}

	t.Run("начисление новому пользователю", func(t *testing.T) {
		user, err := storage.CreditPayment(context.Background(), "uid-1", "stellar",
			grant, creditTxn("pay-1", "uid-1", 2))
		require.NoError(t, err)
		assert.True(t, user.IsPremium)
		require.NotNil(t, user.PremiumExpiry)

		stored, err := storage.GetUser(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.True(t, stored.IsPremium)
		VerifyTransactionCount(t, storage, "pay-1", 1)
	})

	t.Run("повторный payment_id отклоняется", func(t *testing.T) {
		_, err := storage.CreditPayment(context.Background(), "uid-1", "stellar",
			grant, creditTxn("pay-1", "uid-1", 2))
		assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)
		VerifyTransactionCount(t, storage, "pay-1", 1)
	})

	t.Run("ошибка apply откатывает транзакцию", func(t *testing.T) {
		boom := errors.New("bad state")
		_, err := storage.CreditPayment(context.Background(), "uid-2", "other",
			func(_ *models.User) (*models.User, error) { return nil, boom },
			creditTxn("pay-2", "uid-2", 2))
		require.ErrorIs(t, err, boom)

		// Ни пользователь, ни запись журнала не зафиксированы.
		_, err = storage.GetUser(context.Background(), "uid-2")
		assert.ErrorIs(t, err, errs.ErrUserNotFound)
		VerifyTransactionCount(t, storage, "pay-2", 0)
	})

	t.Run("конкурентное завершение одного платежа", func(t *testing.T) {
		var successes, duplicates int
		var mu sync.Mutex
		var wg sync.WaitGroup

		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := storage.CreditPayment(context.Background(), "uid-3", "racer",
					grant, creditTxn("pay-race", "uid-3", 2))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, errs.ErrAlreadyProcessed):
					duplicates++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, duplicates)
		VerifyTransactionCount(t, storage, "pay-race", 1)
	})
}

func TestStorage_ListTransactions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, "uid-1", "stellar", false, nil)
	for i := 1; i <= 5; i++ {
		factory.CreateTransaction(t, creditTxn(fmt.Sprintf("pay-%d", i), "uid-1", float64(i)))
	}
	factory.CreateTransaction(t, creditTxn("pay-other", "uid-2", 2))

	t.Run("сортировка от новых к старым", func(t *testing.T) {
		txns, err := storage.ListTransactions(context.Background(), "uid-1", 10)
		require.NoError(t, err)
		require.Len(t, txns, 5)
		// При равном processed_at порядок определяется id.
		assert.Equal(t, "pay-5", txns[0].PaymentID)
		assert.Equal(t, "pay-1", txns[4].PaymentID)
	})

	t.Run("ограничение количества", func(t *testing.T) {
		txns, err := storage.ListTransactions(context.Background(), "uid-1", 2)
		require.NoError(t, err)
		assert.Len(t, txns, 2)
	})

	t.Run("пустой журнал", func(t *testing.T) {
		txns, err := storage.ListTransactions(context.Background(), "uid-404", 10)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})
}
