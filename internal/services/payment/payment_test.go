package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/models"
	"github.com/mirfateev/pi-premium/internal/piclient"
	"github.com/mirfateev/pi-premium/internal/rabbitmq"
)

// ProviderMock реализует интерфейс ProviderClient
type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) ApprovePayment(ctx context.Context, paymentID string) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}
func (m *ProviderMock) CompletePayment(ctx context.Context, paymentID, txid string) error {
	args := m.Called(ctx, paymentID, txid)
	return args.Error(0)
}
func (m *ProviderMock) GetPayment(ctx context.Context, paymentID string) (*piclient.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*piclient.Payment), args.Error(1)
}

// EventsMock реализует интерфейс Events
type EventsMock struct{ mock.Mock }

func (m *EventsMock) Publish(routingKey string, event rabbitmq.PaymentEvent) error {
	args := m.Called(routingKey, event)
	return args.Error(0)
}

// memStorage — потокобезопасное хранилище в памяти с семантикой
// CreditPayment: блокировка по пользователю, проверка повторного
// payment_id и атомарная запись пользователя и транзакции.
type memStorage struct {
	mu         sync.Mutex
	users      map[string]*models.User
	ledger     map[string]struct{}
	txns       map[string][]*models.Transaction
	failCredit bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		users:  make(map[string]*models.User),
		ledger: make(map[string]struct{}),
		txns:   make(map[string][]*models.Transaction),
	}
}

func (s *memStorage) GetUser(_ context.Context, uid string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, fmt.Errorf("memStorage.GetUser: %w", errs.ErrUserNotFound)
	}
	copied := *u
	return &copied, nil
}

func (s *memStorage) CreditPayment(_ context.Context, uid, username string,
	apply func(current *models.User) (*models.User, error),
	txn models.Transaction) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCredit {
		return nil, errors.New("memStorage.CreditPayment: connection refused")
	}
	if _, ok := s.ledger[txn.PaymentID]; ok {
		return nil, fmt.Errorf("memStorage.CreditPayment: %w", errs.ErrAlreadyProcessed)
	}

	current, ok := s.users[uid]
	if !ok {
		current = &models.User{UID: uid, Username: username}
	}
	updated, err := apply(current)
	if err != nil {
		return nil, err
	}

	stored := *updated
	s.users[uid] = &stored
	s.ledger[txn.PaymentID] = struct{}{}
	txn.ProcessedAt = time.Now().UTC()
	s.txns[uid] = append(s.txns[uid], &txn)

	result := *updated
	return &result, nil
}

func testPayment(paymentID, payerUID string, amount float64) *piclient.Payment {
	return &piclient.Payment{
		Identifier: paymentID,
		UserUID:    payerUID,
		Amount:     amount,
		Raw:        []byte(`{"identifier":"` + paymentID + `"}`),
	}
}

func newTestService(repo Repository, provider ProviderClient, events Events) *Service {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(repo, provider, nil, events, logger)
}

func TestComplete_NewUser(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-1", "tx-1").Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-1").
		Return(testPayment("pay-1", "uid-1", 2), nil)

	svc := newTestService(repo, provider, nil)

	user, err := svc.Complete(context.Background(), "pay-1", "tx-1")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "uid-1", user.UID)
	assert.True(t, user.IsPremium)
	require.NotNil(t, user.PremiumExpiry)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), *user.PremiumExpiry, time.Minute)

	require.Len(t, repo.txns["uid-1"], 1)
	txn := repo.txns["uid-1"][0]
	assert.Equal(t, "pay-1", txn.PaymentID)
	assert.Equal(t, 2.0, txn.Amount)
	assert.Equal(t, "completed", txn.Status)
	assert.Equal(t, "tx-1", txn.TxID)
	assert.NotEmpty(t, txn.RawDetails)
	provider.AssertExpectations(t)
}

func TestComplete_StacksActivePremium(t *testing.T) {
	repo := newMemStorage()
	expiry := time.Now().UTC().AddDate(0, 0, 10)
	repo.users["uid-1"] = &models.User{
		UID:           "uid-1",
		Username:      "resident",
		IsPremium:     true,
		PremiumExpiry: &expiry,
	}

	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-2", "tx-2").Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-2").
		Return(testPayment("pay-2", "uid-1", 4), nil)

	svc := newTestService(repo, provider, nil)

	user, err := svc.Complete(context.Background(), "pay-2", "tx-2")
	require.NoError(t, err)

	// Активный доступ продлевается от текущей даты окончания: 10 + 60 дней.
	require.NotNil(t, user.PremiumExpiry)
	assert.WithinDuration(t, expiry.AddDate(0, 0, 60), *user.PremiumExpiry, time.Second)
	assert.Equal(t, "resident", user.Username)
}

func TestComplete_SubBlockAmount(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-3", "tx-3").Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-3").
		Return(testPayment("pay-3", "uid-1", 1), nil)

	svc := newTestService(repo, provider, nil)

	user, err := svc.Complete(context.Background(), "pay-3", "tx-3")
	require.NoError(t, err)

	// Меньше блока: дни не начисляются, но транзакция записывается.
	assert.False(t, user.IsPremium)
	assert.Nil(t, user.PremiumExpiry)
	require.Len(t, repo.txns["uid-1"], 1)
	assert.Equal(t, 1.0, repo.txns["uid-1"][0].Amount)
}

func TestComplete_PayerUnresolved(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-4", "tx-4").Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-4").
		Return(&piclient.Payment{Identifier: "pay-4", Amount: 2}, nil)

	svc := newTestService(repo, provider, nil)

	_, err := svc.Complete(context.Background(), "pay-4", "tx-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrProvider)

	assert.Empty(t, repo.users)
	assert.Empty(t, repo.ledger)
}

func TestComplete_ValidationError(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	svc := newTestService(repo, provider, nil)

	_, err := svc.Complete(context.Background(), "", "tx-5")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.Complete(context.Background(), "pay-5", "")
	assert.ErrorIs(t, err, errs.ErrValidation)

	// Внешние вызовы не выполнялись.
	provider.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestComplete_ProviderCompleteFails(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-6", "tx-6").
		Return(errors.New("status 400"))

	svc := newTestService(repo, provider, nil)

	_, err := svc.Complete(context.Background(), "pay-6", "tx-6")
	assert.ErrorIs(t, err, errs.ErrProvider)
	assert.Empty(t, repo.users)
	provider.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
}

func TestComplete_DuplicatePayment(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-7", "tx-7").Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-7").
		Return(testPayment("pay-7", "uid-1", 2), nil)

	svc := newTestService(repo, provider, nil)

	first, err := svc.Complete(context.Background(), "pay-7", "tx-7")
	require.NoError(t, err)

	second, err := svc.Complete(context.Background(), "pay-7", "tx-7")
	require.NoError(t, err)

	// Повтор — no-op: дата не изменилась, вторая запись не появилась.
	require.NotNil(t, second.PremiumExpiry)
	assert.True(t, first.PremiumExpiry.Equal(*second.PremiumExpiry))
	assert.Len(t, repo.txns["uid-1"], 1)
}

func TestComplete_CreditFailure(t *testing.T) {
	repo := newMemStorage()
	repo.failCredit = true

	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, "pay-8", "tx-8").Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-8").
		Return(testPayment("pay-8", "uid-1", 2), nil)

	events := new(EventsMock)
	events.On("Publish", rabbitmq.RouteCreditFailed, mock.AnythingOfType("rabbitmq.PaymentEvent")).
		Return(nil)

	svc := newTestService(repo, provider, events)

	_, err := svc.Complete(context.Background(), "pay-8", "tx-8")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrCreditNotRecorded)
	events.AssertExpectations(t)
}

// Два конкурентных завершения для одного пользователя дают суммарное
// продление без потерянных обновлений.
func TestComplete_ConcurrentCompletions(t *testing.T) {
	repo := newMemStorage()
	provider := new(ProviderMock)
	provider.On("CompletePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	provider.On("GetPayment", mock.Anything, "pay-a").
		Return(testPayment("pay-a", "uid-1", 2), nil)
	provider.On("GetPayment", mock.Anything, "pay-b").
		Return(testPayment("pay-b", "uid-1", 2), nil)

	svc := newTestService(repo, provider, nil)

	var wg sync.WaitGroup
	for _, id := range []string{"pay-a", "pay-b"} {
		wg.Add(1)
		go func(paymentID string) {
			defer wg.Done()
			_, err := svc.Complete(context.Background(), paymentID, "tx-"+paymentID)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	final, err := repo.GetUser(context.Background(), "uid-1")
	require.NoError(t, err)
	require.NotNil(t, final.PremiumExpiry)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 60), *final.PremiumExpiry, time.Minute)
	assert.Len(t, repo.txns["uid-1"], 2)
}

func TestApprove(t *testing.T) {
	tests := []struct {
		name      string
		paymentID string
		setupMock func(*ProviderMock)
		wantErr   error
	}{
		{
			name:      "успешное подтверждение",
			paymentID: "pay-1",
			setupMock: func(m *ProviderMock) {
				m.On("ApprovePayment", mock.Anything, "pay-1").Return(nil)
			},
			wantErr: nil,
		},
		{
			name:      "пустой идентификатор платежа",
			paymentID: "",
			setupMock: func(_ *ProviderMock) {},
			wantErr:   errs.ErrValidation,
		},
		{
			name:      "провайдер отклонил подтверждение",
			paymentID: "pay-2",
			setupMock: func(m *ProviderMock) {
				m.On("ApprovePayment", mock.Anything, "pay-2").
					Return(errors.New("status 404"))
			},
			wantErr: errs.ErrProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(ProviderMock)
			tt.setupMock(provider)
			svc := newTestService(newMemStorage(), provider, nil)

			err := svc.Approve(context.Background(), tt.paymentID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			provider.AssertExpectations(t)
		})
	}
}
