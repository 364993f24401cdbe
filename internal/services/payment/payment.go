// Package payment реализует оркестратор завершения платежей сети Pi.
//
// Завершение платежа — единый проход: валидация входа, подтверждение
// завершения у провайдера, получение авторитетных деталей платежа,
// расчёт начисления и атомарная фиксация в хранилище. Локальное
// состояние между шагами не хранится, ретраи — ответственность
// вызывающей стороны.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirfateev/pi-premium/internal/cache"
	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/lib/sl"
	"github.com/mirfateev/pi-premium/internal/models"
	"github.com/mirfateev/pi-premium/internal/piclient"
	"github.com/mirfateev/pi-premium/internal/rabbitmq"
	"github.com/mirfateev/pi-premium/internal/services/entitlement"
)

// defaultUsername присваивается плательщику, которого ещё не было
// в хранилище; при первой верификации имя обновится.
const defaultUsername = "pioneer"

// Repository описывает контракт хранилища для начисления платежей.
type Repository interface {
	// GetUser возвращает пользователя по uid или errs.ErrUserNotFound.
	GetUser(ctx context.Context, uid string) (*models.User, error)
	// CreditPayment атомарно применяет apply к записи пользователя
	// и добавляет запись в журнал транзакций.
	CreditPayment(ctx context.Context, uid, username string,
		apply func(current *models.User) (*models.User, error),
		txn models.Transaction) (*models.User, error)
}

// ProviderClient описывает вызовы платёжной сети, которые нужны оркестратору.
type ProviderClient interface {
	ApprovePayment(ctx context.Context, paymentID string) error
	CompletePayment(ctx context.Context, paymentID, txid string) error
	GetPayment(ctx context.Context, paymentID string) (*piclient.Payment, error)
}

// Cache описывает инвалидацию кешированных представлений пользователя.
type Cache interface {
	Invalidate(key string) error
}

// Events описывает публикацию событий обработки платежей.
type Events interface {
	Publish(routingKey string, event rabbitmq.PaymentEvent) error
}

// Service координирует завершение платежа и начисление премиум-дней.
type Service struct {
	repo     Repository
	provider ProviderClient
	cache    Cache
	events   Events
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, provider ProviderClient, cache Cache, events Events, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		cache:    cache,
		events:   events,
		log:      log,
	}
}

// Approve подтверждает платёж на стороне сервера приложения.
func (s *Service) Approve(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return fmt.Errorf("%w: payment id is required", errs.ErrValidation)
	}
	if err := s.provider.ApprovePayment(ctx, paymentID); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrProvider, err)
	}
	s.log.Info("payment approved", slog.String("payment_id", paymentID))
	return nil
}

// Complete завершает платёж: подтверждает его у провайдера, получает
// детали, начисляет премиум-дни плательщику и записывает транзакцию.
// Возвращает обновлённую запись пользователя.
//
// Повторное завершение уже обработанного payment_id — no-op, который
// возвращает текущее состояние пользователя без начисления.
func (s *Service) Complete(ctx context.Context, paymentID, txid string) (*models.User, error) {
	if paymentID == "" || txid == "" {
		return nil, fmt.Errorf("%w: payment id and txid are required", errs.ErrValidation)
	}

	if err := s.provider.CompletePayment(ctx, paymentID, txid); err != nil {
		return nil, fmt.Errorf("%w: complete call failed: %w", errs.ErrProvider, err)
	}

	details, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: payment lookup failed: %w", errs.ErrProvider, err)
	}

	payerUID, ok := details.PayerUID()
	if !ok {
		return nil, fmt.Errorf("%w: payer identifier not resolved", errs.ErrProvider)
	}

	additionalDays := entitlement.ComputeGrant(details.Amount)
	now := time.Now().UTC()

	txn := models.Transaction{
		UserUID:    payerUID,
		PaymentID:  paymentID,
		Amount:     details.Amount,
		Status:     "completed",
		TxID:       txid,
		RawDetails: details.Raw,
	}

	user, err := s.repo.CreditPayment(ctx, payerUID, defaultUsername,
		func(current *models.User) (*models.User, error) {
			updated := *current
			updated.PremiumExpiry = entitlement.ComputeNewExpiry(
				current.PremiumExpiry, current.IsPremium, additionalDays, now)
			// Нулевое начисление не трогает флаг, этот путь его не снимает.
			if additionalDays > 0 {
				updated.IsPremium = true
			}
			return &updated, nil
		}, txn)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyProcessed) {
			s.log.Warn("duplicate completion, no days credited",
				slog.String("payment_id", paymentID))
			current, getErr := s.repo.GetUser(ctx, payerUID)
			if getErr != nil {
				return nil, fmt.Errorf("%w: %w", errs.ErrStorage, getErr)
			}
			return current, nil
		}
		// Провайдер уже подтвердил завершение, а локальная запись не
		// удалась: отдельный вид ошибки плюс событие для сверки.
		s.publishEvent(rabbitmq.RouteCreditFailed, rabbitmq.PaymentEvent{
			UserUID:     payerUID,
			PaymentID:   paymentID,
			Amount:      details.Amount,
			DaysGranted: additionalDays,
			Reason:      err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", errs.ErrCreditNotRecorded, err)
	}

	s.log.Info("payment credited",
		slog.String("payment_id", paymentID),
		slog.String("user_uid", payerUID),
		slog.Int("days_granted", additionalDays))

	if s.cache != nil {
		if err := s.cache.Invalidate(cache.UserViewKey(payerUID)); err != nil {
			s.log.Warn("failed to invalidate user view cache", sl.Err(err))
		}
	}
	s.publishEvent(rabbitmq.RouteCompleted, rabbitmq.PaymentEvent{
		UserUID:     payerUID,
		PaymentID:   paymentID,
		Amount:      details.Amount,
		DaysGranted: additionalDays,
	})

	return user, nil
}

func (s *Service) publishEvent(routingKey string, event rabbitmq.PaymentEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(routingKey, event); err != nil {
		s.log.Warn("failed to publish payment event",
			slog.String("routing_key", routingKey), sl.Err(err))
	}
}
