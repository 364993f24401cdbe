// Package identity реализует верификацию пользователей платёжной сети
// и составление представления их премиум-статуса.
//
// Доверенным источником идентификатора является ответ провайдера на
// токен доступа; присланные клиентом имя и uid используются только как
// запасная подпись, но не для аутентификации.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirfateev/pi-premium/internal/cache"
	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/lib/jwt"
	"github.com/mirfateev/pi-premium/internal/lib/sl"
	"github.com/mirfateev/pi-premium/internal/models"
	"github.com/mirfateev/pi-premium/internal/piclient"
	"github.com/mirfateev/pi-premium/internal/services/entitlement"
)

const (
	// recentTransactionsLimit ограничивает историю в UserView,
	// чтобы связать размер ответа.
	recentTransactionsLimit = 10
	// viewTTL — время жизни кешированного представления.
	viewTTL = time.Minute
	// defaultUsername присваивается, когда ни провайдер, ни клиент
	// не дали отображаемого имени.
	defaultUsername = "pioneer"
)

// Repository описывает контракт хранилища для верификации и статуса.
type Repository interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
	// UpsertUserIdentity создаёт пользователя либо обновляет только имя.
	UpsertUserIdentity(ctx context.Context, uid, username string) (*models.User, error)
	ListTransactions(ctx context.Context, uid string, limit int) ([]*models.Transaction, error)
}

// Provider описывает идентификационный вызов платёжной сети.
type Provider interface {
	Me(ctx context.Context, accessToken string) (*piclient.Profile, error)
}

// Cache описывает кеш представлений пользователя.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// Service отвечает за верификацию токена доступа и запросы статуса.
type Service struct {
	repo     Repository
	provider Provider
	cache    Cache
	jwtMaker jwt.Maker
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, provider Provider, cache Cache, jwtMaker jwt.Maker, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		cache:    cache,
		jwtMaker: jwtMaker,
		log:      log,
	}
}

// Verify проверяет токен доступа через провайдера, создаёт либо
// обновляет локальную запись пользователя и возвращает представление
// вместе с JWT сессии приложения.
func (s *Service) Verify(ctx context.Context, accessToken, fallbackUsername string) (*models.UserView, string, error) {
	if accessToken == "" {
		return nil, "", fmt.Errorf("%w: access token is required", errs.ErrValidation)
	}

	profile, err := s.provider.Me(ctx, accessToken)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	if profile.UID == "" {
		return nil, "", fmt.Errorf("%w: provider returned no uid", errs.ErrUnauthorized)
	}

	username := profile.Username
	if username == "" {
		username = fallbackUsername
	}
	if username == "" {
		username = defaultUsername
	}

	user, err := s.repo.UpsertUserIdentity(ctx, profile.UID, username)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}

	token, err := s.jwtMaker.GenerateToken(user.Username, "user", user.UID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: generate session token: %w", errs.ErrStorage, err)
	}

	view, err := s.composeView(ctx, user)
	if err != nil {
		return nil, "", err
	}
	s.cacheView(view)

	s.log.Info("identity verified", slog.String("user_uid", user.UID))
	return view, token, nil
}

// Status возвращает представление пользователя по uid.
// Для неизвестного uid возвращает errs.ErrUserNotFound.
func (s *Service) Status(ctx context.Context, uid string) (*models.UserView, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: user uid is required", errs.ErrValidation)
	}

	if s.cache != nil {
		var cached models.UserView
		found, err := s.cache.Get(cache.UserViewKey(uid), &cached)
		if err != nil {
			s.log.Warn("failed to read user view cache", sl.Err(err))
		}
		if found {
			// Производные поля пересчитываются: кешированное значение
			// могло устареть относительно premium_expiry.
			cached.RemainingDays = entitlement.ComputeRemainingDays(cached.PremiumExpiry, time.Now().UTC())
			cached.IsPremium = cached.IsPremium && cached.RemainingDays > 0
			return &cached, nil
		}
	}

	user, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	view, err := s.composeView(ctx, user)
	if err != nil {
		return nil, err
	}
	s.cacheView(view)
	return view, nil
}

// composeView собирает UserView: премиум-статус пересчитывается из
// даты окончания, хранимый флаг сам по себе не является истиной.
func (s *Service) composeView(ctx context.Context, user *models.User) (*models.UserView, error) {
	txns, err := s.repo.ListTransactions(ctx, user.UID, recentTransactionsLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}

	remaining := entitlement.ComputeRemainingDays(user.PremiumExpiry, time.Now().UTC())
	return &models.UserView{
		UID:                user.UID,
		Username:           user.Username,
		IsPremium:          user.IsPremium && remaining > 0,
		PremiumExpiry:      user.PremiumExpiry,
		RemainingDays:      remaining,
		RecentTransactions: txns,
	}, nil
}

func (s *Service) cacheView(view *models.UserView) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(cache.UserViewKey(view.UID), view, viewTTL); err != nil {
		s.log.Warn("failed to cache user view", sl.Err(err))
	}
}
