// Package profile содержит бизнес-логику чтения профиля пользователя.
// Чтение профиля одновременно регистрирует пользователя при первом
// обращении и обновляет время последнего входа.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

// UserRepository определяет методы хранилища для профиля.
type UserRepository interface {
	// UpsertUserOnLogin создаёт или обновляет пользователя и возвращает его состояние.
	UpsertUserOnLogin(ctx context.Context, uid, email, username string) (*models.User, error)
	// FindCurrentSubscription возвращает действующую подписку пользователя.
	FindCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, bool, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует получение профиля с кешированием.
type Service struct {
	repo  UserRepository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

const profileCacheTTL = 5 * time.Minute

// GetProfile возвращает профиль пользователя, используя кеш или хранилище.
// Кеш инвалидируется движком реконсиляции при изменении тарифа.
func (s *Service) GetProfile(ctx context.Context, uid, email, username string) (*models.Profile, error) {
	const op = "profile.GetProfile"

	cacheKey := fmt.Sprintf("profile:%s", uid)
	var cached *models.Profile
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read profile cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found && cached != nil {
		return cached, nil
	}

	user, err := s.repo.UpsertUserOnLogin(ctx, uid, email, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &models.Profile{
		UID:         user.UID,
		Email:       user.Email,
		Username:    user.Username,
		CurrentTier: user.CurrentTier,
		IsStudent:   user.IsStudent,
		TrialUsed:   user.TrialUsed,
	}
	sub, subFound, err := s.repo.FindCurrentSubscription(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if subFound {
		result.Subscription = sub
	}

	if err := s.cache.Set(cacheKey, result, profileCacheTTL); err != nil {
		s.log.Warn("failed to cache profile", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return result, nil
}
