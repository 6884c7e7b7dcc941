package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) UpsertUserOnLogin(ctx context.Context, uid, email, username string) (*models.User, error) {
	args := m.Called(ctx, uid, email, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) FindCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, bool, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Subscription), args.Bool(1), args.Error(2)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestGetProfile_CacheMissLoadsAndCaches(t *testing.T) {
	repo, cache := &RepoMock{}, &CacheMock{}
	svc := New(repo, cache, newNoopLogger())

	cache.On("Get", "profile:uid-1", mock.Anything).Return(false, nil).Once()
	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").Return(&models.User{
		UID:         "uid-1",
		Email:       "user@test.com",
		Username:    "testuser",
		CurrentTier: "pro",
		TrialUsed:   true,
	}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
		ProviderSubscriptionID: "sub_1",
		TierID:                 "pro",
		Status:                 models.StatusActive,
	}, true, nil).Once()
	cache.On("Set", "profile:uid-1", mock.Anything, 5*time.Minute).Return(nil).Once()

	p, err := svc.GetProfile(context.Background(), "uid-1", "user@test.com", "testuser")

	assert.NoError(t, err)
	assert.Equal(t, "pro", p.CurrentTier)
	assert.True(t, p.TrialUsed)
	assert.NotNil(t, p.Subscription)
	assert.Equal(t, "sub_1", p.Subscription.ProviderSubscriptionID)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestGetProfile_CacheHitSkipsStorage(t *testing.T) {
	repo, cache := &RepoMock{}, &CacheMock{}
	svc := New(repo, cache, newNoopLogger())

	cache.On("Get", "profile:uid-1", mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(**models.Profile)
		*out = &models.Profile{UID: "uid-1", CurrentTier: "vip"}
	}).Return(true, nil).Once()

	p, err := svc.GetProfile(context.Background(), "uid-1", "user@test.com", "testuser")

	assert.NoError(t, err)
	assert.Equal(t, "vip", p.CurrentTier)
	repo.AssertNotCalled(t, "UpsertUserOnLogin")
}

func TestGetProfile_WithoutSubscription(t *testing.T) {
	repo, cache := &RepoMock{}, &CacheMock{}
	svc := New(repo, cache, newNoopLogger())

	cache.On("Get", "profile:uid-1", mock.Anything).Return(false, nil).Once()
	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").Return(&models.User{
		UID:         "uid-1",
		CurrentTier: "basic",
	}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(nil, false, nil).Once()
	cache.On("Set", "profile:uid-1", mock.Anything, mock.Anything).Return(nil).Once()

	p, err := svc.GetProfile(context.Background(), "uid-1", "user@test.com", "testuser")

	assert.NoError(t, err)
	assert.Equal(t, "basic", p.CurrentTier)
	assert.Nil(t, p.Subscription)
}

func TestGetProfile_StorageError(t *testing.T) {
	repo, cache := &RepoMock{}, &CacheMock{}
	svc := New(repo, cache, newNoopLogger())

	cache.On("Get", "profile:uid-1", mock.Anything).Return(false, nil).Once()
	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").
		Return(nil, errors.New("connection refused")).Once()

	p, err := svc.GetProfile(context.Background(), "uid-1", "user@test.com", "testuser")

	assert.Error(t, err)
	assert.Nil(t, p)
	cache.AssertNotCalled(t, "Set")
}
