package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v78"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
	"github.com/magabrotheeeer/billing-reconciler/internal/tiers"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) UpsertUserOnLogin(ctx context.Context, uid, email, username string) (*models.User, error) {
	args := m.Called(ctx, uid, email, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	return m.Called(ctx, userUID, customerID).Error(0)
}

func (m *RepoMock) FindCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, bool, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Subscription), args.Bool(1), args.Error(2)
}

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) CreateCustomer(ctx context.Context, email, name, userUID string) (*stripe.Customer, error) {
	args := m.Called(ctx, email, name, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Customer), args.Error(1)
}

func (m *ProviderMock) CreateCheckoutSession(ctx context.Context, customerID, userUID, priceID string, trialDays int64) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, customerID, userUID, priceID, trialDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *ProviderMock) CreatePortalSession(ctx context.Context, customerID string) (*stripe.BillingPortalSession, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.BillingPortalSession), args.Error(1)
}

func (m *ProviderMock) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID, newPriceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *ProviderMock) ScheduleCancellation(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *ProviderMock) ListInvoices(ctx context.Context, customerID string, limit int64) ([]*stripe.Invoice, error) {
	args := m.Called(ctx, customerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*stripe.Invoice), args.Error(1)
}

type CatalogMock struct{ mock.Mock }

func (m *CatalogMock) FindByTier(tier string, student bool, interval string) (tiers.Entry, error) {
	args := m.Called(tier, student, interval)
	return args.Get(0).(tiers.Entry), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestCreateCheckoutSession_NewCustomerWithTrial(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").Return(&models.User{
		UID:      "uid-1",
		Email:    "user@test.com",
		Username: "testuser",
	}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(nil, false, nil).Once()
	catalog.On("FindByTier", "pro", false, "").Return(tiers.Entry{PriceID: "price_pro", Tier: "pro"}, nil).Once()
	provider.On("CreateCustomer", mock.Anything, "user@test.com", "testuser", "uid-1").
		Return(&stripe.Customer{ID: "cus_new"}, nil).Once()
	repo.On("SetStripeCustomerID", mock.Anything, "uid-1", "cus_new").Return(nil).Once()
	provider.On("CreateCheckoutSession", mock.Anything, "cus_new", "uid-1", "price_pro", int64(7)).
		Return(&stripe.CheckoutSession{URL: "https://checkout.stripe.com/pay/cs_1"}, nil).Once()

	url, err := svc.CreateCheckoutSession(context.Background(), "uid-1", "user@test.com", "testuser", "pro", false, "")

	assert.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_1", url)
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestCreateCheckoutSession_TrialAlreadyUsed(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	customerID := "cus_1"
	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").Return(&models.User{
		UID:              "uid-1",
		StripeCustomerID: &customerID,
		TrialUsed:        true,
	}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(nil, false, nil).Once()
	catalog.On("FindByTier", "pro", false, "").Return(tiers.Entry{PriceID: "price_pro", Tier: "pro"}, nil).Once()
	provider.On("CreateCheckoutSession", mock.Anything, "cus_1", "uid-1", "price_pro", int64(0)).
		Return(&stripe.CheckoutSession{URL: "https://checkout.stripe.com/pay/cs_2"}, nil).Once()

	url, err := svc.CreateCheckoutSession(context.Background(), "uid-1", "user@test.com", "testuser", "pro", false, "")

	assert.NoError(t, err)
	assert.NotEmpty(t, url)
	provider.AssertNotCalled(t, "CreateCustomer")
}

func TestCreateCheckoutSession_YearlyIntervalPicksYearlyPrice(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	customerID := "cus_1"
	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").Return(&models.User{
		UID:              "uid-1",
		StripeCustomerID: &customerID,
		TrialUsed:        true,
	}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(nil, false, nil).Once()
	catalog.On("FindByTier", "pro", false, "year").
		Return(tiers.Entry{PriceID: "price_pro_yearly", Tier: "pro", Interval: "year"}, nil).Once()
	provider.On("CreateCheckoutSession", mock.Anything, "cus_1", "uid-1", "price_pro_yearly", int64(0)).
		Return(&stripe.CheckoutSession{URL: "https://checkout.stripe.com/pay/cs_3"}, nil).Once()

	url, err := svc.CreateCheckoutSession(context.Background(), "uid-1", "user@test.com", "testuser", "pro", false, "year")

	assert.NoError(t, err)
	assert.NotEmpty(t, url)
	catalog.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestCreateCheckoutSession_ActiveSubscriptionExists(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").
		Return(&models.User{UID: "uid-1"}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
		ProviderSubscriptionID: "sub_1",
		Status:                 models.StatusActive,
	}, true, nil).Once()

	_, err := svc.CreateCheckoutSession(context.Background(), "uid-1", "user@test.com", "testuser", "pro", false, "")

	assert.ErrorIs(t, err, ErrActiveSubscriptionExists)
	provider.AssertNotCalled(t, "CreateCheckoutSession")
}

func TestCreateCheckoutSession_UnknownTier(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").
		Return(&models.User{UID: "uid-1"}, nil).Once()
	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(nil, false, nil).Once()
	catalog.On("FindByTier", "platinum", false, "").Return(tiers.Entry{}, tiers.ErrUnknownPrice).Once()

	_, err := svc.CreateCheckoutSession(context.Background(), "uid-1", "user@test.com", "testuser", "platinum", false, "")

	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestCreatePortalSession_NoBillingAccount(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").
		Return(&models.User{UID: "uid-1"}, nil).Once()

	_, err := svc.CreatePortalSession(context.Background(), "uid-1", "user@test.com", "testuser")

	assert.ErrorIs(t, err, ErrNoBillingAccount)
	provider.AssertNotCalled(t, "CreatePortalSession")
}

func TestUpgrade_Success(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
		ProviderSubscriptionID: "sub_1",
		TierID:                 "pro",
		Status:                 models.StatusActive,
	}, true, nil).Once()
	catalog.On("FindByTier", "vip", false, "").Return(tiers.Entry{PriceID: "price_vip", Tier: "vip"}, nil).Once()
	provider.On("UpdateSubscriptionPrice", mock.Anything, "sub_1", "price_vip").
		Return(&stripe.Subscription{ID: "sub_1"}, nil).Once()

	err := svc.Upgrade(context.Background(), "uid-1", "vip", false, "")

	assert.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestUpgrade_NoActiveSubscription(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(nil, false, nil).Once()

	err := svc.Upgrade(context.Background(), "uid-1", "vip", false, "")

	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestCancel_SchedulesOnly(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
		ProviderSubscriptionID: "sub_1",
		Status:                 models.StatusActive,
	}, true, nil).Once()
	provider.On("ScheduleCancellation", mock.Anything, "sub_1").
		Return(&stripe.Subscription{ID: "sub_1", CancelAtPeriodEnd: true}, nil).Once()

	err := svc.Cancel(context.Background(), "uid-1")

	assert.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestListInvoices_NoBillingAccountReturnsEmpty(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").
		Return(&models.User{UID: "uid-1"}, nil).Once()

	invoices, err := svc.ListInvoices(context.Background(), "uid-1", "user@test.com", "testuser", 10)

	assert.NoError(t, err)
	assert.Empty(t, invoices)
	provider.AssertNotCalled(t, "ListInvoices")
}

func TestListInvoices_MapsStripeInvoices(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	customerID := "cus_1"
	repo.On("UpsertUserOnLogin", mock.Anything, "uid-1", "user@test.com", "testuser").
		Return(&models.User{UID: "uid-1", StripeCustomerID: &customerID}, nil).Once()
	provider.On("ListInvoices", mock.Anything, "cus_1", int64(10)).Return([]*stripe.Invoice{
		{
			ID:         "in_1",
			Number:     "INV-0001",
			Status:     stripe.InvoiceStatusPaid,
			AmountDue:  990,
			AmountPaid: 990,
			Currency:   stripe.CurrencyUSD,
			Created:    1700000000,
		},
	}, nil).Once()

	invoices, err := svc.ListInvoices(context.Background(), "uid-1", "user@test.com", "testuser", 10)

	assert.NoError(t, err)
	assert.Len(t, invoices, 1)
	assert.Equal(t, "in_1", invoices[0].ID)
	assert.Equal(t, "paid", invoices[0].Status)
	assert.Equal(t, int64(990), invoices[0].AmountPaid)
}

func TestCancel_ProviderFailure(t *testing.T) {
	repo, provider, catalog := &RepoMock{}, &ProviderMock{}, &CatalogMock{}
	svc := New(repo, provider, catalog, 7, newNoopLogger())

	repo.On("FindCurrentSubscription", mock.Anything, "uid-1").Return(&models.Subscription{
		ProviderSubscriptionID: "sub_1",
	}, true, nil).Once()
	provider.On("ScheduleCancellation", mock.Anything, "sub_1").
		Return(nil, errors.New("stripe: timeout")).Once()

	err := svc.Cancel(context.Background(), "uid-1")

	assert.Error(t, err)
}
