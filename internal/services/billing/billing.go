// Package billing содержит бизнес-логику клиентских биллинговых операций:
// создание checkout-сессии, портал, апгрейд, отмена и список счетов.
//
// Локальное состояние здесь не мутируется: все изменения тарифа и подписки
// приходят обратно через вебхук и применяются движком реконсиляции.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
	"github.com/magabrotheeeer/billing-reconciler/internal/tiers"
)

// Ошибки бизнес-логики биллинга.
var (
	ErrActiveSubscriptionExists = errors.New("user already has an active subscription")
	ErrNoActiveSubscription     = errors.New("user has no active subscription")
	ErrNoBillingAccount         = errors.New("user has no billing account")
	ErrUnknownTier              = errors.New("unknown tier")
)

// UserRepository определяет методы хранилища для биллинговых операций.
type UserRepository interface {
	UpsertUserOnLogin(ctx context.Context, uid, email, username string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	FindCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, bool, error)
}

// Provider определяет вызовы к API Stripe.
type Provider interface {
	CreateCustomer(ctx context.Context, email, name, userUID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, customerID, userUID, priceID string, trialDays int64) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID string) (*stripe.BillingPortalSession, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*stripe.Subscription, error)
	ScheduleCancellation(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	ListInvoices(ctx context.Context, customerID string, limit int64) ([]*stripe.Invoice, error)
}

// Catalog определяет поиск цены по внутреннему тарифу и интервалу тарификации.
type Catalog interface {
	FindByTier(tier string, student bool, interval string) (tiers.Entry, error)
}

// Service реализует биллинговые операции.
type Service struct {
	repo            UserRepository
	provider        Provider
	catalog         Catalog
	trialPeriodDays int64
	log             *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, provider Provider, catalog Catalog, trialPeriodDays int64, log *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		provider:        provider,
		catalog:         catalog,
		trialPeriodDays: trialPeriodDays,
		log:             log,
	}
}

// CreateCheckoutSession создаёт checkout-сессию для перехода на платный тариф.
// Пробный период добавляется только если пользователь его ещё не использовал.
// Возвращает URL страницы оплаты Stripe.
func (s *Service) CreateCheckoutSession(ctx context.Context, uid, email, username, tier string, student bool, interval string) (string, error) {
	const op = "billing.CreateCheckoutSession"

	user, err := s.repo.UpsertUserOnLogin(ctx, uid, email, username)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	_, found, err := s.repo.FindCurrentSubscription(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if found {
		return "", ErrActiveSubscriptionExists
	}

	entry, err := s.catalog.FindByTier(tier, student, interval)
	if err != nil {
		if errors.Is(err, tiers.ErrUnknownPrice) {
			return "", fmt.Errorf("%s: tier %q: %w", op, tier, ErrUnknownTier)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	trialDays := int64(0)
	if !user.TrialUsed {
		trialDays = s.trialPeriodDays
	}
	sess, err := s.provider.CreateCheckoutSession(ctx, customerID, uid, entry.PriceID, trialDays)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created checkout session",
		slog.String("user_uid", uid),
		slog.String("tier", tier),
		slog.Int64("trial_days", trialDays))
	return sess.URL, nil
}

// CreatePortalSession создаёт сессию клиентского портала Stripe.
func (s *Service) CreatePortalSession(ctx context.Context, uid, email, username string) (string, error) {
	const op = "billing.CreatePortalSession"

	user, err := s.repo.UpsertUserOnLogin(ctx, uid, email, username)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if user.StripeCustomerID == nil {
		return "", ErrNoBillingAccount
	}

	sess, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sess.URL, nil
}

// Upgrade меняет цену действующей подписки на цену другого тарифа.
// Новое состояние придёт через событие customer.subscription.updated.
func (s *Service) Upgrade(ctx context.Context, uid, tier string, student bool, interval string) error {
	const op = "billing.Upgrade"

	sub, found, err := s.repo.FindCurrentSubscription(ctx, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return ErrNoActiveSubscription
	}

	entry, err := s.catalog.FindByTier(tier, student, interval)
	if err != nil {
		if errors.Is(err, tiers.ErrUnknownPrice) {
			return fmt.Errorf("%s: tier %q: %w", op, tier, ErrUnknownTier)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err = s.provider.UpdateSubscriptionPrice(ctx, sub.ProviderSubscriptionID, entry.PriceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("requested subscription upgrade",
		slog.String("user_uid", uid),
		slog.String("subscription_id", sub.ProviderSubscriptionID),
		slog.String("tier", tier))
	return nil
}

// Cancel планирует отмену действующей подписки в конце оплаченного периода.
// Тариф пользователя не понижается до события customer.subscription.deleted.
func (s *Service) Cancel(ctx context.Context, uid string) error {
	const op = "billing.Cancel"

	sub, found, err := s.repo.FindCurrentSubscription(ctx, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return ErrNoActiveSubscription
	}

	if _, err = s.provider.ScheduleCancellation(ctx, sub.ProviderSubscriptionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("scheduled subscription cancellation",
		slog.String("user_uid", uid),
		slog.String("subscription_id", sub.ProviderSubscriptionID))
	return nil
}

// ListInvoices возвращает счета пользователя из Stripe.
func (s *Service) ListInvoices(ctx context.Context, uid, email, username string, limit int64) ([]*models.InvoiceInfo, error) {
	const op = "billing.ListInvoices"

	user, err := s.repo.UpsertUserOnLogin(ctx, uid, email, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.StripeCustomerID == nil {
		return []*models.InvoiceInfo{}, nil
	}

	invoices, err := s.provider.ListInvoices(ctx, *user.StripeCustomerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*models.InvoiceInfo, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, invoiceInfoFromStripe(inv))
	}
	return result, nil
}

// ensureCustomer возвращает ID клиента Stripe, создавая его при необходимости.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	const op = "billing.ensureCustomer"

	if user.StripeCustomerID != nil {
		return *user.StripeCustomerID, nil
	}
	cust, err := s.provider.CreateCustomer(ctx, user.Email, user.Username, user.UID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err = s.repo.SetStripeCustomerID(ctx, user.UID, cust.ID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return cust.ID, nil
}

func invoiceInfoFromStripe(inv *stripe.Invoice) *models.InvoiceInfo {
	info := &models.InvoiceInfo{
		ID:               inv.ID,
		Number:           inv.Number,
		Status:           string(inv.Status),
		AmountDue:        inv.AmountDue,
		AmountPaid:       inv.AmountPaid,
		Currency:         string(inv.Currency),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		InvoicePDF:       inv.InvoicePDF,
	}
	if inv.Created > 0 {
		info.CreatedAt = time.Unix(inv.Created, 0).UTC()
	}
	return info
}
