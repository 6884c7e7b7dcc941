// Package reconcile содержит движок реконсиляции: преобразование событий
// платёжного провайдера в атомарные планы изменения локального состояния.
//
// Движок никогда не доверяет полям тарифа из локальной базы при обработке
// события: тариф выводится заново из цены, пришедшей от провайдера.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"

	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/models"
	"github.com/magabrotheeeer/billing-reconciler/internal/tiers"
)

// Repository определяет методы хранилища, необходимые движку.
type Repository interface {
	// ApplyPlan применяет план реконсиляции в одной транзакции.
	ApplyPlan(ctx context.Context, plan models.ReconciliationPlan) (*models.ApplyResult, error)
	// FindSubscriptionByProviderID возвращает локальную запись подписки, если она есть.
	FindSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, bool, error)
	// GetUserUIDByCustomerID возвращает UID пользователя по ID клиента Stripe.
	GetUserUIDByCustomerID(ctx context.Context, customerID string) (string, bool, error)
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, uid string) (*models.User, bool, error)
}

// Provider определяет вызовы к API Stripe для дозапроса актуального состояния.
type Provider interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

// Catalog определяет разрешение цены провайдера во внутренний тариф.
type Catalog interface {
	Resolve(priceID, lookupKey string) (tiers.Entry, error)
}

// AlertPublisher определяет публикацию сообщений для операторов и уведомлений.
type AlertPublisher interface {
	PublishOperatorAlert(ctx context.Context, alert models.OperatorAlert) error
	PublishTierChange(ctx context.Context, notice models.TierChangeNotice) error
}

// Cache описывает инвалидацию кеша профилей.
type Cache interface {
	Invalidate(key string) error
}

// Service реализует обработку событий вебхука.
type Service struct {
	repo     Repository
	provider Provider
	catalog  Catalog
	alerts   AlertPublisher
	cache    Cache
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, provider Provider, catalog Catalog, alerts AlertPublisher, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		catalog:  catalog,
		alerts:   alerts,
		cache:    cache,
		log:      log,
	}
}

// ProcessEvent обрабатывает одно проверенное событие Stripe.
// Ошибка означает преходящий сбой: вызывающий должен ответить 500,
// чтобы Stripe повторил доставку. Все остальные исходы подтверждаются.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconcile.ProcessEvent"

	kind, ok := KindOf(event.Type)
	if !ok {
		s.log.Info("event type outside handled set, acknowledging",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		return OutcomeIgnored, nil
	}

	var (
		outcome Outcome
		err     error
	)
	switch kind {
	case EventCheckoutCompleted:
		outcome, err = s.processCheckoutCompleted(ctx, event)
	case EventInvoicePaid:
		outcome, err = s.processInvoicePaid(ctx, event)
	case EventSubscriptionUpdated:
		outcome, err = s.processSubscriptionState(ctx, event, false)
	case EventSubscriptionDeleted:
		outcome, err = s.processSubscriptionState(ctx, event, true)
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	return outcome, nil
}

// processCheckoutCompleted обрабатывает завершение checkout-сессии.
// Событие не содержит позиций, поэтому сессия дозапрашивается у Stripe.
func (s *Service) processCheckoutCompleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconcile.processCheckoutCompleted"

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return OutcomeError, fmt.Errorf("%s: unmarshal session: %w", op, err)
	}
	if sess.Mode != stripe.CheckoutSessionModeSubscription || sess.Subscription == nil {
		s.log.Info("checkout session without subscription, acknowledging",
			slog.String("event_id", event.ID),
			slog.String("session_id", sess.ID))
		return OutcomeNoop, nil
	}

	full, err := s.provider.GetCheckoutSession(ctx, sess.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	if full.LineItems == nil || len(full.LineItems.Data) == 0 || full.LineItems.Data[0].Price == nil {
		return OutcomeError, fmt.Errorf("%s: session %s has no line items", op, sess.ID)
	}
	price := full.LineItems.Data[0].Price

	entry, err := s.catalog.Resolve(price.ID, price.LookupKey)
	if err != nil {
		if errors.Is(err, tiers.ErrUnknownPrice) {
			return s.alertUnknownPrice(ctx, "reconcile.checkout", event.ID, price.ID)
		}
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}

	sub, err := s.provider.GetSubscription(ctx, full.Subscription.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}

	customerID := ""
	if full.Customer != nil {
		customerID = full.Customer.ID
	}
	userUID, found, err := s.repo.GetUserUIDByCustomerID(ctx, customerID)
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		userUID = full.ClientReferenceID
	}
	if userUID == "" {
		s.log.Warn("checkout session references unknown user, acknowledging",
			slog.String("event_id", event.ID),
			slog.String("customer_id", customerID))
		return OutcomeNoop, nil
	}
	if !found {
		// client_reference_id приходит из внешней системы: без строки
		// пользователя план гарантированно не применится, а Stripe будет
		// бесполезно повторять доставку.
		_, exists, err := s.repo.GetUser(ctx, userUID)
		if err != nil {
			return OutcomeError, fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			s.log.Warn("checkout session references user without local account, acknowledging",
				slog.String("event_id", event.ID),
				slog.String("user_uid", userUID))
			return OutcomeNoop, nil
		}
	}

	plan := models.ReconciliationPlan{
		Subscription:   subscriptionFromStripe(sub, userUID, entry.Tier, event.Created),
		UserUID:        userUID,
		NewUserTier:    &entry.Tier,
		NewUserStudent: entry.Student,
		ConsumeTrial:   sub.Status == stripe.SubscriptionStatusTrialing,
	}
	if customerID != "" {
		plan.StripeCustomerID = &customerID
	}
	return s.applyPlan(ctx, event, plan)
}

// processInvoicePaid обновляет статус и границы периода существующей записи.
// Тариф пользователя это событие не меняет.
func (s *Service) processInvoicePaid(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconcile.processInvoicePaid"

	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return OutcomeError, fmt.Errorf("%s: unmarshal invoice: %w", op, err)
	}
	if inv.Subscription == nil {
		s.log.Info("invoice without subscription, acknowledging",
			slog.String("event_id", event.ID),
			slog.String("invoice_id", inv.ID))
		return OutcomeNoop, nil
	}

	existing, found, err := s.repo.FindSubscriptionByProviderID(ctx, inv.Subscription.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		s.log.Warn("invoice for unknown subscription, acknowledging",
			slog.String("event_id", event.ID),
			slog.String("subscription_id", inv.Subscription.ID))
		return OutcomeNoop, nil
	}

	sub, err := s.provider.GetSubscription(ctx, inv.Subscription.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}

	plan := models.ReconciliationPlan{
		Subscription: subscriptionFromStripe(sub, existing.UserUID, existing.TierID, event.Created),
		UserUID:      existing.UserUID,
	}
	return s.applyPlan(ctx, event, plan)
}

// processSubscriptionState обрабатывает customer.subscription.updated и
// customer.subscription.deleted. Полезная нагрузка события авторитетна,
// дозапрос не требуется.
func (s *Service) processSubscriptionState(ctx context.Context, event stripe.Event, deleted bool) (Outcome, error) {
	const op = "reconcile.processSubscriptionState"

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return OutcomeError, fmt.Errorf("%s: unmarshal subscription: %w", op, err)
	}

	tierID, entry, outcome, err := s.resolveTier(ctx, event, &sub)
	if err != nil || outcome != "" {
		return outcome, err
	}

	userUID, outcome, err := s.resolveUserUID(ctx, event, &sub)
	if err != nil || outcome != "" {
		return outcome, err
	}

	plan := models.ReconciliationPlan{
		Subscription: subscriptionFromStripe(&sub, userUID, tierID, event.Created),
		UserUID:      userUID,
	}
	if deleted {
		basic := models.TierBasic
		plan.NewUserTier = &basic
	} else if newTier := tierAfterUpdate(&sub, entry.Tier); newTier != nil {
		plan.NewUserTier = newTier
		plan.NewUserStudent = *newTier != models.TierBasic && entry.Student
	}
	return s.applyPlan(ctx, event, plan)
}

// resolveTier выводит внутренний тариф из цены в полезной нагрузке события.
// Непустой Outcome означает, что обработка завершена без применения плана.
func (s *Service) resolveTier(ctx context.Context, event stripe.Event, sub *stripe.Subscription) (string, tiers.Entry, Outcome, error) {
	const op = "reconcile.resolveTier"

	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		existing, found, err := s.repo.FindSubscriptionByProviderID(ctx, sub.ID)
		if err != nil {
			return "", tiers.Entry{}, OutcomeError, fmt.Errorf("%s: %w", op, err)
		}
		if !found {
			s.log.Warn("subscription event without items for unknown subscription, acknowledging",
				slog.String("event_id", event.ID),
				slog.String("subscription_id", sub.ID))
			return "", tiers.Entry{}, OutcomeNoop, nil
		}
		return existing.TierID, tiers.Entry{Tier: existing.TierID}, "", nil
	}

	price := sub.Items.Data[0].Price
	entry, err := s.catalog.Resolve(price.ID, price.LookupKey)
	if err != nil {
		if errors.Is(err, tiers.ErrUnknownPrice) {
			outcome, alertErr := s.alertUnknownPrice(ctx, "reconcile.subscription", event.ID, price.ID)
			return "", tiers.Entry{}, outcome, alertErr
		}
		return "", tiers.Entry{}, OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	return entry.Tier, entry, "", nil
}

// resolveUserUID находит владельца подписки: сначала по клиенту Stripe,
// затем по локальной записи подписки.
func (s *Service) resolveUserUID(ctx context.Context, event stripe.Event, sub *stripe.Subscription) (string, Outcome, error) {
	const op = "reconcile.resolveUserUID"

	if sub.Customer != nil {
		userUID, found, err := s.repo.GetUserUIDByCustomerID(ctx, sub.Customer.ID)
		if err != nil {
			return "", OutcomeError, fmt.Errorf("%s: %w", op, err)
		}
		if found {
			return userUID, "", nil
		}
	}

	existing, found, err := s.repo.FindSubscriptionByProviderID(ctx, sub.ID)
	if err != nil {
		return "", OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	if found {
		return existing.UserUID, "", nil
	}

	s.log.Warn("subscription event references unknown user, acknowledging",
		slog.String("event_id", event.ID),
		slog.String("subscription_id", sub.ID))
	return "", OutcomeNoop, nil
}

// applyPlan применяет план и выполняет постобработку успешного коммита:
// инвалидацию кеша профиля и публикацию уведомления об изменении тарифа.
func (s *Service) applyPlan(ctx context.Context, event stripe.Event, plan models.ReconciliationPlan) (Outcome, error) {
	const op = "reconcile.applyPlan"

	res, err := s.repo.ApplyPlan(ctx, plan)
	if err != nil {
		return OutcomeError, fmt.Errorf("%s: %w", op, err)
	}
	if !res.Applied {
		s.log.Info("event is older than stored state, skipping",
			slog.String("event_id", event.ID),
			slog.String("subscription_id", plan.Subscription.ProviderSubscriptionID),
			slog.Int64("event_created", event.Created))
		return OutcomeSkippedStale, nil
	}

	s.log.Info("reconciliation plan applied",
		slog.String("event_id", event.ID),
		slog.String("subscription_id", plan.Subscription.ProviderSubscriptionID),
		slog.String("user_uid", plan.UserUID),
		slog.String("status", plan.Subscription.Status))

	if res.PreviousTier != res.CurrentTier {
		s.notifyTierChange(ctx, plan.UserUID, res.PreviousTier, res.CurrentTier)
	}
	return OutcomeApplied, nil
}

// notifyTierChange инвалидирует кеш профиля и публикует уведомление.
// Сбои здесь не откатывают уже применённый план, поэтому только логируются.
func (s *Service) notifyTierChange(ctx context.Context, userUID, oldTier, newTier string) {
	cacheKey := fmt.Sprintf("profile:%s", userUID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate profile cache", slog.String("key", cacheKey), sl.Err(err))
	}

	user, found, err := s.repo.GetUser(ctx, userUID)
	if err != nil || !found {
		s.log.Warn("failed to load user for tier change notice",
			slog.String("user_uid", userUID), sl.Err(err))
		return
	}
	notice := models.TierChangeNotice{
		UserUID:   userUID,
		Email:     user.Email,
		Username:  user.Username,
		OldTier:   oldTier,
		NewTier:   newTier,
		ChangedAt: time.Now().UTC(),
	}
	if err := s.alerts.PublishTierChange(ctx, notice); err != nil {
		s.log.Warn("failed to publish tier change notice",
			slog.String("user_uid", userUID), sl.Err(err))
	}
}

// alertUnknownPrice публикует алерт операторам о цене вне каталога.
// Событие подтверждается: повторная доставка не исправит конфигурацию.
func (s *Service) alertUnknownPrice(ctx context.Context, source, eventID, priceID string) (Outcome, error) {
	s.log.Error("price is not present in tier catalog, alerting operators",
		slog.String("event_id", eventID),
		slog.String("price_id", priceID))

	alert := models.OperatorAlert{
		ID:        uuid.NewString(),
		Source:    source,
		Message:   fmt.Sprintf("price %s is not present in the tier catalog", priceID),
		EventID:   eventID,
		PriceID:   priceID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.alerts.PublishOperatorAlert(ctx, alert); err != nil {
		s.log.Error("failed to publish operator alert", sl.Err(err))
	}
	return OutcomeAlerted, nil
}

// tierAfterUpdate решает, как событие обновления влияет на тариф пользователя.
// Запланированная отмена тариф не трогает: доступ действует до конца периода.
// Понижение до базового тарифа выполняет только событие удаления подписки,
// поэтому терминальные статусы здесь фиксируются в записи подписки без
// изменения тарифа пользователя.
func tierAfterUpdate(sub *stripe.Subscription, paidTier string) *string {
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if sub.CancelAtPeriodEnd {
			return nil
		}
		return &paidTier
	default:
		return nil
	}
}

// subscriptionFromStripe строит локальную запись подписки из состояния Stripe.
func subscriptionFromStripe(sub *stripe.Subscription, userUID, tierID string, eventCreated int64) models.Subscription {
	interval := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 &&
		sub.Items.Data[0].Price != nil && sub.Items.Data[0].Price.Recurring != nil {
		interval = string(sub.Items.Data[0].Price.Recurring.Interval)
	}
	entry := models.Subscription{
		ProviderSubscriptionID: sub.ID,
		UserUID:                userUID,
		TierID:                 tierID,
		Status:                 string(sub.Status),
		BillingInterval:        interval,
		StartDate:              time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		ExpiresAt:              time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		LastEventAt:            eventCreated,
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		entry.CanceledAt = &t
	}
	if sub.EndedAt > 0 {
		t := time.Unix(sub.EndedAt, 0).UTC()
		entry.EndedAt = &t
	}
	return entry
}
