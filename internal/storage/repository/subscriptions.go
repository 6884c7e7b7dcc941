package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

const subscriptionColumns = `id, stripe_subscription_id, user_uid, tier_id, status,
	billing_interval, start_date, expires_at, cancel_at_period_end,
	canceled_at, ended_at, last_event_at, created_at`

// FindSubscriptionByProviderID возвращает локальную запись подписки
// по её идентификатору у Stripe.
func (s *Storage) FindSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, bool, error) {
	const op = "storage.FindSubscriptionByProviderID"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE stripe_subscription_id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, providerSubscriptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return sub, true, nil
}

// FindCurrentSubscription возвращает действующую подписку пользователя.
// При нескольких действующих записях берётся самая поздняя по концу периода.
func (s *Storage) FindCurrentSubscription(ctx context.Context, userUID string) (*models.Subscription, bool, error) {
	const op = "storage.FindCurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1 AND status IN ('active', 'trialing')
			  ORDER BY expires_at DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return sub, true, nil
}

// ListUserSubscriptions возвращает все записи подписок пользователя,
// начиная с самых свежих.
func (s *Storage) ListUserSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	const op = "storage.ListUserSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ApplyPlan применяет план реконсиляции в одной транзакции.
//
// Запись подписки вставляется или заменяется целиком по ключу
// stripe_subscription_id. Замена защищена условием на last_event_at:
// событие старше сохранённого состояния не записывается, и в этом случае
// весь план пропускается с Applied=false. Повтор того же события проходит
// условие и перезаписывает строку теми же значениями.
func (s *Storage) ApplyPlan(ctx context.Context, plan models.ReconciliationPlan) (*models.ApplyResult, error) {
	const op = "storage.ApplyPlan"
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

	// Блокировка строки пользователя упорядочивает конкурирующие планы.
	var previousTier string
	lockQuery := `SELECT current_tier FROM users WHERE uid = $1 FOR UPDATE`
	if err = tx.QueryRowContext(ctx, lockQuery, plan.UserUID).Scan(&previousTier); err != nil {
		return nil, fmt.Errorf("%s: lock user %s: %w", op, plan.UserUID, err)
	}

	sub := plan.Subscription
	upsertQuery := `INSERT INTO subscriptions (stripe_subscription_id, user_uid, tier_id,
				  status, billing_interval, start_date, expires_at, cancel_at_period_end,
				  canceled_at, ended_at, last_event_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  ON CONFLICT (stripe_subscription_id) DO UPDATE SET
				  user_uid = EXCLUDED.user_uid,
				  tier_id = EXCLUDED.tier_id,
				  status = EXCLUDED.status,
				  billing_interval = EXCLUDED.billing_interval,
				  start_date = EXCLUDED.start_date,
				  expires_at = EXCLUDED.expires_at,
				  cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				  canceled_at = EXCLUDED.canceled_at,
				  ended_at = EXCLUDED.ended_at,
				  last_event_at = EXCLUDED.last_event_at
			  WHERE subscriptions.last_event_at <= EXCLUDED.last_event_at
			  RETURNING id`
	var subscriptionID int
	err = tx.QueryRowContext(ctx, upsertQuery,
		sub.ProviderSubscriptionID, sub.UserUID, sub.TierID, sub.Status,
		sub.BillingInterval, sub.StartDate, sub.ExpiresAt, sub.CancelAtPeriodEnd,
		sub.CanceledAt, sub.EndedAt, sub.LastEventAt).Scan(&subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ApplyResult{
			Applied:      false,
			PreviousTier: previousTier,
			CurrentTier:  previousTier,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: upsert subscription: %w", op, err)
	}

	if plan.StripeCustomerID != nil {
		query := `UPDATE users SET stripe_customer_id = $1 WHERE uid = $2`
		if _, err = tx.ExecContext(ctx, query, *plan.StripeCustomerID, plan.UserUID); err != nil {
			return nil, fmt.Errorf("%s: set customer id: %w", op, err)
		}
	}

	if plan.ConsumeTrial {
		query := `UPDATE users SET trial_used = TRUE WHERE uid = $1 AND trial_used = FALSE`
		if _, err = tx.ExecContext(ctx, query, plan.UserUID); err != nil {
			return nil, fmt.Errorf("%s: consume trial: %w", op, err)
		}
	}

	currentTier := previousTier
	if plan.NewUserTier != nil && *plan.NewUserTier != previousTier {
		query := `UPDATE users
				  SET current_tier = $1, is_student = $2, tier_updated_at = now()
				  WHERE uid = $3`
		if _, err = tx.ExecContext(ctx, query, *plan.NewUserTier, plan.NewUserStudent, plan.UserUID); err != nil {
			return nil, fmt.Errorf("%s: update tier: %w", op, err)
		}
		currentTier = *plan.NewUserTier
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	return &models.ApplyResult{
		Applied:      true,
		PreviousTier: previousTier,
		CurrentTier:  currentTier,
	}, nil
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var canceledAt, endedAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.ProviderSubscriptionID, &sub.UserUID, &sub.TierID,
		&sub.Status, &sub.BillingInterval, &sub.StartDate, &sub.ExpiresAt,
		&sub.CancelAtPeriodEnd, &canceledAt, &endedAt, &sub.LastEventAt, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	if endedAt.Valid {
		sub.EndedAt = &endedAt.Time
	}
	return sub, nil
}
