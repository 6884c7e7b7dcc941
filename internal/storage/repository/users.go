package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

// UpsertUserOnLogin создаёт запись пользователя при первом обращении
// или обновляет email, username и время последнего входа у существующей.
// Возвращает актуальное состояние пользователя.
func (s *Storage) UpsertUserOnLogin(ctx context.Context, uid, email, username string) (*models.User, error) {
	const op = "storage.UpsertUserOnLogin"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (uid, email, username, last_login_at)
			  VALUES ($1, $2, $3, now())
			  ON CONFLICT (uid) DO UPDATE SET
				  email = EXCLUDED.email,
				  username = EXCLUDED.username,
				  last_login_at = now()
			  RETURNING uid, email, username, current_tier, is_student,
				  stripe_customer_id, trial_used, created_at, tier_updated_at, last_login_at`
	u := &models.User{}
	var customerID sql.NullString
	var tierUpdatedAt, lastLoginAt sql.NullTime
	if err := s.DB.QueryRowContext(ctx, query, uid, email, username).Scan(
		&u.UID, &u.Email, &u.Username, &u.CurrentTier, &u.IsStudent,
		&customerID, &u.TrialUsed, &u.CreatedAt, &tierUpdatedAt, &lastLoginAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if customerID.Valid {
		u.StripeCustomerID = &customerID.String
	}
	if tierUpdatedAt.Valid {
		u.TierUpdatedAt = &tierUpdatedAt.Time
	}
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, bool, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, username, current_tier, is_student,
				  stripe_customer_id, trial_used, created_at, tier_updated_at, last_login_at
			  FROM users
			  WHERE uid = $1`
	u := &models.User{}
	var customerID sql.NullString
	var tierUpdatedAt, lastLoginAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, userUID).Scan(
		&u.UID, &u.Email, &u.Username, &u.CurrentTier, &u.IsStudent,
		&customerID, &u.TrialUsed, &u.CreatedAt, &tierUpdatedAt, &lastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if customerID.Valid {
		u.StripeCustomerID = &customerID.String
	}
	if tierUpdatedAt.Valid {
		u.TierUpdatedAt = &tierUpdatedAt.Time
	}
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return u, true, nil
}

// GetUserUIDByCustomerID возвращает UID пользователя по ID клиента Stripe.
func (s *Storage) GetUserUIDByCustomerID(ctx context.Context, customerID string) (string, bool, error) {
	const op = "storage.GetUserUIDByCustomerID"
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid FROM users WHERE stripe_customer_id = $1`
	var uid string
	err := s.DB.QueryRowContext(ctx, query, customerID).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return uid, true, nil
}

// SetStripeCustomerID записывает ссылку на клиента Stripe у пользователя.
func (s *Storage) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetStripeCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET stripe_customer_id = $1 WHERE uid = $2`
	res, err := s.DB.ExecContext(ctx, query, customerID, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		return fmt.Errorf("%s: user %s not found", op, userUID)
	}
	return nil
}
