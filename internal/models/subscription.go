// Package models содержит доменные структуры подписки,
// зеркалирующие жизненный цикл подписки у платёжного провайдера.
package models

import "time"

// Статусы подписки, повторяющие семантику Stripe.
const (
	StatusTrialing   = "trialing"
	StatusActive     = "active"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusUnpaid     = "unpaid"
	StatusIncomplete = "incomplete"
)

// Subscription представляет одну логическую запись подписки.
// На один stripe_subscription_id существует ровно одна строка,
// все изменения — замена полей последним известным состоянием.
type Subscription struct {
	ID                     int        // Внутренний ID записи
	ProviderSubscriptionID string     // ID подписки у Stripe (уникальный ключ)
	UserUID                string     // UID пользователя-владельца
	TierID                 string     // Тариф подписки
	Status                 string     // Статус подписки
	BillingInterval        string     // Интервал оплаты: month или year
	StartDate              time.Time  // Начало текущего периода
	ExpiresAt              time.Time  // Конец текущего периода
	CancelAtPeriodEnd      bool       // Запланирована отмена в конце периода
	CanceledAt             *time.Time // Время отмены
	EndedAt                *time.Time // Время фактического завершения
	LastEventAt            int64      // Время (unix) последнего применённого события провайдера
	CreatedAt              time.Time  // Дата создания записи
}

// IsCurrent сообщает, считается ли подписка действующей.
func (s *Subscription) IsCurrent() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}
