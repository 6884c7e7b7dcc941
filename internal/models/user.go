// Package models содержит доменную модель пользователя системы.
// Поле CurrentTier всегда отражает последнее зафиксированное решение
// движка реконсиляции и никогда не вычисляется из данных Stripe при чтении.
package models

import "time"

// Идентификаторы тарифов. Basic — тариф по умолчанию при отсутствии подписки,
// остальные определяются платными тарифами в каталоге.
const (
	TierBasic = "basic"
	TierPro   = "pro"
	TierVIP   = "vip"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID              string     // Идентификатор субъекта у внешнего identity-провайдера
	Email            string     // Электронная почта
	Username         string     // Отображаемое имя пользователя
	CurrentTier      string     // Текущий тариф (basic или платный)
	IsStudent        bool       // Признак студенческого тарифа
	StripeCustomerID *string    // Ссылка на клиента Stripe (nil до первого чекаута)
	TrialUsed        bool       // Признак использованного пробного периода
	CreatedAt        time.Time  // Дата создания записи
	TierUpdatedAt    *time.Time // Время последнего изменения тарифа
	LastLoginAt      *time.Time // Время последнего входа
}
