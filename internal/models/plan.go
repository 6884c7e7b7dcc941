// Package models содержит план реконсиляции — набор мутаций,
// которые должны быть применены атомарно для одного события провайдера.
package models

// ReconciliationPlan описывает решение движка реконсиляции по одному событию.
// Subscription применяется как полная замена изменяемых полей по ключу
// ProviderSubscriptionID; мутации пользователя опциональны.
type ReconciliationPlan struct {
	Subscription     Subscription // Строка подписки для вставки или замены
	UserUID          string       // UID пользователя-владельца
	NewUserTier      *string      // Новый тариф пользователя (nil — тариф не меняется)
	NewUserStudent   bool         // Признак студенческого тарифа, применяется вместе с NewUserTier
	StripeCustomerID *string      // Ссылка на клиента Stripe для записи в users (nil — не трогать)
	ConsumeTrial     bool         // Отметить пробный период использованным (set-once)
}

// ApplyResult итог применения плана в хранилище.
// Applied=false означает, что событие устарело и план целиком пропущен.
type ApplyResult struct {
	Applied      bool   // План применён
	PreviousTier string // Тариф пользователя до применения
	CurrentTier  string // Тариф пользователя после применения
}
