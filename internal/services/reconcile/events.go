package reconcile

import "github.com/stripe/stripe-go/v78"

// EventKind закрытое множество типов событий Stripe, которые движок обрабатывает.
// Любой другой тип события подтверждается без обработки.
type EventKind string

// Обрабатываемые типы событий.
const (
	EventCheckoutCompleted   EventKind = "checkout.session.completed"
	EventInvoicePaid         EventKind = "invoice.paid"
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
)

// KindOf сопоставляет тип события Stripe обрабатываемому виду.
// Второе значение false означает, что событие вне множества и игнорируется.
func KindOf(eventType stripe.EventType) (EventKind, bool) {
	switch EventKind(eventType) {
	case EventCheckoutCompleted, EventInvoicePaid, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return EventKind(eventType), true
	default:
		return "", false
	}
}

// Outcome итог обработки одного события.
type Outcome string

// Возможные итоги обработки.
const (
	OutcomeApplied      Outcome = "applied"       // План применён к хранилищу
	OutcomeSkippedStale Outcome = "skipped_stale" // Событие старше сохранённого состояния
	OutcomeIgnored      Outcome = "ignored"       // Тип события вне обрабатываемого множества
	OutcomeNoop         Outcome = "noop"          // Событие не требует изменений
	OutcomeAlerted      Outcome = "alerted"       // Ошибка конфигурации, отправлен алерт операторам
	OutcomeError        Outcome = "error"         // Преходящий сбой, событие будет доставлено повторно
)
