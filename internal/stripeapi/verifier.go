package stripeapi

import (
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Verifier проверяет подпись входящих вебхуков Stripe.
type Verifier struct {
	webhookSecret string
}

// NewVerifier создаёт Verifier с секретом вебхука.
func NewVerifier(webhookSecret string) *Verifier {
	return &Verifier{webhookSecret: webhookSecret}
}

// VerifyEvent проверяет подпись тела запроса и возвращает разобранное событие.
// Ошибка означает неподлинный или повреждённый запрос.
func (v *Verifier) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	const op = "stripeapi.VerifyEvent"
	event, err := webhook.ConstructEvent(payload, signature, v.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	return event, nil
}
