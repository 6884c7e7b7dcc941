package models

import "time"

// OperatorAlert — сообщение для операторов о проблеме конфигурации,
// публикуется в RabbitMQ и доставляется сервисом alert-sender.
type OperatorAlert struct {
	ID        string    `json:"id"`         // UUID сообщения
	Source    string    `json:"source"`     // Компонент-источник, например reconcile.checkout
	Message   string    `json:"message"`    // Человекочитаемое описание
	EventID   string    `json:"event_id"`   // ID события Stripe
	PriceID   string    `json:"price_id"`   // Проблемный price id, если есть
	CreatedAt time.Time `json:"created_at"` // Время формирования
}

// TierChangeNotice — уведомление об изменении тарифа пользователя,
// публикуется после успешного коммита плана реконсиляции.
type TierChangeNotice struct {
	UserUID   string    `json:"user_uid"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	OldTier   string    `json:"old_tier"`
	NewTier   string    `json:"new_tier"`
	ChangedAt time.Time `json:"changed_at"`
}
