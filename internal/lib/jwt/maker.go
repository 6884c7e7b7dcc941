// Package jwt реализует генерацию и парсинг JWT токенов identity-провайдера.
//
// Maker определяет интерфейс для создания и проверки токенов с uid, email и username.
// MakerImpl — конкретная реализация с использованием секретного ключа и срока
package jwt

import (
	"time"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
//
// Методы позволяют создавать токен с данными субъекта identity-провайдера,
// а также разбирать токен и извлекать из него кастомные данные.
type Maker interface {
	// GenerateToken принимает uid, email и username субъекта
	GenerateToken(uid, email, username string) (string, error)
	// ParseToken возвращает *CustomClaims с данными субъекта
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
