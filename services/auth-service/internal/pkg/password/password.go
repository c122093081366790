package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"unicode"

	"SiteAuthPlatform/services/auth-service/internal/domain"
)

// Hasher интерфейс для работы с паролями
type Hasher interface {
	HashForAccount(account *domain.Account, password string) string
	Verify(account *domain.Account, password string) bool
	Validate(password string) bool
}

// DigestHasher хеширует пароли как hex SHA-256 от "соль:пароль".
// Проверка пробует две исторические схемы соли: ID аккаунта, затем логин.
type DigestHasher struct {
	minLength int
}

// NewDigestHasher создает новый DigestHasher
func NewDigestHasher(minLength int) *DigestHasher {
	if minLength <= 0 {
		minLength = 8
	}
	return &DigestHasher{minLength: minLength}
}

// Digest возвращает hex SHA-256 от salt + ":" + password в UTF-8
func Digest(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

// HashForAccount возвращает хеш нового пароля с солью ID аккаунта
func (h *DigestHasher) HashForAccount(account *domain.Account, password string) string {
	return Digest(account.ID, password)
}

// Verify проверяет пароль по обеим схемам соли.
// Обе схемы вычисляются всегда, чтобы время ответа не зависело от совпадения.
func (h *DigestHasher) Verify(account *domain.Account, password string) bool {
	stored := []byte(account.PasswordHash)
	byID := subtle.ConstantTimeCompare([]byte(Digest(account.ID, password)), stored)
	byLogin := subtle.ConstantTimeCompare([]byte(Digest(domain.NormalizeLogin(account.Login), password)), stored)
	return byID|byLogin == 1
}

// Validate проверяет сложность пароля
func (h *DigestHasher) Validate(password string) bool {
	if len([]rune(password)) < h.minLength {
		return false
	}

	hasDigit := false
	hasUpper := false
	hasLower := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	return hasDigit && hasUpper && hasLower
}
