package hash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// TokenHasher хеширует идентификаторы сессий и транзакций клиента.
// Сами идентификаторы нигде не хранятся, только их SHA-256 в hex.
type TokenHasher struct{}

// NewTokenHasher создает новый экземпляр TokenHasher
func NewTokenHasher() *TokenHasher {
	return &TokenHasher{}
}

// Hash возвращает hex SHA-256 от токена в UTF-8
func (h *TokenHasher) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Verify проверяет токен против хеша за постоянное время
func (h *TokenHasher) Verify(token, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(token)), []byte(hash)) == 1
}
