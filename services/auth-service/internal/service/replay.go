package service

import (
	"context"
	"fmt"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/pkg/hash"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// ReplayKey дайджесты идентификаторов сессии и транзакции клиента
type ReplayKey struct {
	SessionHash     string
	TransactionHash string
}

// ReplayGuard не допускает повторной обработки одного запроса на вход.
// Проверка Admit и запись Record выполняются в одной транзакции, а гонку
// между транзакциями закрывают уникальные ограничения хранилища.
type ReplayGuard struct {
	hasher *hash.TokenHasher
}

// NewReplayGuard создает ReplayGuard
func NewReplayGuard(hasher *hash.TokenHasher) *ReplayGuard {
	return &ReplayGuard{hasher: hasher}
}

// Key вычисляет дайджесты сырых идентификаторов
func (g *ReplayGuard) Key(sessionID, transactionID string) ReplayKey {
	return ReplayKey{
		SessionHash:     g.hasher.Hash(sessionID),
		TransactionHash: g.hasher.Hash(transactionID),
	}
}

// Admit возвращает repository.ErrDuplicateSession или
// repository.ErrDuplicateTransaction, если вход с такими идентификаторами уже был
func (g *ReplayGuard) Admit(ctx context.Context, sessions repository.LoginSessionRepository, key ReplayKey) error {
	exists, err := sessions.ExistsBySessionHash(ctx, key.SessionHash)
	if err != nil {
		return fmt.Errorf("failed to check session replay: %w", err)
	}
	if exists {
		return repository.ErrDuplicateSession
	}

	exists, err = sessions.ExistsByTransactionHash(ctx, key.TransactionHash)
	if err != nil {
		return fmt.Errorf("failed to check transaction replay: %w", err)
	}
	if exists {
		return repository.ErrDuplicateTransaction
	}
	return nil
}

// Record сохраняет запись об успешном входе.
// Нарушение уникальности возвращается теми же ошибками, что и Admit.
func (g *ReplayGuard) Record(ctx context.Context, sessions repository.LoginSessionRepository, key ReplayKey, accountID string) error {
	return sessions.Create(ctx, &domain.LoginSession{
		SessionIDHash:     key.SessionHash,
		TransactionIDHash: key.TransactionHash,
		AccountID:         accountID,
	})
}
