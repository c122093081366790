package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/pkg/database"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

const (
	sessionHashConstraint     = "login_sessions_session_id_hash_key"
	transactionHashConstraint = "login_sessions_transaction_id_hash_key"
)

// LoginSessionRepository реализация репозитория записей входа для PostgreSQL
type LoginSessionRepository struct {
	*BaseRepository
}

// NewLoginSessionRepository создает новый экземпляр LoginSessionRepository
func NewLoginSessionRepository(q querier) repository.LoginSessionRepository {
	return &LoginSessionRepository{BaseRepository: NewBaseRepository(q)}
}

// Create сохраняет запись входа. Нарушение уникальности хешей
// возвращается как ErrDuplicateSession или ErrDuplicateTransaction.
func (r *LoginSessionRepository) Create(ctx context.Context, session *domain.LoginSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO login_sessions (id, session_id_hash, transaction_id_hash, account_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.q.Exec(ctx, query,
		session.ID,
		session.SessionIDHash,
		session.TransactionIDHash,
		session.AccountID,
		session.CreatedAt)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err, sessionHashConstraint):
		return repository.ErrDuplicateSession
	case database.IsUniqueViolation(err, transactionHashConstraint):
		return repository.ErrDuplicateTransaction
	default:
		return fmt.Errorf("failed to create login session: %w", err)
	}
}

// ExistsBySessionHash проверяет, использовалась ли сессия для входа
func (r *LoginSessionRepository) ExistsBySessionHash(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM login_sessions WHERE session_id_hash = $1)`, hash)
}

// ExistsByTransactionHash проверяет, использовалась ли транзакция для входа
func (r *LoginSessionRepository) ExistsByTransactionHash(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM login_sessions WHERE transaction_id_hash = $1)`, hash)
}

func (r *LoginSessionRepository) exists(ctx context.Context, query, hash string) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, query, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check login session: %w", err)
	}
	return exists, nil
}
