package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

const accountColumns = `id, tenant_id, login, password_hash, failed_login_count, locked_out,
	second_factor_secret, password_expires_at, created_at, updated_at`

// AccountRepository реализация репозитория аккаунтов для PostgreSQL
type AccountRepository struct {
	*BaseRepository
}

// NewAccountRepository создает новый экземпляр AccountRepository
func NewAccountRepository(q querier) repository.AccountRepository {
	return &AccountRepository{BaseRepository: NewBaseRepository(q)}
}

// Create сохраняет новый аккаунт, логин приводится к нижнему регистру
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Login = domain.NormalizeLogin(account.Login)
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.q.Exec(ctx, query,
		account.ID,
		account.TenantID,
		account.Login,
		account.PasswordHash,
		account.FailedLoginCount,
		account.LockedOut,
		account.SecondFactorSecret,
		account.PasswordExpiresAt,
		account.CreatedAt,
		account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindByID возвращает аккаунт по ID
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	if !validID(id) {
		return nil, fmt.Errorf("failed to get account by id: %w", repository.ErrNotFound)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get account by id: %w", notFound(err))
	}
	return account, nil
}

// FindByLogin возвращает аккаунт тенанта по логину и блокирует строку.
// Параллельные попытки входа одного аккаунта выполняются последовательно.
func (r *AccountRepository) FindByLogin(ctx context.Context, tenantID, login string) (*domain.Account, error) {
	if !validID(tenantID) {
		return nil, fmt.Errorf("failed to get account by login: %w", repository.ErrNotFound)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id = $1 AND login = $2 FOR UPDATE`

	account, err := scanAccount(r.q.QueryRow(ctx, query, tenantID, domain.NormalizeLogin(login)))
	if err != nil {
		return nil, fmt.Errorf("failed to get account by login: %w", notFound(err))
	}
	return account, nil
}

// UpdateLoginState сохраняет счетчик неудачных попыток и флаг блокировки
func (r *AccountRepository) UpdateLoginState(ctx context.Context, account *domain.Account) error {
	account.UpdatedAt = time.Now().UTC()

	query := `UPDATE accounts SET failed_login_count = $2, locked_out = $3, updated_at = $4 WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, account.ID, account.FailedLoginCount, account.LockedOut, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account login state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update account login state: %w", repository.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.TenantID,
		&account.Login,
		&account.PasswordHash,
		&account.FailedLoginCount,
		&account.LockedOut,
		&account.SecondFactorSecret,
		&account.PasswordExpiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
