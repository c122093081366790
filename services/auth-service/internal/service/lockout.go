package service

import (
	"context"
	"fmt"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// LockoutPolicy ведет счетчик неудачных попыток и блокирует аккаунт.
// Блокировка постоянная и снимается только через Reset.
type LockoutPolicy struct {
	logger logger.Logger
}

// NewLockoutPolicy создает LockoutPolicy
func NewLockoutPolicy(log logger.Logger) *LockoutPolicy {
	return &LockoutPolicy{logger: log}
}

// Precheck отклоняет заблокированный аккаунт до сравнения учетных данных
func (p *LockoutPolicy) Precheck(account *domain.Account) error {
	if account.LockedOut {
		return apperrors.New(apperrors.ErrAccountLockedOut, "account is locked out")
	}
	return nil
}

// OnFailure увеличивает счетчик и блокирует аккаунт, когда счетчик
// превышает порог тенанта. Порог 0 отключает блокировку.
func (p *LockoutPolicy) OnFailure(ctx context.Context, accounts repository.AccountRepository, account *domain.Account, tenant *domain.Tenant) (bool, error) {
	account.FailedLoginCount++
	lockedNow := false
	if tenant.MaxFailedLoginCount != 0 && account.FailedLoginCount > tenant.MaxFailedLoginCount && !account.LockedOut {
		account.LockedOut = true
		lockedNow = true
		p.logger.Warn("Account locked out due to too many failed login attempts",
			logger.CtxField(ctx),
			logger.String("account_id", account.ID),
			logger.Int("failed_login_count", account.FailedLoginCount))
	}

	if err := accounts.UpdateLoginState(ctx, account); err != nil {
		return false, fmt.Errorf("failed to record login failure: %w", err)
	}
	return lockedNow, nil
}

// OnSuccess сбрасывает счетчик, флаг блокировки не меняется
func (p *LockoutPolicy) OnSuccess(ctx context.Context, accounts repository.AccountRepository, account *domain.Account) error {
	if account.FailedLoginCount == 0 {
		return nil
	}
	account.FailedLoginCount = 0
	if err := accounts.UpdateLoginState(ctx, account); err != nil {
		return fmt.Errorf("failed to reset failed login count: %w", err)
	}
	return nil
}

// Reset административно снимает блокировку и обнуляет счетчик
func (p *LockoutPolicy) Reset(ctx context.Context, accounts repository.AccountRepository, account *domain.Account) error {
	account.FailedLoginCount = 0
	account.LockedOut = false
	if err := accounts.UpdateLoginState(ctx, account); err != nil {
		return fmt.Errorf("failed to reset lockout: %w", err)
	}
	p.logger.Info("Account lockout reset",
		logger.CtxField(ctx),
		logger.String("account_id", account.ID))
	return nil
}
