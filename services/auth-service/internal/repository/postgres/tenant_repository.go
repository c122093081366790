package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// TenantRepository реализация репозитория тенантов для PostgreSQL
type TenantRepository struct {
	*BaseRepository
}

// NewTenantRepository создает новый экземпляр TenantRepository
func NewTenantRepository(q querier) repository.TenantRepository {
	return &TenantRepository{BaseRepository: NewBaseRepository(q)}
}

// Create сохраняет новый тенант
func (r *TenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO tenants (id, name, max_failed_login_count, allow_directory_login, allow_second_factor_bypass, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.q.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.MaxFailedLoginCount,
		tenant.AllowDirectoryLogin,
		tenant.AllowSecondFactorBypass,
		tenant.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// FindByID возвращает тенант по ID
func (r *TenantRepository) FindByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if !validID(id) {
		return nil, fmt.Errorf("failed to get tenant by id: %w", repository.ErrNotFound)
	}

	query := `SELECT id, name, max_failed_login_count, allow_directory_login, allow_second_factor_bypass, created_at
		FROM tenants WHERE id = $1`

	var tenant domain.Tenant
	err := r.q.QueryRow(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.MaxFailedLoginCount,
		&tenant.AllowDirectoryLogin,
		&tenant.AllowSecondFactorBypass,
		&tenant.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by id: %w", notFound(err))
	}
	return &tenant, nil
}
