package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// DirectoryRepository реализация репозитория LDAP каталогов для PostgreSQL
type DirectoryRepository struct {
	*BaseRepository
}

// NewDirectoryRepository создает новый экземпляр DirectoryRepository
func NewDirectoryRepository(q querier) repository.DirectoryRepository {
	return &DirectoryRepository{BaseRepository: NewBaseRepository(q)}
}

// Create сохраняет каталог. BindPassword должен быть уже зашифрован.
func (r *DirectoryRepository) Create(ctx context.Context, backend *domain.DirectoryBackend) error {
	if backend.ID == "" {
		backend.ID = uuid.NewString()
	}
	if backend.CreatedAt.IsZero() {
		backend.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO directory_backends (id, tenant_id, address, port, bind_dn, bind_password,
			user_login_attribute, user_search_base_dn, group_search_base_dn, subnet_allow_list,
			required_remote_group, remote_local_group_mapping, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.q.Exec(ctx, query,
		backend.ID,
		backend.TenantID,
		backend.Address,
		backend.Port,
		backend.BindDN,
		backend.BindPassword,
		backend.UserLoginAttribute,
		backend.UserSearchBaseDN,
		backend.GroupSearchBaseDN,
		backend.SubnetAllowList,
		backend.RequiredRemoteGroup,
		backend.RemoteLocalGroupMapping,
		backend.Enabled,
		backend.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create directory backend: %w", err)
	}
	return nil
}

// ListEnabled возвращает включенные каталоги тенанта в порядке создания
func (r *DirectoryRepository) ListEnabled(ctx context.Context, tenantID string) ([]*domain.DirectoryBackend, error) {
	if !validID(tenantID) {
		return nil, nil
	}
	query := `SELECT id, tenant_id, address, port, bind_dn, bind_password,
			user_login_attribute, user_search_base_dn, group_search_base_dn, subnet_allow_list,
			required_remote_group, remote_local_group_mapping, enabled, created_at
		FROM directory_backends
		WHERE tenant_id = $1 AND enabled
		ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory backends: %w", err)
	}
	defer rows.Close()

	var backends []*domain.DirectoryBackend
	for rows.Next() {
		var b domain.DirectoryBackend
		if err := rows.Scan(
			&b.ID,
			&b.TenantID,
			&b.Address,
			&b.Port,
			&b.BindDN,
			&b.BindPassword,
			&b.UserLoginAttribute,
			&b.UserSearchBaseDN,
			&b.GroupSearchBaseDN,
			&b.SubnetAllowList,
			&b.RequiredRemoteGroup,
			&b.RemoteLocalGroupMapping,
			&b.Enabled,
			&b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan directory backend: %w", err)
		}
		backends = append(backends, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directory backends: %w", err)
	}
	return backends, nil
}
