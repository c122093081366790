package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// GroupRepository реализация репозитория локальных групп для PostgreSQL
type GroupRepository struct {
	*BaseRepository
}

// NewGroupRepository создает новый экземпляр GroupRepository
func NewGroupRepository(q querier) repository.GroupRepository {
	return &GroupRepository{BaseRepository: NewBaseRepository(q)}
}

// Create сохраняет новую группу
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO groups (id, tenant_id, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.Exec(ctx, query, group.ID, group.TenantID, group.Name, group.CreatedAt); err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// FindByName возвращает группу тенанта по имени
func (r *GroupRepository) FindByName(ctx context.Context, tenantID, name string) (*domain.Group, error) {
	query := `SELECT id, tenant_id, name, created_at FROM groups WHERE tenant_id = $1 AND name = $2`

	var group domain.Group
	err := r.q.QueryRow(ctx, query, tenantID, name).Scan(&group.ID, &group.TenantID, &group.Name, &group.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get group by name: %w", notFound(err))
	}
	return &group, nil
}

// ListByAccount возвращает группы, в которых состоит аккаунт
func (r *GroupRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Group, error) {
	query := `SELECT g.id, g.tenant_id, g.name, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.account_id = $1
		ORDER BY g.name`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		var group domain.Group
		if err := rows.Scan(&group.ID, &group.TenantID, &group.Name, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// AddMember добавляет аккаунт в группу, повторное добавление ничего не меняет
func (r *GroupRepository) AddMember(ctx context.Context, groupID, accountID string) error {
	query := `INSERT INTO group_members (group_id, account_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.q.Exec(ctx, query, groupID, accountID); err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember удаляет аккаунт из группы
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, accountID string) error {
	query := `DELETE FROM group_members WHERE group_id = $1 AND account_id = $2`
	if _, err := r.q.Exec(ctx, query, groupID, accountID); err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}
