package directory

import (
	"context"
	"fmt"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/metrics"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// MembershipChecker определяет членство в удаленной группе
type MembershipChecker interface {
	IsMember(ctx context.Context, remoteGroup string) (bool, error)
}

// ChangeAction тип изменения членства
type ChangeAction string

const (
	ChangeAdded   ChangeAction = "added"
	ChangeRemoved ChangeAction = "removed"
)

// Change примененное изменение локального членства
type Change struct {
	Action      ChangeAction
	RemoteGroup string
	LocalGroup  string
}

// GroupSynchronizer переносит членство в группах каталога в локальные группы
type GroupSynchronizer struct {
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewGroupSynchronizer создает GroupSynchronizer
func NewGroupSynchronizer(log logger.Logger, m *metrics.Metrics) *GroupSynchronizer {
	return &GroupSynchronizer{logger: log, metrics: m}
}

// Synchronize сверяет членство аккаунта по таблице remote=local.
// Отсутствующие локальные группы и некорректные пары пропускаются.
// Повторный запуск без изменений в каталоге ничего не меняет.
// Изменения применяются только после того, как каталог ответил по всем парам.
func (s *GroupSynchronizer) Synchronize(ctx context.Context, groups repository.GroupRepository, account *domain.Account, remote MembershipChecker, mapping string) ([]Change, error) {
	log := s.logger.With(logger.String("account_id", account.ID))

	pairs, invalid := domain.ParseGroupMapping(mapping)
	for _, pair := range invalid {
		log.Warn("Skipping invalid group mapping entry", logger.String("entry", pair))
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	plan, err := s.plan(ctx, groups, account, remote, pairs, log)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(plan))
	for _, step := range plan {
		switch step.change.Action {
		case ChangeAdded:
			if err := groups.AddMember(ctx, step.groupID, account.ID); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrInternal, "failed to add group member")
			}
			log.Info("Added account to group", logger.String("local_group", step.change.LocalGroup))
		case ChangeRemoved:
			if err := groups.RemoveMember(ctx, step.groupID, account.ID); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrInternal, "failed to remove group member")
			}
			log.Info("Removed account from group", logger.String("local_group", step.change.LocalGroup))
		}
		changes = append(changes, step.change)
	}

	for _, change := range changes {
		s.metrics.AddGroupSyncChanges(string(change.Action), 1)
	}
	return changes, nil
}

type syncStep struct {
	groupID string
	change  Change
}

// plan только читает: локальные группы и членство в каталоге по каждой паре
func (s *GroupSynchronizer) plan(ctx context.Context, groups repository.GroupRepository, account *domain.Account, remote MembershipChecker, pairs []domain.GroupMapping, log logger.Logger) ([]syncStep, error) {
	current, err := groups.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account groups: %w", err)
	}
	local := make(map[string]bool, len(current))
	for _, group := range current {
		local[group.Name] = true
	}

	var steps []syncStep
	for _, pair := range pairs {
		group, err := groups.FindByName(ctx, account.TenantID, pair.Local)
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			log.Warn("No local group, skipping membership synchronization",
				logger.String("local_group", pair.Local))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find local group: %w", err)
		}

		isRemote, err := remote.IsMember(ctx, pair.Remote)
		if err != nil {
			return nil, err
		}

		var action ChangeAction
		switch {
		case isRemote && !local[pair.Local]:
			action = ChangeAdded
		case !isRemote && local[pair.Local]:
			action = ChangeRemoved
		default:
			continue
		}
		local[pair.Local] = isRemote
		steps = append(steps, syncStep{
			groupID: group.ID,
			change:  Change{Action: action, RemoteGroup: pair.Remote, LocalGroup: pair.Local},
		})
	}
	return steps, nil
}
