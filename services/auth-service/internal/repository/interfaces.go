package repository

import (
	"context"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/services/auth-service/internal/domain"
)

var (
	// ErrNotFound запись отсутствует
	ErrNotFound = apperrors.New(apperrors.ErrNotFound, "record not found")
	// ErrDuplicateSession сессия уже использовалась для входа
	ErrDuplicateSession = apperrors.New(apperrors.ErrDuplicateSession, "login session already recorded for session id")
	// ErrDuplicateTransaction транзакция уже использовалась для входа
	ErrDuplicateTransaction = apperrors.New(apperrors.ErrDuplicateTransaction, "login session already recorded for transaction id")
)

// Store открывает транзакции над хранилищем.
// Все изменения одной попытки входа выполняются в одной транзакции.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx набор репозиториев, работающих в рамках одной транзакции
type Tx interface {
	Tenants() TenantRepository
	Accounts() AccountRepository
	Directories() DirectoryRepository
	Groups() GroupRepository
	Devices() DeviceRepository
	Sessions() LoginSessionRepository
}

// TenantRepository интерфейс для работы с тенантами
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	FindByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// AccountRepository интерфейс для работы с аккаунтами.
// FindByLogin блокирует строку до конца транзакции.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByLogin(ctx context.Context, tenantID, login string) (*domain.Account, error)
	UpdateLoginState(ctx context.Context, account *domain.Account) error
}

// DirectoryRepository интерфейс для работы с каталогами
type DirectoryRepository interface {
	Create(ctx context.Context, backend *domain.DirectoryBackend) error
	// ListEnabled возвращает включенные каталоги в порядке создания
	ListEnabled(ctx context.Context, tenantID string) ([]*domain.DirectoryBackend, error)
}

// GroupRepository интерфейс для работы с локальными группами
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	FindByName(ctx context.Context, tenantID, name string) (*domain.Group, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Group, error)
	AddMember(ctx context.Context, groupID, accountID string) error
	RemoveMember(ctx context.Context, groupID, accountID string) error
}

// DeviceRepository интерфейс для работы с устройствами второго фактора
type DeviceRepository interface {
	Create(ctx context.Context, device *domain.AuthenticationDevice) error
	ListByAccount(ctx context.Context, accountID string) ([]*domain.AuthenticationDevice, error)
}

// LoginSessionRepository интерфейс для записей об успешных входах.
// Create возвращает ErrDuplicateSession или ErrDuplicateTransaction при нарушении уникальности.
type LoginSessionRepository interface {
	Create(ctx context.Context, session *domain.LoginSession) error
	ExistsBySessionHash(ctx context.Context, hash string) (bool, error)
	ExistsByTransactionHash(ctx context.Context, hash string) (bool, error)
}
