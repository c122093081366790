package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"

	"SiteAuthPlatform/pkg/database"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store хранилище поверх пула PostgreSQL
type Store struct {
	db *database.Postgres
}

// NewStore создает хранилище
func NewStore(db *database.Postgres) *Store {
	return &Store{db: db}
}

// Migrate применяет встроенные миграции по порядку имен файлов.
// Миграции идемпотентны и могут выполняться при каждом старте.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := s.db.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

// WithinTx выполняет fn в транзакции PostgreSQL
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepositories(tx))
	})
}

type txRepositories struct {
	tenants     repository.TenantRepository
	accounts    repository.AccountRepository
	directories repository.DirectoryRepository
	groups      repository.GroupRepository
	devices     repository.DeviceRepository
	sessions    repository.LoginSessionRepository
}

func newTxRepositories(q querier) *txRepositories {
	return &txRepositories{
		tenants:     NewTenantRepository(q),
		accounts:    NewAccountRepository(q),
		directories: NewDirectoryRepository(q),
		groups:      NewGroupRepository(q),
		devices:     NewDeviceRepository(q),
		sessions:    NewLoginSessionRepository(q),
	}
}

func (t *txRepositories) Tenants() repository.TenantRepository        { return t.tenants }
func (t *txRepositories) Accounts() repository.AccountRepository      { return t.accounts }
func (t *txRepositories) Directories() repository.DirectoryRepository { return t.directories }
func (t *txRepositories) Groups() repository.GroupRepository          { return t.groups }
func (t *txRepositories) Devices() repository.DeviceRepository        { return t.devices }
func (t *txRepositories) Sessions() repository.LoginSessionRepository { return t.sessions }

var _ repository.Store = (*Store)(nil)
