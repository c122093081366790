// Package memory содержит хранилище в памяти для тестов и локального запуска.
// Транзакции сериализуются, уникальные ограничения совпадают со схемой PostgreSQL.
//
// WithinTx держит общий мьютекс на все время обратного вызова, включая
// обращения к LDAP каталогу (до directory.bind_timeout на каждое). Все входы
// процесса выполняются по одному, поэтому для нагрузки нужен PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

type memberKey struct {
	groupID   string
	accountID string
}

type state struct {
	tenants     map[string]domain.Tenant
	accounts    map[string]domain.Account
	directories map[string]domain.DirectoryBackend
	groups      map[string]domain.Group
	members     map[memberKey]struct{}
	devices     map[string]domain.AuthenticationDevice
	sessions    map[string]domain.LoginSession
	// порядок вставки каталогов и устройств
	seq map[string]int64
	n   int64
}

func newState() *state {
	return &state{
		tenants:     make(map[string]domain.Tenant),
		accounts:    make(map[string]domain.Account),
		directories: make(map[string]domain.DirectoryBackend),
		groups:      make(map[string]domain.Group),
		members:     make(map[memberKey]struct{}),
		devices:     make(map[string]domain.AuthenticationDevice),
		sessions:    make(map[string]domain.LoginSession),
		seq:         make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.directories {
		c.directories[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k := range s.members {
		c.members[k] = struct{}{}
	}
	for k, v := range s.devices {
		c.devices[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.n = s.n
	return c
}

func (s *state) next(id string) {
	s.n++
	s.seq[id] = s.n
}

// Store хранилище в памяти
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx выполняет fn над копией данных и применяет ее только при успехе
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.state.clone()
	if err := fn(ctx, &tx{s: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

type tx struct {
	s *state
}

func (t *tx) Tenants() repository.TenantRepository        { return tenants{t.s} }
func (t *tx) Accounts() repository.AccountRepository      { return accounts{t.s} }
func (t *tx) Directories() repository.DirectoryRepository { return directories{t.s} }
func (t *tx) Groups() repository.GroupRepository          { return groups{t.s} }
func (t *tx) Devices() repository.DeviceRepository        { return devices{t.s} }
func (t *tx) Sessions() repository.LoginSessionRepository { return sessions{t.s} }

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

type tenants struct{ s *state }

func (r tenants) Create(_ context.Context, tenant *domain.Tenant) error {
	ensureID(&tenant.ID)
	if _, ok := r.s.tenants[tenant.ID]; ok {
		return fmt.Errorf("failed to create tenant: duplicate id %s", tenant.ID)
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	r.s.tenants[tenant.ID] = *tenant
	return nil
}

func (r tenants) FindByID(_ context.Context, id string) (*domain.Tenant, error) {
	tenant, ok := r.s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("failed to get tenant by id: %w", repository.ErrNotFound)
	}
	return &tenant, nil
}

type accounts struct{ s *state }

func (r accounts) Create(_ context.Context, account *domain.Account) error {
	ensureID(&account.ID)
	account.Login = domain.NormalizeLogin(account.Login)
	if _, ok := r.s.tenants[account.TenantID]; !ok {
		return fmt.Errorf("failed to create account: unknown tenant %s", account.TenantID)
	}
	for _, existing := range r.s.accounts {
		if existing.TenantID == account.TenantID && existing.Login == account.Login {
			return fmt.Errorf("failed to create account: login %q already exists", account.Login)
		}
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	r.s.accounts[account.ID] = *account
	return nil
}

func (r accounts) FindByID(_ context.Context, id string) (*domain.Account, error) {
	account, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("failed to get account by id: %w", repository.ErrNotFound)
	}
	return &account, nil
}

func (r accounts) FindByLogin(_ context.Context, tenantID, login string) (*domain.Account, error) {
	login = domain.NormalizeLogin(login)
	for _, account := range r.s.accounts {
		if account.TenantID == tenantID && account.Login == login {
			return &account, nil
		}
	}
	return nil, fmt.Errorf("failed to get account by login: %w", repository.ErrNotFound)
}

func (r accounts) UpdateLoginState(_ context.Context, account *domain.Account) error {
	stored, ok := r.s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("failed to update account login state: %w", repository.ErrNotFound)
	}
	account.UpdatedAt = time.Now().UTC()
	stored.FailedLoginCount = account.FailedLoginCount
	stored.LockedOut = account.LockedOut
	stored.UpdatedAt = account.UpdatedAt
	r.s.accounts[account.ID] = stored
	return nil
}

type directories struct{ s *state }

func (r directories) Create(_ context.Context, backend *domain.DirectoryBackend) error {
	ensureID(&backend.ID)
	if backend.CreatedAt.IsZero() {
		backend.CreatedAt = time.Now().UTC()
	}
	r.s.directories[backend.ID] = *backend
	r.s.next(backend.ID)
	return nil
}

func (r directories) ListEnabled(_ context.Context, tenantID string) ([]*domain.DirectoryBackend, error) {
	var result []*domain.DirectoryBackend
	for _, backend := range r.s.directories {
		if backend.TenantID == tenantID && backend.Enabled {
			b := backend
			result = append(result, &b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return r.s.seq[result[i].ID] < r.s.seq[result[j].ID]
	})
	return result, nil
}

type groups struct{ s *state }

func (r groups) Create(_ context.Context, group *domain.Group) error {
	ensureID(&group.ID)
	for _, existing := range r.s.groups {
		if existing.TenantID == group.TenantID && existing.Name == group.Name {
			return fmt.Errorf("failed to create group: name %q already exists", group.Name)
		}
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	r.s.groups[group.ID] = *group
	return nil
}

func (r groups) FindByName(_ context.Context, tenantID, name string) (*domain.Group, error) {
	for _, group := range r.s.groups {
		if group.TenantID == tenantID && group.Name == name {
			return &group, nil
		}
	}
	return nil, fmt.Errorf("failed to get group by name: %w", repository.ErrNotFound)
}

func (r groups) ListByAccount(_ context.Context, accountID string) ([]*domain.Group, error) {
	var result []*domain.Group
	for key := range r.s.members {
		if key.accountID != accountID {
			continue
		}
		if group, ok := r.s.groups[key.groupID]; ok {
			result = append(result, &group)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r groups) AddMember(_ context.Context, groupID, accountID string) error {
	if _, ok := r.s.groups[groupID]; !ok {
		return fmt.Errorf("failed to add group member: %w", repository.ErrNotFound)
	}
	if _, ok := r.s.accounts[accountID]; !ok {
		return fmt.Errorf("failed to add group member: %w", repository.ErrNotFound)
	}
	r.s.members[memberKey{groupID: groupID, accountID: accountID}] = struct{}{}
	return nil
}

func (r groups) RemoveMember(_ context.Context, groupID, accountID string) error {
	delete(r.s.members, memberKey{groupID: groupID, accountID: accountID})
	return nil
}

type devices struct{ s *state }

func (r devices) Create(_ context.Context, device *domain.AuthenticationDevice) error {
	ensureID(&device.ID)
	if _, ok := r.s.accounts[device.AccountID]; !ok {
		return fmt.Errorf("failed to create authentication device: %w", repository.ErrNotFound)
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.ModifiedAt = now
	r.s.devices[device.ID] = *device
	r.s.next(device.ID)
	return nil
}

func (r devices) ListByAccount(_ context.Context, accountID string) ([]*domain.AuthenticationDevice, error) {
	var result []*domain.AuthenticationDevice
	for _, device := range r.s.devices {
		if device.AccountID == accountID {
			d := device
			result = append(result, &d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return r.s.seq[result[i].ID] < r.s.seq[result[j].ID] })
	return result, nil
}

type sessions struct{ s *state }

func (r sessions) Create(_ context.Context, session *domain.LoginSession) error {
	ensureID(&session.ID)
	for _, existing := range r.s.sessions {
		if existing.SessionIDHash == session.SessionIDHash {
			return repository.ErrDuplicateSession
		}
		if existing.TransactionIDHash == session.TransactionIDHash {
			return repository.ErrDuplicateTransaction
		}
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	r.s.sessions[session.ID] = *session
	return nil
}

func (r sessions) ExistsBySessionHash(_ context.Context, hash string) (bool, error) {
	for _, session := range r.s.sessions {
		if session.SessionIDHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r sessions) ExistsByTransactionHash(_ context.Context, hash string) (bool, error) {
	for _, session := range r.s.sessions {
		if session.TransactionIDHash == hash {
			return true, nil
		}
	}
	return false, nil
}

var _ repository.Store = (*Store)(nil)
