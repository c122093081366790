package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"

	"SiteAuthPlatform/pkg/config"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/services/auth-service/internal/audit"
	"SiteAuthPlatform/services/auth-service/internal/directory"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/pkg/cipher"
	"SiteAuthPlatform/services/auth-service/internal/pkg/hash"
	"SiteAuthPlatform/services/auth-service/internal/pkg/password"
	"SiteAuthPlatform/services/auth-service/internal/pkg/totp"
	"SiteAuthPlatform/services/auth-service/internal/repository"
	"SiteAuthPlatform/services/auth-service/internal/repository/memory"
)

// fixedNow момент времени всех тестов входа
var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const totpSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

// recordingAudit сохраняет события аудита
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Record(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []audit.EventType
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

// fakeLDAP каталог с одним пользователем и набором групп
type fakeLDAP struct {
	userDN   string
	password string
	groups   map[string]bool
	// groupErrs ошибки поиска по отдельным группам
	groupErrs map[string]error
	dialErr   error
}

func (f *fakeLDAP) Dial(context.Context, *domain.DirectoryBackend) (directory.Conn, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeLDAPConn{dir: f}, nil
}

type fakeLDAPConn struct {
	dir *fakeLDAP
}

func (c *fakeLDAPConn) Bind(dn, pw string) error {
	if dn == "cn=service" && pw == "service-secret" {
		return nil
	}
	if dn == c.dir.userDN && pw == c.dir.password {
		return nil
	}
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *fakeLDAPConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	result := &ldap.SearchResult{}
	if req.BaseDN == "ou=people" {
		result.Entries = append(result.Entries, ldap.NewEntry(c.dir.userDN, nil))
		return result, nil
	}
	groupFilter := func(group string) string {
		return "(&(uniqueMember=" + ldap.EscapeFilter(c.dir.userDN) + ")(cn=" + group + "))"
	}
	for group, err := range c.dir.groupErrs {
		if req.Filter == groupFilter(group) {
			return nil, err
		}
	}
	for group, member := range c.dir.groups {
		if member && req.Filter == groupFilter(group) {
			result.Entries = append(result.Entries, ldap.NewEntry("cn="+group, nil))
		}
	}
	return result, nil
}

func (c *fakeLDAPConn) Close() {}

// failingStore хранилище, которое не может открыть транзакцию
type failingStore struct{}

func (failingStore) WithinTx(context.Context, func(context.Context, repository.Tx) error) error {
	return errors.New("connection reset by peer")
}

type fixture struct {
	t           *testing.T
	store       *memory.Store
	secrets     *cipher.SecretCipher
	coordinator *Coordinator
	audit       *recordingAudit
	ldap        *fakeLDAP
	tenant      *domain.Tenant
	account     *domain.Account
}

func newSecretCipher(t *testing.T) *cipher.SecretCipher {
	t.Helper()
	candidate, err := cipher.GenerateCandidateKey()
	require.NoError(t, err)
	secrets := cipher.NewSecretCipher(config.SecurityConfig{KeyEncryptionSecretKey: candidate}, logger.NewNopLogger())
	require.NoError(t, secrets.Check())
	return secrets
}

// newFixture создает тенант с порогом блокировки maxFailed и аккаунт alice с паролем "correct horse"
func newFixture(t *testing.T, maxFailed int, options Options) *fixture {
	t.Helper()
	return newFixtureWith(t, maxFailed, options, nil)
}

// newFixtureWith позволяет изменить тенант и аккаунт до их сохранения
func newFixtureWith(t *testing.T, maxFailed int, options Options, setup func(f *fixture)) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		store:   memory.NewStore(),
		secrets: newSecretCipher(t),
		audit:   &recordingAudit{},
		ldap: &fakeLDAP{
			userDN:    "uid=alice,ou=people",
			password:  "directory pass",
			groups:    map[string]bool{},
			groupErrs: map[string]error{},
		},
		tenant: &domain.Tenant{
			Name:                    "acme",
			MaxFailedLoginCount:     maxFailed,
			AllowDirectoryLogin:     true,
			AllowSecondFactorBypass: true,
		},
		account: &domain.Account{ID: "11111111-1111-1111-1111-111111111111", Login: "Alice"},
	}
	hasher := password.NewDigestHasher(8)
	f.account.PasswordHash = hasher.HashForAccount(f.account, "correct horse")
	if setup != nil {
		setup(f)
	}

	f.tx(func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Tenants().Create(ctx, f.tenant))
		f.account.TenantID = f.tenant.ID
		return tx.Accounts().Create(ctx, f.account)
	})

	log := logger.NewNopLogger()
	f.coordinator = NewCoordinator(Dependencies{
		Store:        f.store,
		Hasher:       hasher,
		TOTP:         totp.NewValidator(0),
		Secrets:      f.secrets,
		Selector:     directory.NewSelector(log),
		Directory:    directory.NewVerifier(f.ldap, plainSecrets{}, log, nil),
		Synchronizer: directory.NewGroupSynchronizer(log, nil),
		Replay:       NewReplayGuard(hash.NewTokenHasher()),
		Lockout:      NewLockoutPolicy(log),
		Audit:        f.audit,
		Logger:       log,
	}, options)
	f.coordinator.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) tx(fn func(ctx context.Context, tx repository.Tx) error) {
	f.t.Helper()
	require.NoError(f.t, f.store.WithinTx(context.Background(), fn))
}

var requestSeq int

// request возвращает запрос с уникальными идентификаторами сессии и транзакции
func (f *fixture) request(pw string) LoginRequest {
	requestSeq++
	return LoginRequest{
		TenantID:      f.tenant.ID,
		Login:         "ALICE",
		Password:      pw,
		CallerIP:      "203.0.113.10",
		SessionID:     "session-" + strconv.Itoa(requestSeq),
		TransactionID: "transaction-" + strconv.Itoa(requestSeq),
	}
}

func (f *fixture) reload() *domain.Account {
	f.t.Helper()
	var account *domain.Account
	f.tx(func(ctx context.Context, tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().FindByID(ctx, f.account.ID)
		return err
	})
	return account
}

func (f *fixture) addDirectory(subnets, mapping string) *domain.DirectoryBackend {
	backend := &domain.DirectoryBackend{
		TenantID:                f.tenant.ID,
		Address:                 "ldap.example.org",
		Port:                    389,
		BindDN:                  "cn=service",
		BindPassword:            "service-secret",
		UserLoginAttribute:      "mail",
		UserSearchBaseDN:        "ou=people",
		GroupSearchBaseDN:       "ou=groups",
		SubnetAllowList:         subnets,
		RemoteLocalGroupMapping: mapping,
		Enabled:                 true,
	}
	f.tx(func(ctx context.Context, tx repository.Tx) error {
		return tx.Directories().Create(ctx, backend)
	})
	return backend
}

func (f *fixture) addGroup(name string) *domain.Group {
	group := &domain.Group{TenantID: f.tenant.ID, Name: name}
	f.tx(func(ctx context.Context, tx repository.Tx) error {
		return tx.Groups().Create(ctx, group)
	})
	return group
}

// memberships возвращает имена локальных групп аккаунта
func (f *fixture) memberships() []string {
	f.t.Helper()
	var names []string
	f.tx(func(ctx context.Context, tx repository.Tx) error {
		groups, err := tx.Groups().ListByAccount(ctx, f.account.ID)
		for _, group := range groups {
			names = append(names, group.Name)
		}
		return err
	})
	return names
}

func (f *fixture) addDevice(kind domain.DeviceKind, secret string) {
	encrypted, err := f.secrets.EncryptSecret(secret)
	require.NoError(f.t, err)
	f.tx(func(ctx context.Context, tx repository.Tx) error {
		return tx.Devices().Create(ctx, &domain.AuthenticationDevice{
			AccountID:       f.account.ID,
			Kind:            kind,
			Name:            string(kind),
			EncryptedSecret: encrypted,
		})
	})
}

// plainSecrets пароль каталога в тестах хранится открытым
type plainSecrets struct{}

func (plainSecrets) DecryptSecret(value string) (string, error) { return value, nil }
