package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

func seed(t *testing.T, store *Store) (*domain.Tenant, *domain.Account) {
	t.Helper()
	tenant := &domain.Tenant{Name: "acme", MaxFailedLoginCount: 3}
	account := &domain.Account{Login: " Alice "}
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Tenants().Create(ctx, tenant))
		account.TenantID = tenant.ID
		return tx.Accounts().Create(ctx, account)
	})
	require.NoError(t, err)
	return tenant, account
}

// TestStore_RollbackOnError проверяет, что ошибка fn отменяет все изменения
func TestStore_RollbackOnError(t *testing.T) {
	store := NewStore()
	tenant, account := seed(t, store)
	assert.Equal(t, "alice", account.Login)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		found, err := tx.Accounts().FindByLogin(ctx, tenant.ID, "ALICE")
		require.NoError(t, err)
		found.FailedLoginCount = 5
		found.LockedOut = true
		require.NoError(t, tx.Accounts().UpdateLoginState(ctx, found))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		found, err := tx.Accounts().FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Zero(t, found.FailedLoginCount)
		assert.False(t, found.LockedOut)
		return nil
	})
	require.NoError(t, err)
}

// TestStore_NotFound проверяет код ошибки отсутствующей записи
func TestStore_NotFound(t *testing.T) {
	store := NewStore()
	tenant, _ := seed(t, store)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Accounts().FindByLogin(ctx, tenant.ID, "bob")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
		_, err = tx.Groups().FindByName(ctx, tenant.ID, "admins")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
		return nil
	})
	require.NoError(t, err)
}

// TestStore_SessionUniqueness проверяет оба уникальных ограничения записей входа
func TestStore_SessionUniqueness(t *testing.T) {
	store := NewStore()
	_, account := seed(t, store)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Sessions().Create(ctx, &domain.LoginSession{
			SessionIDHash: "s1", TransactionIDHash: "t1", AccountID: account.ID,
		}))

		err := tx.Sessions().Create(ctx, &domain.LoginSession{SessionIDHash: "s1", TransactionIDHash: "t2", AccountID: account.ID})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrDuplicateSession))

		err = tx.Sessions().Create(ctx, &domain.LoginSession{SessionIDHash: "s2", TransactionIDHash: "t1", AccountID: account.ID})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrDuplicateTransaction))

		exists, err := tx.Sessions().ExistsBySessionHash(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = tx.Sessions().ExistsByTransactionHash(ctx, "t2")
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}

// TestStore_DirectoryOrder проверяет порядок создания и фильтр Enabled
func TestStore_DirectoryOrder(t *testing.T) {
	store := NewStore()
	tenant, _ := seed(t, store)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for _, b := range []*domain.DirectoryBackend{
			{ID: "b", TenantID: tenant.ID, Enabled: true, CreatedAt: created},
			{ID: "a", TenantID: tenant.ID, Enabled: true, CreatedAt: created},
			{ID: "old", TenantID: tenant.ID, Enabled: true, CreatedAt: created.Add(-time.Hour)},
			{ID: "off", TenantID: tenant.ID, Enabled: false, CreatedAt: created.Add(-2 * time.Hour)},
			{ID: "other", TenantID: "other-tenant", Enabled: true, CreatedAt: created},
		} {
			require.NoError(t, tx.Directories().Create(ctx, b))
		}

		backends, err := tx.Directories().ListEnabled(ctx, tenant.ID)
		require.NoError(t, err)
		var ids []string
		for _, b := range backends {
			ids = append(ids, b.ID)
		}
		assert.Equal(t, []string{"old", "b", "a"}, ids)
		return nil
	})
	require.NoError(t, err)
}

// TestStore_GroupMembership проверяет идемпотентное добавление и удаление
func TestStore_GroupMembership(t *testing.T) {
	store := NewStore()
	tenant, account := seed(t, store)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		admins := &domain.Group{TenantID: tenant.ID, Name: "admins"}
		require.NoError(t, tx.Groups().Create(ctx, admins))
		assert.Error(t, tx.Groups().Create(ctx, &domain.Group{TenantID: tenant.ID, Name: "admins"}))

		require.NoError(t, tx.Groups().AddMember(ctx, admins.ID, account.ID))
		require.NoError(t, tx.Groups().AddMember(ctx, admins.ID, account.ID))

		list, err := tx.Groups().ListByAccount(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "admins", list[0].Name)

		require.NoError(t, tx.Groups().RemoveMember(ctx, admins.ID, account.ID))
		list, err = tx.Groups().ListByAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		return nil
	})
	require.NoError(t, err)
}

// TestStore_CanceledContext проверяет, что отмененный контекст не открывает транзакцию
func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewStore().WithinTx(ctx, func(context.Context, repository.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
