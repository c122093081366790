package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/pkg/hash"
	"SiteAuthPlatform/services/auth-service/internal/repository"
	"SiteAuthPlatform/services/auth-service/internal/repository/memory"
)

// TestReplayGuard_Key проверяет, что в хранилище попадают только дайджесты
func TestReplayGuard_Key(t *testing.T) {
	guard := NewReplayGuard(hash.NewTokenHasher())
	key := guard.Key("JSESSIONID-1", "tx-1")

	assert.Len(t, key.SessionHash, 64)
	assert.NotContains(t, key.SessionHash, "JSESSIONID")
	assert.Equal(t, key, guard.Key("JSESSIONID-1", "tx-1"))
	assert.NotEqual(t, key.SessionHash, guard.Key("JSESSIONID-2", "tx-1").SessionHash)
}

// TestReplayGuard_AdmitDistinguishesReason проверяет различие повтора сессии и транзакции
func TestReplayGuard_AdmitDistinguishesReason(t *testing.T) {
	store := memory.NewStore()
	guard := NewReplayGuard(hash.NewTokenHasher())
	_, _, account := lockoutFixtureStore(t, store)

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		key := guard.Key("s1", "t1")
		require.NoError(t, guard.Admit(ctx, tx.Sessions(), key))
		require.NoError(t, guard.Record(ctx, tx.Sessions(), key, account.ID))

		err := guard.Admit(ctx, tx.Sessions(), guard.Key("s1", "t2"))
		assert.Equal(t, apperrors.ErrDuplicateSession, apperrors.CodeOf(err))

		err = guard.Admit(ctx, tx.Sessions(), guard.Key("s2", "t1"))
		assert.Equal(t, apperrors.ErrDuplicateTransaction, apperrors.CodeOf(err))

		assert.NoError(t, guard.Admit(ctx, tx.Sessions(), guard.Key("s2", "t2")))
		return nil
	}))
}

// TestReplayGuard_ConcurrentAdmit проверяет, что из параллельных входов с одной сессией проходит ровно один
func TestReplayGuard_ConcurrentAdmit(t *testing.T) {
	store := memory.NewStore()
	guard := NewReplayGuard(hash.NewTokenHasher())
	_, _, account := lockoutFixtureStore(t, store)

	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		admitted  atomic.Int32
		duplicate atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			key := guard.Key("same-session", "transaction-"+string(rune('a'+i)))
			err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				if err := guard.Admit(ctx, tx.Sessions(), key); err != nil {
					return err
				}
				return guard.Record(ctx, tx.Sessions(), key, account.ID)
			})
			if err == nil {
				admitted.Add(1)
			} else if apperrors.IsDuplicateLogin(err) {
				duplicate.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(15), duplicate.Load())
}

// TestReplayGuard_RecordMapsConstraintViolation проверяет, что гонка после Admit дает ту же ошибку повтора
func TestReplayGuard_RecordMapsConstraintViolation(t *testing.T) {
	store := memory.NewStore()
	guard := NewReplayGuard(hash.NewTokenHasher())
	_, _, account := lockoutFixtureStore(t, store)
	key := guard.Key("s", "t")

	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, guard.Admit(ctx, tx.Sessions(), key))
		// конкурент успел вставить запись между проверкой и вставкой
		require.NoError(t, tx.Sessions().Create(ctx, &domain.LoginSession{
			SessionIDHash: key.SessionHash, TransactionIDHash: "other", AccountID: account.ID,
		}))
		err := guard.Record(ctx, tx.Sessions(), key, account.ID)
		assert.True(t, apperrors.IsDuplicateLogin(err))
		return nil
	}))
}

func lockoutFixtureStore(t *testing.T, store *memory.Store) (*memory.Store, *domain.Tenant, *domain.Account) {
	t.Helper()
	tenant := &domain.Tenant{Name: "acme"}
	account := &domain.Account{Login: "carol"}
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Tenants().Create(ctx, tenant))
		account.TenantID = tenant.ID
		return tx.Accounts().Create(ctx, account)
	}))
	return store, tenant, account
}
