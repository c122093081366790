package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
	"SiteAuthPlatform/services/auth-service/internal/repository/memory"
)

// TestSelector_Match проверяет выбор первого каталога, содержащего адрес клиента
func TestSelector_Match(t *testing.T) {
	selector := NewSelector(logger.NewNopLogger())
	backends := []*domain.DirectoryBackend{
		{ID: "corp", SubnetAllowList: "10.0.0.0/8", Enabled: true},
		{ID: "office", SubnetAllowList: "192.168.0.0/16", Enabled: true},
	}

	tests := []struct {
		name     string
		callerIP string
		expected string
	}{
		{name: "second backend", callerIP: "192.168.1.5", expected: "office"},
		{name: "first backend", callerIP: "10.20.30.40", expected: "corp"},
		{name: "no match falls to local", callerIP: "8.8.8.8", expected: ""},
		{name: "ipv4 mapped ipv6", callerIP: "::ffff:192.168.1.5", expected: "office"},
		{name: "not an address", callerIP: "localhost", expected: ""},
		{name: "empty address", callerIP: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected := selector.Match(backends, tt.callerIP)
			if tt.expected == "" {
				assert.Nil(t, selected)
				assert.Equal(t, BackendLocal, KindOf(selected))
				return
			}
			require.NotNil(t, selected)
			assert.Equal(t, tt.expected, selected.ID)
			assert.Equal(t, BackendDirectory, KindOf(selected))
		})
	}
}

// TestSelector_Match_Order проверяет, что при пересечении подсетей выигрывает первый каталог
func TestSelector_Match_Order(t *testing.T) {
	selector := NewSelector(logger.NewNopLogger())
	backends := []*domain.DirectoryBackend{
		{ID: "disabled", SubnetAllowList: "0.0.0.0/0", Enabled: false},
		{ID: "broken", SubnetAllowList: "not-a-cidr, 300.1.1.1/8", Enabled: true},
		{ID: "wide", SubnetAllowList: " 172.16.0.0/12 , 10.0.0.0/8", Enabled: true},
		{ID: "narrow", SubnetAllowList: "10.1.0.0/16", Enabled: true},
	}

	selected := selector.Match(backends, "10.1.2.3")
	require.NotNil(t, selected)
	assert.Equal(t, "wide", selected.ID)
}

// TestSelector_Match_IPv6 проверяет IPv6 подсети
func TestSelector_Match_IPv6(t *testing.T) {
	selector := NewSelector(logger.NewNopLogger())
	backends := []*domain.DirectoryBackend{
		{ID: "v6", SubnetAllowList: "2001:db8::/32", Enabled: true},
	}

	assert.NotNil(t, selector.Match(backends, "2001:db8::1"))
	assert.Nil(t, selector.Match(backends, "2001:db9::1"))
}

// TestSelector_Select проверяет загрузку каталогов в порядке создания
func TestSelector_Select(t *testing.T) {
	store := memory.NewStore()
	selector := NewSelector(logger.NewNopLogger())
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		tenant := &domain.Tenant{Name: "acme"}
		require.NoError(t, tx.Tenants().Create(ctx, tenant))
		require.NoError(t, tx.Directories().Create(ctx, &domain.DirectoryBackend{
			ID: "later", TenantID: tenant.ID, SubnetAllowList: "10.0.0.0/8", Enabled: true, CreatedAt: created.Add(time.Minute),
		}))
		require.NoError(t, tx.Directories().Create(ctx, &domain.DirectoryBackend{
			ID: "earlier", TenantID: tenant.ID, SubnetAllowList: "10.0.0.0/8", Enabled: true, CreatedAt: created,
		}))

		selected, err := selector.Select(ctx, tx.Directories(), tenant.ID, "10.0.0.1")
		require.NoError(t, err)
		require.NotNil(t, selected)
		assert.Equal(t, "earlier", selected.ID)

		selected, err = selector.Select(ctx, tx.Directories(), "other", "10.0.0.1")
		require.NoError(t, err)
		assert.Nil(t, selected)
		return nil
	})
	require.NoError(t, err)
}

// TestBackendKind_String проверяет имена способов проверки
func TestBackendKind_String(t *testing.T) {
	assert.Equal(t, "local", BackendLocal.String())
	assert.Equal(t, "directory", BackendDirectory.String())
	assert.Contains(t, BackendKind(7).String(), "unknown")
}
