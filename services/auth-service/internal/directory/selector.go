// Package directory выбирает LDAP каталог по подсети клиента, проверяет
// учетные данные в каталоге и синхронизирует членство в группах.
package directory

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// BackendKind способ проверки учетных данных
type BackendKind int

const (
	// BackendLocal проверка по локальному дайджесту пароля
	BackendLocal BackendKind = iota
	// BackendDirectory проверка в LDAP каталоге
	BackendDirectory
)

func (k BackendKind) String() string {
	switch k {
	case BackendLocal:
		return "local"
	case BackendDirectory:
		return "directory"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// KindOf возвращает способ проверки для выбранного каталога
func KindOf(backend *domain.DirectoryBackend) BackendKind {
	if backend == nil {
		return BackendLocal
	}
	return BackendDirectory
}

// Selector выбирает каталог по IP адресу клиента
type Selector struct {
	logger logger.Logger
}

// NewSelector создает Selector
func NewSelector(log logger.Logger) *Selector {
	return &Selector{logger: log}
}

// Select возвращает первый включенный каталог тенанта, в список подсетей
// которого входит callerIP. nil означает локальную проверку.
func (s *Selector) Select(ctx context.Context, directories repository.DirectoryRepository, tenantID, callerIP string) (*domain.DirectoryBackend, error) {
	backends, err := directories.ListEnabled(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory backends: %w", err)
	}
	return s.Match(backends, callerIP), nil
}

// Match выбирает каталог из уже загруженного упорядоченного списка
func (s *Selector) Match(backends []*domain.DirectoryBackend, callerIP string) *domain.DirectoryBackend {
	if len(backends) == 0 {
		return nil
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(callerIP))
	if err != nil {
		s.logger.Warn("Caller address is not an IP, using local verification",
			logger.String("caller_ip", callerIP))
		return nil
	}
	addr = addr.Unmap()

	for _, backend := range backends {
		if !backend.Enabled {
			continue
		}
		for _, prefix := range s.parseAllowList(backend) {
			if prefix.Contains(addr) {
				return backend
			}
		}
	}
	return nil
}

// parseAllowList разбирает CIDR список, некорректные записи пропускаются
func (s *Selector) parseAllowList(backend *domain.DirectoryBackend) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, entry := range strings.Split(backend.SubnetAllowList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			s.logger.Warn("Skipping invalid subnet in directory allow list",
				logger.String("directory_id", backend.ID),
				logger.String("subnet", entry))
			continue
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes
}
