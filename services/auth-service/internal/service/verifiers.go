package service

import (
	"context"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/services/auth-service/internal/directory"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/pkg/password"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

type credentials struct {
	tenant   *domain.Tenant
	account  *domain.Account
	backend  *domain.DirectoryBackend
	password string
}

// credentialVerifier проверка учетных данных для одного directory.BackendKind
type credentialVerifier interface {
	verify(ctx context.Context, tx repository.Tx, creds credentials, log logger.Logger) error
}

type localVerifier struct {
	hasher password.Hasher
}

func (v localVerifier) verify(_ context.Context, _ repository.Tx, creds credentials, _ logger.Logger) error {
	if !v.hasher.Verify(creds.account, creds.password) {
		return apperrors.New(apperrors.ErrInvalidCredentials, "password mismatch")
	}
	return nil
}

type directoryVerifier struct {
	verifier     *directory.Verifier
	synchronizer *directory.GroupSynchronizer
}

// verify проверяет пароль в каталоге и синхронизирует группы через то же соединение
func (v directoryVerifier) verify(ctx context.Context, tx repository.Tx, creds credentials, log logger.Logger) error {
	log.Info("Attempting directory login",
		logger.String("directory_id", creds.backend.ID),
		logger.String("address", creds.backend.Address),
		logger.Int("port", creds.backend.Port))

	entry, err := v.verifier.Verify(ctx, creds.backend, creds.account, creds.password)
	if err != nil {
		return err
	}
	defer entry.Close()

	changes, err := v.synchronizer.Synchronize(ctx, tx.Groups(), creds.account, entry, creds.backend.RemoteLocalGroupMapping)
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		log.Info("Group membership synchronized", logger.Int("changes", len(changes)))
	}
	return nil
}
