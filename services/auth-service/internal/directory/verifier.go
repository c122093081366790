package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/metrics"
	"SiteAuthPlatform/services/auth-service/internal/domain"
)

// SecretDecrypter расшифровывает пароль служебной учетной записи каталога
type SecretDecrypter interface {
	DecryptSecret(value string) (string, error)
}

// BoundEntry запись пользователя, от имени которой выполнен bind.
// Соединение остается открытым для проверки групп и должно быть закрыто через Close.
type BoundEntry struct {
	DN      string
	Backend *domain.DirectoryBackend
	conn    Conn
}

// IsMember проверяет членство записи в удаленной группе
func (e *BoundEntry) IsMember(ctx context.Context, remoteGroup string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(err)
	}
	return isMember(e.conn, e.Backend.GroupSearchBaseDN, e.DN, remoteGroup)
}

// Close закрывает соединение с каталогом
func (e *BoundEntry) Close() {
	if e != nil && e.conn != nil {
		e.conn.Close()
	}
}

// Verifier проверяет учетные данные в каталоге
type Verifier struct {
	dialer  Dialer
	secrets SecretDecrypter
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewVerifier создает Verifier. metrics может быть nil.
func NewVerifier(dialer Dialer, secrets SecretDecrypter, log logger.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{dialer: dialer, secrets: secrets, logger: log, metrics: m}
}

// Verify выполняет служебный bind, ищет запись по логину, повторяет bind
// от имени найденной записи и проверяет обязательную группу.
func (v *Verifier) Verify(ctx context.Context, backend *domain.DirectoryBackend, account *domain.Account, password string) (entry *BoundEntry, err error) {
	start := time.Now()
	defer func() {
		v.metrics.ObserveDirectory(resultLabel(err), time.Since(start))
	}()

	bindPassword, err := v.secrets.DecryptSecret(backend.BindPassword)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	conn, err := v.dialer.Dial(ctx, backend)
	if err != nil {
		return nil, unavailable(err)
	}

	entry, err = v.verify(conn, backend, account, password, bindPassword)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return entry, nil
}

func (v *Verifier) verify(conn Conn, backend *domain.DirectoryBackend, account *domain.Account, password, bindPassword string) (*BoundEntry, error) {
	log := v.logger.With(
		logger.String("directory_id", backend.ID),
		logger.String("account_id", account.ID),
	)

	if err := conn.Bind(backend.BindDN, bindPassword); err != nil {
		log.Error("Directory service bind failed", logger.Error(err))
		return nil, unavailable(err)
	}

	filter := fmt.Sprintf("(%s=%s)", backend.UserLoginAttribute, ldap.EscapeFilter(account.Login))
	result, err := conn.Search(ldap.NewSearchRequest(
		backend.UserSearchBaseDN,
		ldap.ScopeSingleLevel, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{backend.UserLoginAttribute},
		nil,
	))
	if err != nil {
		log.Error("Directory user search failed", logger.Error(err))
		return nil, unavailable(err)
	}
	if len(result.Entries) == 0 {
		log.Warn("User not found in directory")
		return nil, apperrors.New(apperrors.ErrDirectoryUserNotFound, "user not found in directory")
	}

	dn := result.Entries[0].DN
	// пустой пароль в LDAP означает анонимный bind, который всегда успешен
	if password == "" {
		return nil, apperrors.New(apperrors.ErrInvalidCredentials, "directory bind rejected")
	}
	if err := conn.Bind(dn, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			log.Warn("Directory bind rejected")
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidCredentials, "directory bind rejected")
		}
		log.Error("Directory user bind failed", logger.Error(err))
		return nil, unavailable(err)
	}

	if backend.RequiredRemoteGroup != "" {
		member, err := isMember(conn, backend.GroupSearchBaseDN, dn, backend.RequiredRemoteGroup)
		if err != nil {
			log.Error("Directory group search failed", logger.Error(err))
			return nil, err
		}
		if !member {
			log.Warn("User not in required remote group",
				logger.String("group", backend.RequiredRemoteGroup))
			return nil, apperrors.New(apperrors.ErrNotInRequiredGroup, "user not in required remote group")
		}
	}

	return &BoundEntry{DN: dn, Backend: backend, conn: conn}, nil
}

// isMember ищет группу с указанным cn, содержащую dn в uniqueMember
func isMember(conn Conn, baseDN, dn, group string) (bool, error) {
	filter := fmt.Sprintf("(&(uniqueMember=%s)(cn=%s))", ldap.EscapeFilter(dn), ldap.EscapeFilter(group))
	result, err := conn.Search(ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeSingleLevel, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"cn"},
		nil,
	))
	if err != nil {
		return false, unavailable(err)
	}
	return len(result.Entries) > 0, nil
}

func unavailable(err error) error {
	return apperrors.Wrap(err, apperrors.ErrDirectoryUnavailable, "directory unavailable")
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.HasCode(err, apperrors.ErrDirectoryUnavailable):
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout"
		}
		return "unavailable"
	default:
		return "rejected"
	}
}
