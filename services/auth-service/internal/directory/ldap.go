package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"

	"SiteAuthPlatform/services/auth-service/internal/domain"
)

// Conn соединение с каталогом
type Conn interface {
	Bind(dn, password string) error
	Search(request *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close()
}

// Dialer открывает соединение с каталогом
type Dialer interface {
	Dial(ctx context.Context, backend *domain.DirectoryBackend) (Conn, error)
}

// LDAPDialer открывает соединения через go-ldap
type LDAPDialer struct {
	timeout time.Duration
	useTLS  bool
}

// NewLDAPDialer создает LDAPDialer. timeout ограничивает подключение и каждую операцию.
func NewLDAPDialer(timeout time.Duration, useTLS bool) *LDAPDialer {
	return &LDAPDialer{timeout: timeout, useTLS: useTLS}
}

// Dial подключается к адресу каталога
func (d *LDAPDialer) Dial(ctx context.Context, backend *domain.DirectoryBackend) (Conn, error) {
	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("directory dial: %w", context.DeadlineExceeded)
	}

	scheme := "ldap"
	options := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: timeout})}
	if d.useTLS {
		scheme = "ldaps"
		options = append(options, ldap.DialWithTLSConfig(&tls.Config{
			ServerName: backend.Address,
			MinVersion: tls.VersionTLS12,
		}))
	}

	url := fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(backend.Address, strconv.Itoa(backend.Port)))
	conn, err := ldap.DialURL(url, options...)
	if err != nil {
		return nil, fmt.Errorf("directory dial %s: %w", url, err)
	}
	conn.SetTimeout(timeout)

	return &ldapConn{conn: conn}, nil
}

type ldapConn struct {
	conn *ldap.Conn
}

func (c *ldapConn) Bind(dn, password string) error {
	return c.conn.Bind(dn, password)
}

func (c *ldapConn) Search(request *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return c.conn.Search(request)
}

func (c *ldapConn) Close() {
	c.conn.Close()
}
