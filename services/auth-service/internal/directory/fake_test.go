package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"SiteAuthPlatform/services/auth-service/internal/domain"
)

// fakeDirectory каталог в памяти: записи пользователей, пароли и группы uniqueMember
type fakeDirectory struct {
	mu        sync.Mutex
	serviceDN string
	servicePW string
	users     map[string]string   // login -> dn
	passwords map[string]string   // dn -> password
	groups    map[string][]string // cn -> member dns
	searchErr error
	dialErr   error
	closed    int
	filters   []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		serviceDN: "cn=service,dc=example,dc=org",
		servicePW: "service-secret",
		users:     map[string]string{},
		passwords: map[string]string{},
		groups:    map[string][]string{},
	}
}

func (d *fakeDirectory) addUser(login, password string, groups ...string) string {
	dn := "uid=" + login + ",ou=people,dc=example,dc=org"
	d.users[login] = dn
	d.passwords[dn] = password
	for _, g := range groups {
		d.groups[g] = append(d.groups[g], dn)
	}
	return dn
}

func (d *fakeDirectory) setGroupMembers(group string, dns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[group] = dns
}

func (d *fakeDirectory) Dial(_ context.Context, _ *domain.DirectoryBackend) (Conn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeConn{dir: d}, nil
}

type fakeConn struct {
	dir *fakeDirectory
}

func (c *fakeConn) Bind(dn, password string) error {
	d := c.dir
	if dn == d.serviceDN && password == d.servicePW {
		return nil
	}
	if expected, ok := d.passwords[dn]; ok && expected == password {
		return nil
	}
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *fakeConn) Search(request *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d := c.dir
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters = append(d.filters, request.Filter)
	if d.searchErr != nil {
		return nil, d.searchErr
	}

	result := &ldap.SearchResult{}
	if strings.HasPrefix(request.Filter, "(&(uniqueMember=") {
		inner := strings.TrimSuffix(strings.TrimPrefix(request.Filter, "(&(uniqueMember="), "))")
		dn, cn, _ := strings.Cut(inner, ")(cn=")
		for _, member := range d.groups[cn] {
			if member == dn {
				result.Entries = append(result.Entries, ldap.NewEntry("cn="+cn+",ou=groups,dc=example,dc=org", nil))
			}
		}
		return result, nil
	}

	_, value, _ := strings.Cut(strings.Trim(request.Filter, "()"), "=")
	if dn, ok := d.users[value]; ok {
		result.Entries = append(result.Entries, ldap.NewEntry(dn, nil))
	}
	return result, nil
}

func (c *fakeConn) Close() {
	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	c.dir.closed++
}

// plainSecrets возвращает значение без расшифровки
type plainSecrets struct {
	err error
}

func (p plainSecrets) DecryptSecret(value string) (string, error) {
	return value, p.err
}
