package domain

import (
	"strings"
	"time"
)

// Tenant представляет компанию, границу изоляции данных.
// Все аккаунты, каталоги и группы принадлежат ровно одному tenant.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// MaxFailedLoginCount порог блокировки, 0 отключает блокировку
	MaxFailedLoginCount int  `json:"max_failed_login_count"`
	AllowDirectoryLogin bool `json:"allow_directory_login"`
	// AllowSecondFactorBypass разрешает вход без устройства второго фактора
	AllowSecondFactorBypass bool      `json:"allow_second_factor_bypass"`
	CreatedAt               time.Time `json:"created_at"`
}

// Account представляет пользователя tenant.
// Login хранится в нижнем регистре, PasswordHash это hex SHA-256.
type Account struct {
	ID               string `json:"id"`
	TenantID         string `json:"tenant_id"`
	Login            string `json:"login"`
	PasswordHash     string `json:"password_hash"`
	FailedLoginCount int    `json:"failed_login_count"`
	LockedOut        bool   `json:"locked_out"`
	// SecondFactorSecret зашифрованный секретным слоем TOTP секрет (устаревшее поле)
	SecondFactorSecret string     `json:"second_factor_secret,omitempty"`
	PasswordExpiresAt  *time.Time `json:"password_expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NormalizeLogin приводит идентификатор входа к каноничному виду
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// DirectoryBackend представляет LDAP каталог tenant
type DirectoryBackend struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	BindDN   string `json:"bind_dn"`
	// BindPassword зашифрован секретным слоем
	BindPassword       string `json:"bind_password"`
	UserLoginAttribute string `json:"user_login_attribute"`
	UserSearchBaseDN   string `json:"user_search_base_dn"`
	GroupSearchBaseDN  string `json:"group_search_base_dn"`
	// SubnetAllowList CIDR через запятую
	SubnetAllowList     string `json:"subnet_allow_list"`
	RequiredRemoteGroup string `json:"required_remote_group,omitempty"`
	// RemoteLocalGroupMapping пары remote=local через запятую
	RemoteLocalGroupMapping string    `json:"remote_local_group_mapping,omitempty"`
	Enabled                 bool      `json:"enabled"`
	CreatedAt               time.Time `json:"created_at"`
}

// GroupMapping пара удаленная группа каталога -> локальная группа
type GroupMapping struct {
	Remote string
	Local  string
}

// ParseGroupMapping разбирает строку вида "remote=local,remote2=local2".
// Пустые и некорректные пары возвращаются отдельно.
func ParseGroupMapping(raw string) (mappings []GroupMapping, invalid []string) {
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		remote, local, ok := strings.Cut(pair, "=")
		remote = strings.TrimSpace(remote)
		local = strings.TrimSpace(local)
		if !ok || remote == "" || local == "" {
			invalid = append(invalid, pair)
			continue
		}
		mappings = append(mappings, GroupMapping{Remote: remote, Local: local})
	}
	return mappings, invalid
}

// Group локальная группа, имя уникально в рамках tenant
type Group struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember членство аккаунта в группе
type GroupMember struct {
	GroupID   string `json:"group_id"`
	AccountID string `json:"account_id"`
}

// DeviceKind тип устройства второго фактора
type DeviceKind string

const (
	DeviceKindTOTP DeviceKind = "totp"
	DeviceKindU2F  DeviceKind = "u2f"
)

// AuthenticationDevice устройство второго фактора аккаунта
type AuthenticationDevice struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Kind      DeviceKind `json:"kind"`
	Name      string     `json:"name"`
	// EncryptedSecret секрет устройства, зашифрованный секретным слоем
	EncryptedSecret string    `json:"encrypted_secret"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
}

// CurrentDevice результат определения текущего типа устройства
type CurrentDevice struct {
	Kind      DeviceKind
	Ambiguous bool
}

// None сообщает, что устройств нет
func (c CurrentDevice) None() bool {
	return c.Kind == "" && !c.Ambiguous
}

// CurrentDeviceKind определяет общий тип устройств аккаунта.
// Разные типы у одного аккаунта дают отдельное состояние Ambiguous, а не ошибку.
func CurrentDeviceKind(devices []*AuthenticationDevice) CurrentDevice {
	var current CurrentDevice
	for _, device := range devices {
		if current.Kind == "" {
			current.Kind = device.Kind
			continue
		}
		if current.Kind != device.Kind {
			return CurrentDevice{Ambiguous: true}
		}
	}
	return current
}

// LoginSession запись об успешном входе.
// Оба хеша уникальны, что исключает повторную обработку запроса.
type LoginSession struct {
	ID                string    `json:"id"`
	SessionIDHash     string    `json:"session_id_hash"`
	TransactionIDHash string    `json:"transaction_id_hash"`
	AccountID         string    `json:"account_id"`
	CreatedAt         time.Time `json:"created_at"`
}
