package totp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period шаг времени в секундах
const Period = 30

// maxWindow ограничивает допустимый сдвиг часов
const maxWindow = 10

// Validator проверяет одноразовые коды RFC 6238 (HMAC-SHA1, 6 цифр, шаг 30 с)
type Validator struct {
	window uint
}

// NewValidator создает валидатор с симметричным окном в шагах.
// Окно 0 принимает только текущий шаг.
func NewValidator(window int) *Validator {
	if window < 0 {
		window = 0
	}
	if window > maxWindow {
		window = maxWindow
	}
	return &Validator{window: uint(window)}
}

func (v *Validator) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      v.window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// CheckCode проверяет код для base32 секрета в момент now.
// Нечисловые и некорректные коды отклоняются, ошибка наружу не выходит.
// Коды сравниваются как числа: "81804" и "081804" равнозначны.
func (v *Validator) CheckCode(secret, code string, now time.Time) bool {
	normalized, ok := normalizeCode(code)
	if !ok {
		return false
	}

	valid, err := totp.ValidateCustom(normalized, secret, now.UTC(), v.opts())
	if err != nil {
		return false
	}
	return valid
}

// GenerateCode вычисляет код для секрета в момент t
func (v *Validator) GenerateCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t.UTC(), v.opts())
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}

// Enrollment данные для регистрации нового устройства
type Enrollment struct {
	Secret string
	URL    string
}

// GenerateSecret создает новый base32 секрет и otpauth:// URL для приложения-аутентификатора
func GenerateSecret(issuer, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

func normalizeCode(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > 10 {
		return "", false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	value, err := strconv.Atoi(code)
	if err != nil || value >= 1000000 {
		return "", false
	}
	return fmt.Sprintf("%06d", value), true
}
