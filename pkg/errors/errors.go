package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error представляет кастомную ошибку с дополнительной информацией
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details,omitempty"`
	Cause   error           `json:"-"`
	Context context.Context `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Общие коды ошибок платформы
const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrConflict     ErrorCode = "CONFLICT"
)

// Коды ошибок аутентификации.
// Снаружи все они, кроме ErrSecondFactorRequired и ErrInternal,
// превращаются в одно и то же сообщение о неудачном входе.
const (
	ErrInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	ErrAccountLockedOut      ErrorCode = "ACCOUNT_LOCKED_OUT"
	ErrDuplicateLogin        ErrorCode = "DUPLICATE_LOGIN_ATTEMPT"
	ErrDuplicateSession      ErrorCode = "DUPLICATE_SESSION"
	ErrDuplicateTransaction  ErrorCode = "DUPLICATE_TRANSACTION"
	ErrDirectoryUnavailable  ErrorCode = "DIRECTORY_UNAVAILABLE"
	ErrDirectoryUserNotFound ErrorCode = "DIRECTORY_USER_NOT_FOUND"
	ErrNotInRequiredGroup    ErrorCode = "NOT_IN_REQUIRED_GROUP"
	ErrSecondFactorRequired  ErrorCode = "SECOND_FACTOR_REQUIRED"
	ErrSecondFactorInvalid   ErrorCode = "SECOND_FACTOR_INVALID"
	ErrEncryptionKeyMissing  ErrorCode = "ENCRYPTION_KEY_MISSING"
	ErrDecryptionFailed      ErrorCode = "DECRYPTION_FAILED"
	ErrTooManyRequests       ErrorCode = "TOO_MANY_REQUESTS"
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is проверяет, является ли ошибка указанного типа (сравнение по коду)
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую кастомную ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку в кастомную
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithDetails добавляет детали к ошибке
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
		Context: e.Context,
	}
}

// WithContext добавляет контекст к ошибке
func (e *Error) WithContext(ctx context.Context) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   e.Cause,
		Context: ctx,
	}
}

// CodeOf возвращает код ошибки из цепочки или ErrInternal
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// HasCode проверяет, содержит ли цепочка ошибку с указанным кодом
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// publicCode возвращает код, безопасный для внешнего мира:
// все причины отказа во входе сворачиваются в ErrInvalidCredentials
func (e *Error) publicCode() ErrorCode {
	switch e.Code {
	case ErrAccountLockedOut, ErrDirectoryUserNotFound, ErrNotInRequiredGroup,
		ErrSecondFactorInvalid, ErrDirectoryUnavailable:
		return ErrInvalidCredentials
	case ErrDuplicateSession, ErrDuplicateTransaction:
		return ErrDuplicateLogin
	case ErrEncryptionKeyMissing, ErrDecryptionFailed:
		return ErrInternal
	default:
		return e.Code
	}
}

// IsDuplicateLogin проверяет, что ошибка означает повторную отправку входа
func IsDuplicateLogin(err error) bool {
	return HasCode(err, ErrDuplicateLogin) || HasCode(err, ErrDuplicateSession) || HasCode(err, ErrDuplicateTransaction)
}

// HTTPStatus возвращает соответствующий HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.publicCode() {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidCredentials, ErrSecondFactorRequired:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict, ErrDuplicateLogin:
		return http.StatusConflict
	case ErrTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// MessageKey возвращает ключ локализации пользовательского сообщения
func (e *Error) MessageKey() string {
	if e == nil {
		return ""
	}
	switch e.publicCode() {
	case ErrInvalidCredentials, ErrUnauthorized:
		return "message-login-failed"
	case ErrSecondFactorRequired:
		return "message-second-factor-required"
	case ErrTooManyRequests:
		return "message-too-many-login-attempts"
	case ErrDuplicateLogin:
		return "message-login-failed-duplicate"
	case ErrNotFound:
		return "message-not-found"
	case ErrValidation:
		return "message-validation-failed"
	case ErrForbidden:
		return "message-forbidden"
	case ErrConflict:
		return "message-conflict"
	default:
		return "message-login-error"
	}
}

// GetUserMessage возвращает пользовательское сообщение об ошибке.
// Язык берется из контекста (WithLocale), по умолчанию английский.
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}
	locale := defaultLocale
	if e.Context != nil {
		if l, ok := e.Context.Value(localeKey{}).(string); ok {
			locale = l
		}
	}
	return Localize(locale, e.MessageKey())
}
