package validation

import (
	"fmt"
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "SiteAuthPlatform/pkg/errors"
)

// Validator предоставляет общие функции валидации входных данных.
// Все ошибки имеют код ErrValidation, имя поля передается в Details.
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

// Field проверяемое поле запроса
type Field struct {
	Name  string
	Value string
}

func invalid(message string) *apperrors.Error {
	return apperrors.New(apperrors.ErrValidation, message).WithDetails(message)
}

// ValidateRequiredFields проверяет, что поля заполнены.
// Поля проверяются в порядке перечисления, строка из пробелов считается пустой.
func (v *Validator) ValidateRequiredFields(fields ...Field) error {
	for _, field := range fields {
		if strings.TrimSpace(field.Value) == "" {
			return invalid(fmt.Sprintf("%s is required", field.Name))
		}
	}
	return nil
}

// ValidateStringLength проверяет длину строки в символах
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if length < min {
		return invalid(fmt.Sprintf("%s must be at least %d characters, got: %d", fieldName, min, length))
	}
	if length > max {
		return invalid(fmt.Sprintf("%s must not exceed %d characters, got: %d", fieldName, max, length))
	}
	return nil
}

// ValidateEnum проверяет значение на соответствие enum
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return invalid(fmt.Sprintf("%s is required", fieldName))
	}

	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}

	return invalid(fmt.Sprintf("invalid %s: %s, allowed values: %v", fieldName, value, allowedValues))
}

// ValidateUUID проверяет формат UUID
func (v *Validator) ValidateUUID(value string, fieldName string) error {
	if value == "" {
		return invalid(fmt.Sprintf("%s is required", fieldName))
	}
	if _, err := uuid.Parse(value); err != nil {
		return invalid(fmt.Sprintf("invalid %s format: %s", fieldName, value))
	}
	return nil
}

// ValidateIP проверяет адрес IPv4 или IPv6
func (v *Validator) ValidateIP(value string, fieldName string) error {
	if _, err := netip.ParseAddr(value); err != nil {
		return invalid(fmt.Sprintf("invalid %s: %s", fieldName, value))
	}
	return nil
}
