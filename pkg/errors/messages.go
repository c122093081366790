package errors

import (
	"context"
	"fmt"
	"strings"
)

const defaultLocale = "en"

type localeKey struct{}

// WithLocale задает язык пользовательских сообщений
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, strings.ToLower(locale))
}

// catalog пользовательских сообщений по ключам локализации.
// Сообщение о неудачном входе одно на все причины отказа.
var catalog = map[string]map[string]string{
	"en": {
		"message-login-failed":             "Login failed. Check your username and password.",
		"message-login-error":              "Login failed because of an internal error.",
		"message-login-success":            "Login successful.",
		"message-login-failed-duplicate":   "This login request has already been processed.",
		"message-password-expires-in-days": "Your password expires in %d days.",
		"message-second-factor-required":   "Enter the code from your authenticator.",
		"message-too-many-login-attempts":  "Too many login attempts. Try again later.",
		"message-not-found":                "Resource not found.",
		"message-validation-failed":        "Invalid request.",
		"message-forbidden":                "Access denied.",
		"message-conflict":                 "Resource already exists.",
	},
	"ru": {
		"message-login-failed":             "Не удалось войти. Проверьте логин и пароль.",
		"message-login-error":              "Не удалось войти из-за внутренней ошибки.",
		"message-login-success":            "Вход выполнен.",
		"message-login-failed-duplicate":   "Этот запрос на вход уже обработан.",
		"message-password-expires-in-days": "Срок действия пароля истекает через %d дн.",
		"message-second-factor-required":   "Введите код из приложения-аутентификатора.",
		"message-too-many-login-attempts":  "Слишком много попыток входа. Попробуйте позже.",
		"message-not-found":                "Ресурс не найден.",
		"message-validation-failed":        "Неверный запрос.",
		"message-forbidden":                "Доступ запрещен.",
		"message-conflict":                 "Ресурс уже существует.",
	},
}

// Localize возвращает текст сообщения для языка.
// Неизвестный язык заменяется английским, неизвестный ключ возвращается как есть.
func Localize(locale, key string, args ...interface{}) string {
	messages, ok := catalog[strings.ToLower(locale)]
	if !ok {
		messages = catalog[defaultLocale]
	}
	text, ok := messages[key]
	if !ok {
		text, ok = catalog[defaultLocale][key]
		if !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}
