package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"SiteAuthPlatform/pkg/config"
	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
)

// app общее состояние команд: конфигурация и логгер создаются один раз
// в PersistentPreRunE и передаются командам явно
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "authd",
		Short: "authd - ядро аутентификации сайта",
		Long: `authd проверяет учетные данные пользователей тенантов: локальный пароль
или LDAP каталог по подсети, второй фактор TOTP, блокировка аккаунтов.

Команды администрирования работают с той же конфигурацией, что и сервер.`,
		Version:      serviceVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (yaml or json)")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	flags.String("locale", "en", "user message locale (en, ru)")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("locale", flags.Lookup("locale"))
	a.v.SetEnvPrefix("AUTHD")
	a.v.AutomaticEnv()

	rootCmd.AddCommand(
		newServeCmd(a),
		newKeyCmd(a),
		newSecretCmd(a),
		newTOTPCmd(a),
		newAccountCmd(a),
		newDirectoryCmd(a),
		newPasswordCmd(a),
		newLoginCmd(a),
	)

	return rootCmd
}

// init загружает конфигурацию и создает логгер, пишущий в stderr
func (a *app) init() error {
	cfg, err := config.LoadConfig(a.v.GetString("config"))
	if err != nil {
		return err
	}
	if level := a.v.GetString("log-level"); level != "" {
		cfg.Logger.Level = level
	}

	log, err := logger.NewLoggerWithWriter(cfg.Environment, cfg.Logger.Level, serviceName, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.cfg = cfg
	a.logger = log
	return nil
}

// commandError ошибка команды с HTTP статусом исходной ошибки
type commandError struct {
	status  int
	message string
}

func (e *commandError) Error() string { return e.message }

// exitCode переводит ошибку команды в код завершения процесса:
// 2 неверный ввод, 3 отказ во входе или доступе, 1 все остальное
func exitCode(err error) int {
	var cmdErr *commandError
	if !errors.As(err, &cmdErr) {
		return 1
	}
	switch {
	case cmdErr.status == http.StatusBadRequest:
		return 2
	case cmdErr.status >= 400 && cmdErr.status < 500:
		return 3
	default:
		return 1
	}
}

// handleError пишет ошибку в лог и возвращает сообщение для пользователя
// на языке из --locale
func (a *app) handleError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrInternal, "command failed")
	}
	appErr = appErr.WithContext(apperrors.WithLocale(cmd.Context(), a.v.GetString("locale")))

	if a.logger != nil {
		a.logger.Error("Command failed",
			logger.String("command", cmd.CommandPath()),
			logger.Int("status", appErr.HTTPStatus()),
			logger.Error(err))
	}

	message := fmt.Sprintf("%s: %s", cmd.Name(), appErr.GetUserMessage())
	if appErr.Code == apperrors.ErrValidation && appErr.Details != "" {
		message += ": " + appErr.Details
	}
	return &commandError{status: appErr.HTTPStatus(), message: message}
}
