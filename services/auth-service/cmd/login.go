package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/validation"
	"SiteAuthPlatform/services/auth-service/internal/service"
)

func newLoginCmd(a *app) *cobra.Command {
	var req service.LoginRequest

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Выполнить попытку входа от имени внешнего вызывающего",
		Long: `Проходит весь процесс входа: повтор, блокировка, выбор каталога, пароль,
второй фактор. Попытка записывается так же, как при входе через сайт,
включая счетчик блокировки и аудит. Без --session и --transaction
идентификаторы создаются случайно.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locale := a.v.GetString("locale")
			if err := validation.NewValidator().ValidateEnum(locale, []string{"en", "ru"}, "locale"); err != nil {
				return a.handleError(cmd, err)
			}
			if req.SessionID == "" {
				req.SessionID = uuid.NewString()
			}
			if req.TransactionID == "" {
				req.TransactionID = uuid.NewString()
			}

			rt, err := a.openRuntime(cmd.Context(), nil)
			if err != nil {
				return a.handleError(cmd, err)
			}
			defer rt.Close()

			result := a.coordinator(rt).Login(cmd.Context(), req)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "outcome: %s\n", result.Outcome)
			if result.Reason != "" {
				fmt.Fprintf(out, "reason:  %s\n", result.Reason)
			}
			fmt.Fprintf(out, "backend: %s\n", result.Backend)
			if len(result.Groups) > 0 {
				fmt.Fprintf(out, "groups:  %v\n", result.Groups)
			}
			fmt.Fprintf(out, "message: %s\n", result.UserMessage(locale))

			if result.Outcome != service.OutcomeSuccess {
				status := apperrors.New(result.Reason, "login rejected").HTTPStatus()
				return &commandError{status: status, message: fmt.Sprintf("login %s", result.Outcome)}
			}
			return nil
		},
	}

	flags := loginCmd.Flags()
	flags.StringVar(&req.TenantID, "tenant", "", "tenant id")
	flags.StringVar(&req.Login, "login", "", "account login")
	flags.StringVar(&req.Password, "password", "", "password")
	flags.StringVar(&req.SecondFactorCode, "code", "", "second factor code")
	flags.StringVar(&req.CallerIP, "ip", "127.0.0.1", "caller address")
	flags.StringVar(&req.SessionID, "session", "", "session id")
	flags.StringVar(&req.TransactionID, "transaction", "", "transaction id")
	_ = loginCmd.MarkFlagRequired("tenant")
	_ = loginCmd.MarkFlagRequired("login")

	return loginCmd
}
