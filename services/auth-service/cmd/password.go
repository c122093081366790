package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/pkg/password"
)

func newPasswordCmd(a *app) *cobra.Command {
	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Хеши паролей аккаунтов",
	}

	var accountID, login, plain string
	var minLength int
	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Вычислить хеш пароля для аккаунта",
		Long: `Печатает hex SHA-256 от "соль:пароль". Солью служит ID аккаунта,
для старых аккаунтов без ID используется логин.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if accountID == "" && login == "" {
				return a.handleError(cmd, apperrors.New(apperrors.ErrValidation, "account id or login is required"))
			}

			hasher := password.NewDigestHasher(minLength)
			if !hasher.Validate(plain) {
				a.logger.Warn("Password does not meet complexity requirements")
			}

			digest := hasher.HashForAccount(&domain.Account{ID: accountID}, plain)
			if accountID == "" {
				digest = password.Digest(domain.NormalizeLogin(login), plain)
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
	digestCmd.Flags().StringVar(&accountID, "account-id", "", "account id used as salt")
	digestCmd.Flags().StringVar(&login, "login", "", "login used as salt when account id is empty")
	digestCmd.Flags().StringVar(&plain, "password", "", "plain password")
	digestCmd.Flags().IntVar(&minLength, "min-length", 8, "minimum length for the complexity warning")
	_ = digestCmd.MarkFlagRequired("password")

	passwordCmd.AddCommand(digestCmd)
	return passwordCmd
}
