package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SiteAuthPlatform/services/auth-service/internal/pkg/cipher"
)

func newSecretCmd(a *app) *cobra.Command {
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Шифрование значений системным ключом",
	}

	encryptCmd := &cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Зашифровать значение (пароль каталога, секрет устройства)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encrypted, err := cipher.NewSecretCipher(a.cfg.Security, a.logger).EncryptSecret(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), encrypted)
			return nil
		},
	}

	decryptCmd := &cobra.Command{
		Use:   "decrypt VALUE",
		Short: "Расшифровать значение в новом или устаревшем формате",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := cipher.NewSecretCipher(a.cfg.Security, a.logger).DecryptSecret(args[0])
			if err != nil {
				return a.handleError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain)
			return nil
		},
	}

	secretCmd.AddCommand(encryptCmd, decryptCmd)
	return secretCmd
}
