package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/services/auth-service/internal/pkg/cipher"
)

func newKeyCmd(a *app) *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Системный ключ шифрования секретов (key-encryption-secret-key)",
	}

	var write bool
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Создать новый системный ключ",
		Long: `Печатает новый системный ключ, уже зашифрованный конфигурационным слоем.
Значение можно записать в security.key_encryption_secret_key или KEY_ENCRYPTION_SECRET_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			candidate, err := cipher.GenerateCandidateKey()
			if err != nil {
				return a.handleError(cmd, err)
			}
			if write {
				if err := cipher.WriteCandidateFile(a.cfg.Security.CandidateKeyFile, candidate); err != nil {
					return a.handleError(cmd, err)
				}
				a.logger.Info("Key candidate written", logger.String("file", a.cfg.Security.CandidateKeyFile))
			}
			fmt.Fprintln(cmd.OutOrStdout(), candidate)
			return nil
		},
	}
	generateCmd.Flags().BoolVar(&write, "write", false, "also write the key to security.candidate_key_file")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Проверить, что системный ключ задан и корректен",
		Long:  `При отсутствии ключа записывает кандидата в security.candidate_key_file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cipher.NewSecretCipher(a.cfg.Security, a.logger).Check(); err != nil {
				return a.handleError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	keyCmd.AddCommand(generateCmd, checkCmd)
	return keyCmd
}
