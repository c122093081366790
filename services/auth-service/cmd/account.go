package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/validation"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

func newAccountCmd(a *app) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Администрирование аккаунтов",
	}

	var tenantID, login string
	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Снять блокировку аккаунта и обнулить счетчик неудачных входов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.NewValidator().ValidateUUID(tenantID, "tenant"); err != nil {
				return a.handleError(cmd, err)
			}

			rt, err := a.openRuntime(cmd.Context(), nil)
			if err != nil {
				return a.handleError(cmd, err)
			}
			defer rt.Close()

			account, err := a.coordinator(rt).ResetLockout(cmd.Context(), tenantID, login)
			if err != nil {
				return a.handleError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s unlocked\n", account.ID)
			return nil
		},
	}
	unlockCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	unlockCmd.Flags().StringVar(&login, "login", "", "account login")
	_ = unlockCmd.MarkFlagRequired("tenant")
	_ = unlockCmd.MarkFlagRequired("login")

	var deviceTenant, deviceLogin, deviceName, plainSecret, encryptedSecret string
	addDeviceCmd := &cobra.Command{
		Use:   "add-device",
		Short: "Сохранить TOTP устройство аккаунта",
		Long: `Сохраняет устройство второго фактора. Секрет передается либо открытым
base32 (--secret), тогда он шифруется системным ключом, либо уже зашифрованным
(--encrypted), как его печатает totp enroll.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := validation.NewValidator()
			if err := v.ValidateUUID(deviceTenant, "tenant"); err != nil {
				return a.handleError(cmd, err)
			}
			if err := v.ValidateStringLength(deviceName, "name", 1, 255); err != nil {
				return a.handleError(cmd, err)
			}

			rt, err := a.openRuntime(cmd.Context(), nil)
			if err != nil {
				return a.handleError(cmd, err)
			}
			defer rt.Close()

			if plainSecret != "" {
				encryptedSecret, err = rt.secrets.EncryptSecret(plainSecret)
				if err != nil {
					return a.handleError(cmd, err)
				}
			}

			device, err := a.coordinator(rt).AddDevice(cmd.Context(), deviceTenant, deviceLogin, deviceName, encryptedSecret)
			if err != nil {
				return a.handleError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "device %s added to account %s\n", device.ID, device.AccountID)
			return nil
		},
	}
	addDeviceCmd.Flags().StringVar(&deviceTenant, "tenant", "", "tenant id")
	addDeviceCmd.Flags().StringVar(&deviceLogin, "login", "", "account login")
	addDeviceCmd.Flags().StringVar(&deviceName, "name", "authenticator", "device name")
	addDeviceCmd.Flags().StringVar(&plainSecret, "secret", "", "base32 secret")
	addDeviceCmd.Flags().StringVar(&encryptedSecret, "encrypted", "", "secret encrypted with the system key")
	_ = addDeviceCmd.MarkFlagRequired("tenant")
	_ = addDeviceCmd.MarkFlagRequired("login")
	addDeviceCmd.MarkFlagsMutuallyExclusive("secret", "encrypted")
	addDeviceCmd.MarkFlagsOneRequired("secret", "encrypted")

	accountCmd.AddCommand(unlockCmd, addDeviceCmd)
	return accountCmd
}

func newDirectoryCmd(a *app) *cobra.Command {
	directoryCmd := &cobra.Command{
		Use:   "directory",
		Short: "LDAP каталоги тенантов",
	}

	var tenantID, callerIP string
	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Показать, какой каталог будет выбран для адреса",
		Long: `Перебирает включенные каталоги тенанта в порядке создания и печатает первый,
список подсетей которого содержит адрес. Если такого нет, вход будет локальным.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := validation.NewValidator()
			if err := v.ValidateUUID(tenantID, "tenant"); err != nil {
				return a.handleError(cmd, err)
			}
			if err := v.ValidateIP(callerIP, "ip"); err != nil {
				return a.handleError(cmd, err)
			}

			rt, err := a.openRuntime(cmd.Context(), nil)
			if err != nil {
				return a.handleError(cmd, err)
			}
			defer rt.Close()

			var backend *domain.DirectoryBackend
			err = rt.store.WithinTx(cmd.Context(), func(ctx context.Context, tx repository.Tx) error {
				var err error
				backend, err = a.selector().Select(ctx, tx.Directories(), tenantID, callerIP)
				return err
			})
			if err != nil {
				return a.handleError(cmd, err)
			}

			out := cmd.OutOrStdout()
			if backend == nil {
				fmt.Fprintln(out, "local")
				return nil
			}
			fmt.Fprintf(out, "directory %s %s:%d\n", backend.ID, backend.Address, backend.Port)
			a.logger.Debug("Directory selected",
				logger.String("tenant_id", tenantID),
				logger.String("directory_id", backend.ID))
			return nil
		},
	}
	selectCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	selectCmd.Flags().StringVar(&callerIP, "ip", "", "caller address")
	_ = selectCmd.MarkFlagRequired("tenant")
	_ = selectCmd.MarkFlagRequired("ip")

	directoryCmd.AddCommand(selectCmd)
	return directoryCmd
}
