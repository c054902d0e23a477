package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/storage"
	"github.com/nexconsult/quote-harvester/internal/vault"
)

func newEncryptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Read a secret from stdin and print its vault token.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := vault.New(a.cfg.Crypto.Key)
			if err != nil {
				return err
			}
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			token, err := cipher.Encrypt(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh vault key for CRYPTO_KEY.",
		Args:  cobra.NoArgs,
		// no configuration needed, there is no key yet
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newCredentialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage tenant portal credentials.",
	}

	var (
		tenant   int64
		login    string
		inactive bool
	)
	add := &cobra.Command{
		Use:   "add --tenant N --login L < password",
		Short: "Encrypt the password read from stdin and store the tenant credential.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return addCredential(cmd.Context(), a, models.Credential{
				TenantID: tenant,
				PortalID: a.cfg.Portal.ID,
				Login:    login,
				Active:   !inactive,
			}, password)
		},
	}
	add.Flags().Int64Var(&tenant, "tenant", 0, "tenant id")
	add.Flags().StringVar(&login, "login", "", "portal login")
	add.Flags().BoolVar(&inactive, "inactive", false, "store the credential disabled")
	_ = add.MarkFlagRequired("tenant")
	_ = add.MarkFlagRequired("login")

	cmd.AddCommand(add)
	return cmd
}

func addCredential(ctx context.Context, a *app, cred models.Credential, password string) error {
	cipher, err := vault.New(a.cfg.Crypto.Key)
	if err != nil {
		return err
	}
	if cred.EncryptedSecret, err = cipher.Encrypt(password); err != nil {
		return err
	}

	db, err := storage.Open(a.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		return err
	}
	if err := storage.NewCredentialRepository(db).Upsert(ctx, cred); err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"tenant_id": cred.TenantID,
		"portal_id": cred.PortalID,
		"login":     logger.MaskLogin(cred.Login),
		"active":    cred.Active,
	}).Info("Credential stored")
	return nil
}
