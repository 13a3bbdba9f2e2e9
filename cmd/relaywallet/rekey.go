package main

import (
	"fmt"

	"github.com/AlexZinkM/relay-wallet/internal/config"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/funding"
	"github.com/AlexZinkM/relay-wallet/internal/vault"

	"github.com/spf13/cobra"
)

func rekeyCmd() *cobra.Command {
	var walletID string

	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Re-seal a key under a new passphrase or PIN",
		Long: `Decrypt a sealed key and seal it again under a new secret with a fresh salt and IV.

Without --wallet the relayer key file is re-sealed. With --wallet the PIN of that
wallet is changed in the configured vault backend.`,
		Example: `  # Change the relayer key passphrase
  relaywallet rekey

  # Change the PIN of wallet alice
  relaywallet rekey --wallet alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			ctx := cmd.Context()

			var (
				store   vault.DurableStore
				entryID = funding.RelayerKeyID
				name    = "relayer key passphrase"
				closeFn = func() error { return nil }
				err     error
			)
			if walletID != "" {
				entryID, name = walletID, "PIN"
				store, closeFn, err = openVaultStore(ctx, cfg)
			} else {
				store, err = relayerStore(cfg)
			}
			if err != nil {
				return err
			}
			defer closeFn()

			oldSecret, err := config.PromptForPassword(fmt.Sprintf("Enter current %s: ", name))
			if err != nil {
				return err
			}
			defer clear(oldSecret)

			newSecret, err := promptNewSecret(name)
			if err != nil {
				return err
			}
			defer clear(newSecret)

			keys := vault.New(crypto.NewCodec(), store, nil)
			if err := keys.ChangePin(ctx, entryID, oldSecret, newSecret); err != nil {
				return fmt.Errorf("failed to re-seal %s: %w", entryID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Re-sealed %s\n", entryID)
			return nil
		},
	}

	cmd.Flags().StringVar(&walletID, "wallet", "", "wallet id whose PIN to change")
	return cmd
}
