package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/AlexZinkM/relay-wallet/internal/config"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/funding"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

func relayerInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relayer-init",
		Short: "Create the relayer key file",
		Long: `Generate the relayer account that pays gas and sponsors wallets, and seal it
into RELAYER_KEY_FILE under a passphrase. An existing key is never overwritten.

Fund the printed address before starting the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			passphrase, err := promptNewSecret("relayer key passphrase")
			if err != nil {
				return err
			}
			defer clear(passphrase)

			store, err := relayerStore(cfg)
			if err != nil {
				return err
			}
			address, err := funding.CreateRelayerKey(cmd.Context(), crypto.NewCodec(), store, passphrase)
			if err != nil {
				if errors.Is(err, funding.ErrRelayerKeyExists) {
					return fmt.Errorf("%s already holds a relayer key: use rekey to change its passphrase", cfg.RelayerKeyFile)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Relayer address: %s\n", address.Hex())
			if qr, err := qrcode.New(address.Hex(), qrcode.Medium); err == nil {
				fmt.Fprint(out, qr.ToSmallString(false))
			}
			return nil
		},
	}
}

// promptNewSecret prompts twice and requires both entries to match
func promptNewSecret(name string) ([]byte, error) {
	first, err := config.PromptForPassword(fmt.Sprintf("Enter new %s: ", name))
	if err != nil {
		return nil, err
	}
	second, err := config.PromptForPassword(fmt.Sprintf("Repeat new %s: ", name))
	if err != nil {
		clear(first)
		return nil, err
	}
	defer clear(second)

	if !bytes.Equal(first, second) {
		clear(first)
		return nil, errors.New("entries do not match")
	}
	return first, nil
}
