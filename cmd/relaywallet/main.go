// Command relaywallet runs the relay wallet API and its operator tools.
//
// @title                       Relay Wallet API
// @version                     1.0
// @description                 Wallets with PIN-sealed keys and relayer-sponsored transactions.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"os"

	"github.com/AlexZinkM/relay-wallet/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "relaywallet",
		Short:        "Smart-contract wallets with relayer-sponsored transactions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(); err != nil {
				return err
			}
			return config.Get().SetupLogging()
		},
	}

	cmd.AddCommand(
		serveCmd(),
		rekeyCmd(),
		relayerInitCmd(),
		tokenCmd(),
	)
	return cmd
}
