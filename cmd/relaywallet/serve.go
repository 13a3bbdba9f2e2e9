package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/AlexZinkM/relay-wallet/docs"
	"github.com/AlexZinkM/relay-wallet/internal/api"
	"github.com/AlexZinkM/relay-wallet/internal/auth"
	"github.com/AlexZinkM/relay-wallet/internal/config"
	"github.com/AlexZinkM/relay-wallet/internal/handler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the wallet API",
		Long: `Run the wallet API.

The relayer key passphrase is prompted on the terminal before the server starts.
Set JWT_SECRET to require bearer tokens scoped to a wallet id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			passphrase, err := config.PromptForPassword("Enter relayer key passphrase: ")
			if err != nil {
				return err
			}
			svc, err := buildServices(ctx, cfg, passphrase)
			clear(passphrase) // Always clear passphrase from memory
			if err != nil {
				return err
			}
			defer svc.Close()

			var jwtManager *auth.JWTManager
			if cfg.JWTSecret != "" {
				jwtManager = auth.NewJWTManager(cfg.JWTSecret)
			} else {
				log.Warn().Msg("JWT_SECRET not set: wallet routes are unauthenticated")
			}

			server := &http.Server{
				Addr:              net.JoinHostPort("", cfg.Port),
				Handler:           api.SetupRouter(handler.NewWalletHandler(svc.wallet), jwtManager),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", server.Addr).Msg("server listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
