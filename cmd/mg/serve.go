package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minigames/internal/db"
	"minigames/internal/migrate"
	"minigames/internal/repo"
	"minigames/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var apiKeys []string
	var devLogin, playerHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Hosts live sessions behind a REST API and a websocket frame stream.
Auth: Bearer JWT signed with MINIGAMES_JWT_SECRET, or X-Api-Key seeded with --api-key player:key.
Example: mg serve --addr :8080 --api-key ana:secret --dev-login`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := slog.Default()
			conn, err := db.Open(db.Config{})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Migrate(cmd.Context(), conn)
			if err != nil {
				return err
			}
			logger.Debug("journal migrated", "applied", applied)
			if err := seedAPIKeys(cmd.Context(), repo.Repo{DB: conn}, apiKeys, logger); err != nil {
				return err
			}

			secret := viper.GetString("jwt-secret")
			if secret == "" && devLogin {
				return errors.New("--dev-login needs MINIGAMES_JWT_SECRET")
			}
			host, err := server.NewHost(server.HostConfig{DB: conn, Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Host:     host,
				BasePath: basePath,
				Logger:   logger,
				Auth: server.AuthConfig{
					JWTSecret:         secret,
					AllowPlayerHeader: playerHeader,
					EnableDevLogin:    devLogin,
					Logger:            logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving on %s%s\n", addr, basePath)
				errCh <- srv.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "err", err)
			}
			return host.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringArrayVar(&apiKeys, "api-key", nil, "seed an API key as player:key (repeatable)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	cmd.Flags().BoolVar(&playerHeader, "allow-player-header", false, "trust X-Player-Id without credentials")
	_ = viper.BindEnv("jwt-secret", "MINIGAMES_JWT_SECRET")
	return cmd
}

// seedAPIKeys registers player:key pairs from flags and MINIGAMES_API_KEYS
// (comma-separated) in the journal.
func seedAPIKeys(ctx context.Context, r repo.Repo, flagKeys []string, logger *slog.Logger) error {
	pairs := append([]string(nil), flagKeys...)
	pairs = append(pairs, splitList(viper.GetString("api-keys"))...)
	for _, pair := range pairs {
		player, key, ok := strings.Cut(pair, ":")
		player, key = strings.TrimSpace(player), strings.TrimSpace(key)
		if !ok || player == "" || key == "" {
			return fmt.Errorf("invalid api key %q (want player:key)", pair)
		}
		if _, err := r.RegisterAPIKey(ctx, player, "seed", key); err != nil {
			return fmt.Errorf("register api key for %s: %w", player, err)
		}
	}
	if len(pairs) > 0 {
		keys, err := r.ListAPIKeys(ctx, "")
		if err != nil {
			return err
		}
		logger.Info("api keys seeded", "count", len(keys))
	}
	return nil
}
