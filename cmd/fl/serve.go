package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowRoleHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the REST API and relays new notifications to the webhooks listed in fieldline.yml. Bearer tokens are signed with FIELDLINE_JWT_SECRET.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("FIELDLINE_JWT_SECRET is required for bearer auth")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.New(os.Stderr, "fieldline: ", log.LstdFlags)
			ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{
				ConfigPath: viper.GetString("config"),
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			defer ws.Close()

			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				Channel:  ws.Channel,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:       secret,
					AllowRoleHeader: allowRoleHeader,
					Logger:          logger,
				},
			})
			if err != nil {
				return err
			}
			server.StartWebhookRelay(ctx, ws.Engine, ws.Channel)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Printf("shutdown: %v", err)
				}
			}()
			logger.Printf("Serving Fieldline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowRoleHeader, "allow-role-header", false, "trust X-Role/X-Actor-Id headers (development only)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens (env FIELDLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
