// Package main сервис премиум-подписок бота.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/premium-entitlements/internal/app/entitlements"
	"github.com/magabrotheeeer/premium-entitlements/internal/config"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
)

var rootCmd = &cobra.Command{
	Use:   "entitlements",
	Short: "Premium entitlements service",
	Long:  `Tracks paid premium access of bot users and reconciles payment confirmations`,
	Run: func(cmd *cobra.Command, args []string) {
		runService()
	},
}

var adminUserID int64

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Issue a bearer token for the admin endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustLoad()
		if !cfg.IsAdmin(adminUserID) {
			return fmt.Errorf("user %d is not listed in admin.ids", adminUserID)
		}
		token, err := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL).GenerateToken(adminUserID, jwt.RoleAdmin)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	adminTokenCmd.Flags().Int64Var(&adminUserID, "user-id", 0, "telegram id of the administrator")
	_ = adminTokenCmd.MarkFlagRequired("user-id")
	rootCmd.AddCommand(adminTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runService() {
	cfg := config.MustLoad()
	logger := sl.New(cfg.Env, os.Stdout)

	logger.Info("starting premium-entitlements", slog.String("env", cfg.Env))
	logger.Debug("debug messages are enabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := entitlements.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("premium-entitlements stopped gracefully")
}
