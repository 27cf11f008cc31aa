// Command filegate runs the file-gating bot and its admin API.
package main

import (
	"fmt"
	"os"

	"github.com/filegate/backend/internal/config"
	"github.com/filegate/backend/internal/database"
	"github.com/filegate/backend/pkg/logger"
	"github.com/filegate/backend/pkg/utils"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "filegate",
	Short:         "Telegram file sharing bot with subscription and verification gates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if _, err := database.Connect(cfg.DB); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		logger.Info("migrations_applied", map[string]interface{}{
			"driver": cfg.DB.Driver,
		})
		return nil
	},
}

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

		token, err := utils.GenerateAdminToken(tokenSubject)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "operator name recorded in request logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	logger.Init()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command_failed", err, nil)
		os.Exit(1)
	}
}
