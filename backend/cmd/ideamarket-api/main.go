package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFolder string

	cmd := &cobra.Command{
		Use:           "ideamarket-api",
		Short:         "Ideamarket API server and maintenance tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configFolder, "config-folder", "backend/config", "path to folder with configs")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFolder)
		if err != nil {
			return nil, err
		}
		logger.Initialize(cfg.Public.LogLevel, cfg.Public.LogJSON)
		utils.VerboseErrors = !cfg.IsProduction()
		return cfg, nil
	}

	cmd.AddCommand(
		serveCmd(load),
		migrateCmd(load),
		sweepCmd(load),
		revokeUserCmd(load),
		createAdminCmd(load),
		resetPasswordCmd(load),
		auditPasswordsCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("ideamarket-api %s (build: %s)\n", Version, BuildTime)
			},
		},
	)
	return cmd
}
