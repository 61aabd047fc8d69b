package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/anvil/internal/api"
	"github.com/seantiz/anvil/internal/config"
	"github.com/seantiz/anvil/internal/core"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine and its operational HTTP endpoints",
	Long: `Constructs the execution engine from configuration and serves health,
metrics, and stats over HTTP until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := config.NewLogger(os.Stdout, cfg.Level())

		logger.Info("anvil: starting",
			"listen_addr", cfg.ListenAddr,
			"build_root", cfg.BuildRoot,
			"store_dir", cfg.StoreDir,
		)

		c, err := core.New(cfg.CoreOptions(), logger)
		if err != nil {
			return fmt.Errorf("initialize engine: %w", err)
		}
		defer c.Close()

		srv := api.NewServer(cfg.ListenAddr, c, logger)
		return srv.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
