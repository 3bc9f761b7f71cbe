package main

import (
	"fmt"

	"github.com/ehrlich-b/teleterm/internal/config"
	"github.com/spf13/cobra"
)

func initConfigCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default relay.yaml to the config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := configDir
			if dir == "" {
				d, err := config.GetUserConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				dir = d
			}

			cfg := config.DefaultRelayConfig()
			if err := config.SaveRelayConfig(dir, cfg); err != nil {
				return fmt.Errorf("save relay.yaml: %w", err)
			}

			fmt.Println("wrote default config:", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.teleterm)")
	return cmd
}
