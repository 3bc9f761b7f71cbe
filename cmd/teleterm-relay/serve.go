package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ehrlich-b/teleterm/internal/config"
	"github.com/ehrlich-b/teleterm/internal/logger"
	"github.com/ehrlich-b/teleterm/internal/oauth"
	"github.com/ehrlich-b/teleterm/internal/privdrop"
	"github.com/ehrlich-b/teleterm/internal/relay"
	"github.com/ehrlich-b/teleterm/internal/relaytls"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start accepting streamer and watcher connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := configDir
			if dir == "" {
				d, err := config.GetUserConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				dir = d
			}
			if err := config.EnsureConfigDir(dir); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}

			cfg, err := config.LoadRelayConfig(dir)
			if err != nil {
				return fmt.Errorf("load relay.yaml: %w", err)
			}

			log, err := logger.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			dataDir := cfg.DataDir
			if dataDir == "" {
				dataDir = dir
			}

			var providers []oauth.ProviderConfig
			for name, p := range cfg.Oauth {
				providers = append(providers, oauth.ProviderConfig{
					Name:         name,
					ClientID:     p.ClientID,
					ClientSecret: p.ClientSecret,
					AuthURL:      p.AuthURL,
					TokenURL:     p.TokenURL,
					RedirectURL:  p.RedirectURL,
					Scopes:       p.Scopes,
				})
			}
			mediator := oauth.New(providers)
			mediator.SetCacheDirResolver(func() (string, bool) { return dataDir, true })

			orchCfg := relay.DefaultConfig()
			orchCfg.IdleTimeout = time.Duration(cfg.ReadTimeoutSecs) * time.Second
			orchCfg.OutboundQueueSize = cfg.OutboundQueueSize
			orchCfg.RateLimitEvents = cfg.RateLimitEvents
			orchCfg.RateLimitWindow = time.Duration(cfg.RateLimitWindowSecs) * time.Second
			orchCfg.FrameLimits = cfg.FrameLimits()
			orchCfg.AllowedLoginMethods = cfg.AllowedLoginMethods

			orch := relay.New(log, mediator, orchCfg)

			ln, err := net.Listen("tcp", cfg.ListenAddress)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
			}

			var tlsStage *relaytls.Stage
			if cfg.TLS.IdentityFile != "" {
				tlsStage, err = relaytls.LoadIdentity(cfg.TLS.IdentityFile, cfg.TLS.Password)
				if err != nil {
					return fmt.Errorf("load tls identity: %w", err)
				}
				log.Info("tls enabled", "identity_file", cfg.TLS.IdentityFile)
			}

			if cfg.UID != nil || cfg.GID != nil {
				if err := privdrop.Drop(cfg.UID, cfg.GID); err != nil {
					return fmt.Errorf("drop privileges: %w", err)
				}
				log.Info("privileges dropped", "uid", cfg.UID, "gid", cfg.GID)
			}

			srv := relay.NewServer(ln, tlsStage, orch, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv.StartBackgroundSweeps(ctx)

			log.Info("relay listening", "addr", srv.Addr().String())
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ctx) }()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.teleterm)")
	return cmd
}
