package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"salonbot/internal/channel"
	"salonbot/internal/config"
	"salonbot/internal/contact"
	"salonbot/internal/forward"
	"salonbot/internal/metrics"
	"salonbot/internal/router"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "salonbot",
		Short:   "salonbot: WhatsApp to backend message bridge",
		Long:    "salonbot links a WhatsApp account to an HTTP backend: inbound text and voice messages are forwarded, backend replies are relayed to the sender.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.salonbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "stateDir", cfgDir)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadOrDefault loads the config file, falling back to defaults plus
// environment overrides so the bridge can run without a config file.
func loadOrDefault() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		logger.Warn("config not loadable, using defaults", "path", cfgPath, "err", err)
	}
	cfg = config.Defaults()
	config.ApplyEnvOverrides(cfg)
	cfg.General.StateDir = config.ExpandPath(cfg.General.StateDir)
	cfg.WhatsApp.SessionDB = config.ExpandPath(cfg.WhatsApp.SessionDB)
	cfg.WhatsApp.QRImagePath = config.ExpandPath(cfg.WhatsApp.QRImagePath)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to WhatsApp and bridge messages to the backend",
		Long:  "Connects (pairing via QR code on first run) and bridges messages until interrupted. Press Ctrl+C to stop.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault()
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.General.LogLevel)}))

	if err := os.MkdirAll(cfg.General.StateDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.WhatsApp.SessionDB), 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := contact.NewPolicy(cfg.Contacts.AllowedOnly, cfg.Contacts.Excluded)
	logContactPolicy(policy)
	filter := contact.NewFilter(policy, logger)

	forwarder := forward.New(forward.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	logger.Info("backend configured", "baseUrl", cfg.Backend.BaseURL)

	wa, err := channel.NewWhatsApp(ctx, channel.WhatsAppConfig{
		SessionDB: cfg.WhatsApp.SessionDB,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("whatsapp channel: %w", err)
	}

	rt := router.New(router.Config{
		Filter:       filter,
		Forwarder:    forwarder,
		Session:      wa,
		Fetch:        wa.DownloadAudio,
		Logger:       logger,
		MediaTimeout: time.Duration(cfg.Backend.MediaTimeoutSeconds) * time.Second,
	})

	sup := router.NewSupervisor(router.SupervisorConfig{
		Restart: func() {
			if err := wa.Connect(ctx); err != nil {
				logger.Error("reconnect failed", "err", err)
			}
		},
		Display: &channel.QRDisplay{
			ImagePath: cfg.WhatsApp.QRImagePath,
			Out:       os.Stdout,
			Logger:    logger,
		},
		Logger:         logger,
		ReconnectDelay: time.Duration(cfg.WhatsApp.ReconnectDelaySeconds) * time.Second,
	})

	wa.Bind(rt, sup)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Listen)
	}

	if err := wa.Connect(ctx); err != nil {
		return err
	}
	logger.Info("bridge started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("shutting down")
	wa.Disconnect()
	return nil
}

// logContactPolicy mirrors the policy back to the operator at startup so a
// misconfigured list is visible before the first message arrives.
func logContactPolicy(policy contact.Policy) {
	switch {
	case len(policy.Allow) > 0:
		logger.Info("contact filter: allow list active", "allowed", policy.Allow, "excluded", policy.Deny)
	case len(policy.Deny) > 0:
		logger.Info("contact filter: exclusions active", "excluded", policy.Deny)
	default:
		logger.Info("contact filter: open, all contacts accepted")
	}
}

func serveMetrics(ctx context.Context, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. backend.baseUrl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. backend.timeoutSeconds 45)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
