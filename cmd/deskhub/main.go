package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"deskchat/internal/hub"
	"deskchat/pkg/banner"
	"deskchat/pkg/config"
	"deskchat/pkg/logger"
	"deskchat/pkg/state"
)

func main() {
	var version = "dev"

	_ = godotenv.Load(".env")
	_, stateVal, cfgVal, _, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if setFlags["state"] || cfg.Daemon.StateDir == "" {
		cfg.Daemon.StateDir = stateVal
	}
	if cfg.Hub.AppKey == "" || cfg.Hub.AppSecret == "" {
		log.Fatalf("hub.app_key and hub.app_secret are required")
	}
	if len(cfg.Hub.Tokens) == 0 {
		log.Fatalf("hub.tokens must list at least one bearer token")
	}

	logger.InitWithLevel(cfg.Logging.Level)

	if err := state.EnsureStateDirs(cfg.Daemon.StateDir); err != nil {
		log.Fatalf("state dirs: %v", err)
	}
	dbPath := cfg.Hub.DBPath
	if dbPath == "" {
		dbPath = state.HubDBPath(cfg.Daemon.StateDir)
		cfg.Hub.DBPath = dbPath
	}
	if err := hub.OpenStore(dbPath); err != nil {
		log.Fatalf("failed to open pebble at %s: %v", dbPath, err)
	}

	srcs := []string{}
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := config.Load(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}
	banner.PrintHub(cfg, strings.Join(srcs, ", "), version)

	srv := hub.NewServer(cfg, state.UploadsPath(cfg.Daemon.StateDir))
	errCh := srv.Start()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigc:
		logger.Info("signal_received", "signal", s.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	case err := <-errCh:
		logger.Error("hub_server_exit", "error", err)
	}
	if err := hub.CloseStore(); err != nil {
		logger.Warn("hub_store_close_failed", "error", err)
	}
}
