// Package main is the entry point for the Android TV hub bridge.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/hubgrid/androidtv-bridge/internal/domain/bridge"
	"github.com/hubgrid/androidtv-bridge/internal/domain/profiles"
	"github.com/hubgrid/androidtv-bridge/internal/infra/discovery"
	"github.com/hubgrid/androidtv-bridge/internal/infra/metadata"
	"github.com/hubgrid/androidtv-bridge/internal/transport/hubapi"
	"github.com/hubgrid/androidtv-bridge/internal/version"
)

func main() {
	configFile := flag.String("config", "", "Config file path (optional)")
	port := flag.String("port", "", "HTTP server port (overrides config)")
	dataDir := flag.String("data", "", "Data directory (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := loadConfig(*configFile, *port, *dataDir, *debug)

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Android TV Hub Bridge")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Port).
		Str("data_dir", cfg.DataDir).
		Str("profile_dir", cfg.ProfileDir).
		Bool("debug", cfg.Debug).
		Msg("Configuration")

	// Command profiles
	registry := profiles.NewRegistry()
	if cfg.ProfileDir != "" {
		if err := registry.Load(cfg.ProfileDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.ProfileDir).Msg("Command profile loading failed, using defaults")
		}
	}

	// Infrastructure
	scanner := discovery.NewMDNSScanner()
	meta := metadata.NewService(filepath.Join(cfg.DataDir, "external_cache"))

	// Bridge
	b, err := bridge.New(cfg.DataDir, scanner, registry, meta)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize device bridge")
	}

	hubServer := hubapi.NewServer(b)
	b.Start()
	defer b.Stop()

	// HTTP server
	mux := http.NewServeMux()
	mux.Handle("/ws", hubServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	mux.HandleFunc("/api/v1/devices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.Store().All())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		b.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+cfg.Port).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}

// runtimeConfig is the resolved process configuration: defaults, then config
// file, then ATVBRIDGE_* environment, then command line flags.
type runtimeConfig struct {
	Port       string
	DataDir    string
	ProfileDir string
	Debug      bool
}

func loadConfig(configFile, portFlag, dataFlag string, debugFlag bool) runtimeConfig {
	v := viper.New()
	v.SetDefault("port", "8091")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("profile_dir", "./profiles")
	v.SetDefault("debug", false)

	v.SetEnvPrefix("ATVBRIDGE")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("file", configFile).Msg("Config file not loaded")
		}
	}

	cfg := runtimeConfig{
		Port:       v.GetString("port"),
		DataDir:    v.GetString("data_dir"),
		ProfileDir: v.GetString("profile_dir"),
		Debug:      v.GetBool("debug"),
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}
	if dataFlag != "" {
		cfg.DataDir = dataFlag
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg
}
