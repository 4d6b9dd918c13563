// Command crosspostd runs the media publish orchestrator as a standalone
// HTTP service: it accepts product-publication webhooks and republishes
// them to the configured Facebook Pages and Instagram Business accounts.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/storeberg/crosspost/internal/bootstrap"
	"github.com/storeberg/crosspost/internal/config"
	"github.com/storeberg/crosspost/internal/logging"
	"github.com/storeberg/crosspost/internal/server"
)

var (
	portFlag    int
	envFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "crosspostd",
	Short: "Webhook-driven cross-posting service for product media",
	Long: `crosspostd listens for product-publication webhooks and republishes
each product's media to the Facebook Pages and Instagram Business accounts
configured for the originating store.

Examples:
  crosspostd
  crosspostd --port 9090
  crosspostd --env-file ./prod.env`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides CROSSPOST_PORT)")
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", "", "Load environment from this file before reading config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	if envFileFlag != "" {
		if err := godotenv.Load(envFileFlag); err != nil {
			fmt.Fprintf(os.Stderr, "load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		// Best-effort: a .env next to the binary is a dev convenience.
		_ = godotenv.Load()
	}

	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	ctx := context.Background()
	clients, err := bootstrap.InitAWS(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("AWS initialization failed")
	}

	orch, err := bootstrap.Build(ctx, cfg, clients)
	if err != nil {
		log.Fatal().Err(err).Msg("Service assembly failed")
	}
	bootstrap.CheckMediaTooling()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.New(orch, cfg).Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Port).Msg("Starting webhook server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
