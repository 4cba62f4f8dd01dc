package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Lobby/internal/adapters/http"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "lobby",
	Short: "Lobby coordination server: presence, chat, shared playback and voice signaling",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
	SilenceUsage: true,
}

func init() {
	fs := rootCmd.Flags()
	fs.String("config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	fs.Int("port", 8080, "listen port")
	fs.String("mode", "release", "gin mode: debug or release")
	fs.String("static-path", "./web", "directory with the web client")
	fs.String("log-level", "info", "minimum log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = log.Output(console)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	fanout, err := zerolog.ParseLevel(cfg.LogFanoutLevel)
	if err != nil {
		return fmt.Errorf("log_fanout_level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	opts := app.DefaultOptions()
	opts.MaxSessions = cfg.MaxSessions
	opts.MaxNameLength = cfg.MaxNameLength
	opts.ChatHistory = cfg.ChatHistory
	opts.LogBuffer = cfg.LogBuffer
	opts.AdminSecret = cfg.AdminSecret
	opts.AdminLoginAttempts = cfg.AdminLoginAttempts
	opts.AdminLoginWindow = cfg.AdminLoginWindow
	opts.JoinTimeout = cfg.JoinTimeout
	opts.ICEServers = nil
	if len(cfg.ICEServers) > 0 {
		opts.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	lobby := app.NewLobby(opts)

	// Tee every record into the admin log stream.
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, app.NewLogSink(lobby, fanout)))

	lobbyCtx, stopLobby := context.WithCancel(context.Background())
	defer stopLobby()
	go lobby.Run(lobbyCtx)

	r := router.SetupRouter(ctx, cfg, lobby)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Lobby server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return err
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stopLobby()
	<-lobby.Done()
	log.Info().Msg("Server exited gracefully")
	return nil
}
