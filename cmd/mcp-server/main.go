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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sap-mcp-sse/internal/config"
	"sap-mcp-sse/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	d := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "MCP server exposing SAP due notifications over SSE",
		Long: `MCP server exposing SAP due notifications over HTTP+SSE.

Clients connect to /sse and call the fetch_due_notifications and
get_notification_details tools. Credentials come from SAP_USERNAME and
SAP_PASSWORD (environment or .env) or the matching flags.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.String("user", "", "SAP username (SAP_USERNAME)")
	f.String("password", "", "SAP password (SAP_PASSWORD)")
	f.String("service-url", d.ServiceURL, "SAP OData service root (SAP_SERVICE_URL)")
	f.String("sap-client", d.SAPClient, "SAP client number, empty to omit (SAP_SAP_CLIENT)")
	f.Bool("verify-tls", d.VerifyTLS, "verify the SAP gateway TLS certificate (SAP_VERIFY_TLS)")
	f.Duration("timeout", d.Timeout, "deadline for each SAP request (SAP_TIMEOUT)")
	f.String("default-expand", d.DefaultExpand, "navigation properties expanded by default (SAP_DEFAULT_EXPAND)")
	f.StringToString("header", nil, "extra header sent to SAP, repeatable: --header IvUser=ENST1 (SAP_HEADERS as JSON)")
	f.String("addr", d.Addr, "HTTP listen address (SAP_ADDR)")
	f.String("log-level", d.LogLevel, "log level: debug, info, warn, error (SAP_LOG_LEVEL)")
	f.Duration("keepalive", d.KeepAlive, "SSE keep-alive interval (SAP_KEEPALIVE)")
	f.Duration("session-timeout", d.SessionTimeout, "idle time before a session expires (SAP_SESSION_TIMEOUT)")
	f.Duration("cleanup-interval", d.CleanupInterval, "expired session sweep interval (SAP_CLEANUP_INTERVAL)")

	bind := map[string]string{
		"username":         "user",
		"password":         "password",
		"service_url":      "service-url",
		"sap_client":       "sap-client",
		"verify_tls":       "verify-tls",
		"timeout":          "timeout",
		"default_expand":   "default-expand",
		"addr":             "addr",
		"log_level":        "log-level",
		"keepalive":        "keepalive",
		"session_timeout":  "session-timeout",
		"cleanup_interval": "cleanup-interval",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}

	// headers only override when given on the command line
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if f.Changed("header") {
			headers, _ := f.GetStringToString("header")
			v.Set("headers", headers)
		}
	}

	return cmd
}

func newLogger(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		// cobra prints the error; MissingCredentials is fatal like any other
		return err
	}

	logger := newLogger(cfg.Level())
	logger.Info().
		Str("version", version).
		Str("addr", cfg.Addr).
		Str("log_level", cfg.Level().String()).
		Msg("Starting SAP notifications MCP server")
	logger.Debug().Str("username", cfg.Username).Msg("Using SAP credentials")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, logger, version)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start background services: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("Listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// streams first, so the listener is not held open by them
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("In-flight requests did not finish")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}
