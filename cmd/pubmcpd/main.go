// Command pubmcpd runs the pub.dev MCP server, speaking JSON-RPC 2.0 over
// either newline-delimited stdio or HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mbilalbenli/pub-dev-mcp/internal/cache"
	"github.com/mbilalbenli/pub-dev-mcp/internal/compat"
	"github.com/mbilalbenli/pub-dev-mcp/internal/depgraph"
	"github.com/mbilalbenli/pub-dev-mcp/internal/pubdev"
	"github.com/mbilalbenli/pub-dev-mcp/internal/rpcserver"
	"github.com/mbilalbenli/pub-dev-mcp/internal/telemetry"
	"github.com/mbilalbenli/pub-dev-mcp/internal/tools"
	"github.com/mbilalbenli/pub-dev-mcp/internal/transport/httpapi"
	"github.com/mbilalbenli/pub-dev-mcp/internal/transport/stdio"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("mcp.loglevel", "MCP_LOG_LEVEL")
	_ = v.BindEnv("mcp.telemetryexporter", "MCP_TELEMETRY_EXPORTER")

	v.SetDefault("pubdev.api.baseaddress", pubdev.DefaultBaseURL)
	v.SetDefault("pubdev.api.useragent", pubdev.DefaultUserAgent)
	v.SetDefault("pubdev.api.searchresultlimit", 10)
	v.SetDefault("pubdev.resilience.retrycount", 3)
	v.SetDefault("pubdev.resilience.retrybasedelay", 200*time.Millisecond)
	v.SetDefault("pubdev.resilience.timeout", 3*time.Second)
	v.SetDefault("pubdev.resilience.circuitbreakerfailures", int64(5))
	v.SetDefault("pubdev.resilience.circuitbreakerwindow", 30*time.Second)
	v.SetDefault("pubdev.resilience.circuitbreakerduration", 15*time.Second)
	v.SetDefault("mcp.loglevel", "info")
	v.SetDefault("mcp.telemetryexporter", string(telemetry.ExporterNone))
	v.SetDefault("mcp.corsorigins", []string{"*"})
	v.SetDefault("mcp.httpaddr", ":8080")

	var transportFlag string
	var useStdio, useHTTP bool

	cmd := &cobra.Command{
		Use:     "pubmcpd",
		Short:   "MCP server exposing the pub.dev package registry",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			transport := transportFlag
			switch {
			case useHTTP:
				transport = "http"
			case useStdio:
				transport = "stdio"
			}
			return run(cmd.Context(), v, transport)
		},
	}
	cmd.Flags().BoolVar(&useStdio, "stdio", false, "serve on stdio (the default)")
	cmd.Flags().BoolVar(&useHTTP, "http", false, "serve on http")
	cmd.Flags().StringVar(&transportFlag, "transport", "", "transport to serve on: stdio or http (overrides MCP_TRANSPORT)")
	cmd.Flags().String("http-addr", "", "address to listen on for the http transport (overrides MCP_HTTPADDR)")
	_ = v.BindPFlag("mcp.httpaddr", cmd.Flags().Lookup("http-addr"))

	return cmd
}

func run(ctx context.Context, v *viper.Viper, transportFlag string) error {
	logger, err := newLogger(v.GetString("mcp.loglevel"))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.ExporterKind(strings.ToUpper(v.GetString("mcp.telemetryexporter"))), "pub-dev-mcp")
	if err != nil {
		return fmt.Errorf("build tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}()

	deps, probe := buildDeps(v)
	descriptors := tools.BuildDescriptors()
	recorder := telemetry.NewRecorder(telemetry.Tracer(tp), logger)
	audit := telemetry.NewAuditRecorder(logger)
	server := rpcserver.NewServer(descriptors, deps, recorder, audit)

	transportName := strings.ToLower(transportFlag)
	if transportName == "" {
		transportName = strings.ToLower(v.GetString("mcp.transport"))
	}
	if transportName == "" {
		transportName = "stdio"
	}

	logger.Info("starting pub-dev-mcp",
		zap.String("transport", transportName),
		zap.String("baseAddress", v.GetString("pubdev.api.baseaddress")),
		zap.String("telemetryExporter", v.GetString("mcp.telemetryexporter")),
	)

	switch transportName {
	case "stdio":
		return stdio.Loop(ctx, os.Stdin, os.Stdout, server)
	case "http":
		return serveHTTP(ctx, v, server, probe, logger)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", transportName)
	}
}

func serveHTTP(ctx context.Context, v *viper.Viper, server *rpcserver.Server, probe httpapi.ReadinessProbe, logger *zap.Logger) error {
	router := httpapi.NewRouter(server, probe, v.GetStringSlice("mcp.corsorigins"))
	httpServer := &http.Server{
		Addr:              v.GetString("mcp.httpaddr"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildDeps(v *viper.Viper) (*tools.Deps, httpapi.ReadinessProbe) {
	client := pubdev.NewClient(
		pubdev.WithTimeout(v.GetDuration("pubdev.resilience.timeout")),
		pubdev.WithMaxRetries(v.GetInt("pubdev.resilience.retrycount")),
		pubdev.WithRetryBaseDelay(v.GetDuration("pubdev.resilience.retrybasedelay")),
		pubdev.WithUserAgent(v.GetString("pubdev.api.useragent")),
		pubdev.WithCircuitBreaker(
			v.GetDuration("pubdev.resilience.circuitbreakerwindow"),
			v.GetInt64("pubdev.resilience.circuitbreakerfailures"),
			v.GetDuration("pubdev.resilience.circuitbreakerduration"),
		),
	)
	registry := pubdev.New(v.GetString("pubdev.api.baseaddress"), client)

	deps := &tools.Deps{
		Registry: registry,
		Cache:    cache.New(cache.DefaultTTL),
		Solver:   compat.NewSolver(),
		Builder:  depgraph.NewBuilder(registry),
	}
	return deps, registry
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
