package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/monitoring"
	"github.com/NERVsystems/vtdecode/pkg/registration"
	"github.com/NERVsystems/vtdecode/pkg/server"
	"github.com/NERVsystems/vtdecode/pkg/source"
	"github.com/NERVsystems/vtdecode/pkg/tools"
	"github.com/NERVsystems/vtdecode/pkg/tracing"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
	ver "github.com/NERVsystems/vtdecode/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool

	// Tile source flags
	tileURL         string
	tileRPS         float64
	tileBurst       int
	cacheSize       int
	canonicalExtent uint
	decodeFile      string
	countTypes      bool

	// HTTP transport flags
	enableHTTP    bool
	httpOnly      bool
	httpAddr      string
	httpBaseURL   string
	httpAuthToken string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Registration flags
	enableRegistration bool
	registryURL        string
	serviceURL         string
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")

	flag.StringVar(&tileURL, "tile-url", core.DefaultTileURL, "Tile URL template with {z}, {x} and {y} or {-y}")
	flag.Float64Var(&tileRPS, "rps", 10, "Tile server rate limit in requests per second (0 disables)")
	flag.IntVar(&tileBurst, "burst", 20, "Tile server rate limit burst size")
	flag.IntVar(&cacheSize, "cache-size", 128, "Number of decoded tiles kept in memory")
	flag.UintVar(&canonicalExtent, "canonical-extent", 8192, "Extent decoded geometry is scaled into")
	flag.StringVar(&decodeFile, "decode", "", "Decode a local tile file, print a JSON summary and exit")
	flag.BoolVar(&countTypes, "count-types", false, "With -decode, also count features by geometry type")

	flag.BoolVar(&enableHTTP, "enable-http", false, "Enable HTTP+SSE transport (in addition to stdio)")
	flag.BoolVar(&httpOnly, "http-only", false, "Run HTTP transport only, skip stdio (requires --enable-http)")
	flag.StringVar(&httpAddr, "http-addr", ":7082", "HTTP server address")
	flag.StringVar(&httpBaseURL, "http-base-url", "", "Base URL for HTTP transport (auto-detected if empty)")
	flag.StringVar(&httpAuthToken, "http-auth-token", os.Getenv("VTDECODE_AUTH_TOKEN"), "Bearer token for the HTTP transport (empty disables auth)")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health endpoints")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	flag.BoolVar(&enableRegistration, "enable-registration", false, "Register with a service registry")
	flag.StringVar(&registryURL, "registry-url", "", "Service registry URL (e.g., http://registry:7083)")
	flag.StringVar(&serviceURL, "service-url", "", "External URL where this service is accessible")
}

func main() {
	flag.Parse()

	var logLevel slog.Level
	if debug {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	if canonicalExtent == 0 || canonicalExtent > 1<<15 {
		logger.Error("invalid canonical extent", "extent", canonicalExtent)
		os.Exit(2)
	}
	if httpOnly && !enableHTTP {
		logger.Error("-http-only requires -enable-http")
		os.Exit(2)
	}

	// Initialize OpenTelemetry tracing
	tracingCtx := context.Background()
	shutdownTracing, err := tracing.InitTracing(tracingCtx, ver.BuildVersion)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(tracingCtx); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()

		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	var healthChecker *monitoring.HealthChecker
	if enableMonitoring && decodeFile == "" {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()
	}

	opts := source.DefaultOptions()
	opts.URLTemplate = tileURL
	opts.RequestsPerSecond = tileRPS
	opts.Burst = tileBurst
	opts.DecodedCacheSize = cacheSize
	opts.DecodeOptions = []vectortile.Option{vectortile.WithCanonicalExtent(uint32(canonicalExtent))}
	opts.Health = healthChecker

	src, err := source.New(opts, logger)
	if err != nil {
		logger.Error("failed to create tile source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	if decodeFile != "" {
		if err := decodeLocal(src, decodeFile, logger); err != nil {
			logger.Error("failed to decode tile", "path", decodeFile, "error", err)
			src.Close()
			os.Exit(1)
		}
		return
	}

	logger.Info("starting vector tile MCP server",
		"version", ver.BuildVersion,
		"log_level", logLevel.String(),
		"tile_url", tileURL,
		"rps", tileRPS,
		"burst", tileBurst,
		"cache_size", cacheSize,
		"canonical_extent", canonicalExtent,
		"http_enabled", enableHTTP,
		"monitoring_enabled", enableMonitoring,
		"monitoring_addr", monitoringAddr)

	s, err := server.NewServer(src, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if healthChecker != nil {
		startMonitoringServer(ctx, healthChecker, logger)
	}

	if enableHTTP {
		config := server.DefaultHTTPTransportConfig()
		config.Addr = httpAddr
		config.BaseURL = httpBaseURL
		config.AuthToken = httpAuthToken

		httpTransport := server.NewHTTPTransport(s.GetMCPServer(), config, logger)
		if healthChecker != nil {
			httpTransport.SetHealthChecker(healthChecker)
		}

		go func() {
			if err := httpTransport.Start(); err != nil {
				logger.Error("HTTP transport error", "error", err)
				stop()
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := httpTransport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP transport", "error", err)
			}
		}()
	}

	if enableRegistration {
		svcURL := serviceURL
		if svcURL == "" && enableHTTP {
			svcURL = fmt.Sprintf("http://localhost%s", httpAddr)
		}
		regClient, err := registration.NewClient(registration.Config{
			RegistryURL:  registryURL,
			ServiceName:  monitoring.ServiceName,
			ServiceURL:   svcURL,
			HealthURL:    svcURL + "/health",
			Version:      ver.BuildVersion,
			Capabilities: []string{"vector-tiles", "geojson", "annotations"},
			Tools:        s.Registry().GetToolNames(),
			Metadata: map[string]interface{}{
				"transport":        map[string]bool{"stdio": !httpOnly, "http": enableHTTP},
				"tile_url":         tileURL,
				"canonical_extent": canonicalExtent,
			},
		}, logger)
		if err != nil {
			logger.Error("service registration disabled", "error", err)
		} else {
			regClient.Start(ctx)
			defer regClient.Stop()
		}
	}

	// Without HTTP, stdio runs on the main goroutine. With HTTP it runs in
	// the background unless -http-only skips it.
	switch {
	case !enableHTTP:
		logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
		if err := s.RunWithContext(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case httpOnly:
		logger.Info("server_ready", "transports", []string{"http"}, "http_only", true)
		<-ctx.Done()
		logger.Info("shutdown signal received")
	default:
		go func() {
			logger.Info("transport_enabled", "type", "stdio", "mode", "background")
			if err := s.RunWithContext(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
			}
		}()

		logger.Info("server_ready", "transports", []string{"stdio", "http"})
		<-ctx.Done()
		logger.Info("shutdown signal received")
		s.Shutdown()
	}

	logger.Info("server stopped", "cache", src.Stats())
}

// decodeLocal prints the summary of a tile file on stdout.
func decodeLocal(src *source.Source, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	summary, err := tools.NewRegistry(logger, src).SummarizeBytes(data, countTypes)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// startMonitoringServer serves Prometheus metrics and the health probes
// until ctx is done.
func startMonitoringServer(ctx context.Context, healthChecker *monitoring.HealthChecker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthChecker.HealthHandler())
	mux.HandleFunc("/live", healthChecker.LivenessHandler())

	monitoringServer := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
	}

	go func() {
		logger.Info("starting monitoring server", "addr", monitoringAddr)
		if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}()
}
