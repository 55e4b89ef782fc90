// Command server runs the streaming tool-call extraction gateway.
//
// Configuration can be provided via:
//   - YAML config file (--config flag, STROM_CONFIG env, ./config.yaml, /etc/strom/config.yaml)
//   - Environment variables with STROM_ prefix (override config file values)
//
// See config.example.yaml for full documentation of available settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rhuss/strom/pkg/api"
	"github.com/rhuss/strom/pkg/config"
	"github.com/rhuss/strom/pkg/debug"
	"github.com/rhuss/strom/pkg/driver"
	"github.com/rhuss/strom/pkg/inference"
	"github.com/rhuss/strom/pkg/inference/fakeengine"
	"github.com/rhuss/strom/pkg/observability"
	"github.com/rhuss/strom/pkg/tokenizer"
	"github.com/rhuss/strom/pkg/toolparser"
	"github.com/rhuss/strom/pkg/transport"
	transporthttp "github.com/rhuss/strom/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	// This server has no real inference backend wired in; fakeengine stands
	// in for one. A real deployment replaces this with an inference.Engine
	// adapter over the actual model-serving backend (e.g. a vLLM HTTP
	// client) — everything downstream of the inference.Engine interface
	// (pkg/driver, pkg/toolparser, the transport layer) is backend-agnostic.
	eng := fakeengine.New(nil, nil)

	drv := driver.New(eng, driverConfig(cfg, eng), slog.Default())
	chatHandler := newDriverHandler(drv)

	server := transporthttp.NewServer(chatHandler,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithLogger(slog.Default()),
	)

	if cfg.Observability.Metrics.Enabled {
		go serveMetrics(cfg.Observability.Metrics.Path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("server starting",
		"port", cfg.Server.Port,
		"tool_parser", cfg.ToolParser.Dialect,
		"auto_tool_choice", cfg.ToolParser.AutoToolChoice,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newDriverHandler adapts a driver.Driver into a transport.ChatHandler: the
// request id is read from context (assigned by the transport.RequestID
// middleware, already applied by transporthttp.NewServer's default chain).
func newDriverHandler(drv *driver.Driver) transport.ChatHandler {
	return transport.ChatHandlerFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
		requestID := transport.RequestIDFromContext(ctx)
		return drv.Run(ctx, requestID, req, w)
	})
}

// driverConfig builds a driver.Config from the loaded configuration,
// wiring a fresh tool-call parser factory for the configured dialect.
func driverConfig(cfg *config.Config, eng inference.Engine) driver.Config {
	dc := driver.Config{
		AutoToolChoice: cfg.ToolParser.AutoToolChoice,
		ResponseRole:   cfg.ToolParser.ResponseRole,
	}

	switch cfg.ToolParser.Dialect {
	case "mistral":
		dc.NewParser = func() (toolparser.Parser, error) {
			botTokenID, _ := eng.TokenID("[TOOL_CALLS]")
			return toolparser.NewMistralParser(botTokenID), nil
		}
	case "hermes":
		dc.NewParser = func() (toolparser.Parser, error) {
			return toolparser.NewHermesParser(engineTokenizer{eng})
		}
	}

	return dc
}

// engineTokenizer adapts inference.Engine's TokenID lookup to the narrow
// tokenizer.Tokenizer interface the Hermes parser needs; Decode is never
// called by the parser itself (it only consults the driver's already-
// decoded step text), so it is unimplemented here.
type engineTokenizer struct {
	eng inference.Engine
}

func (t engineTokenizer) TokenID(s string) (int, bool) { return t.eng.TokenID(s) }
func (t engineTokenizer) Decode(ids []int) string      { return "" }

var _ tokenizer.Tokenizer = engineTokenizer{}

func serveMetrics(path string) {
	mux := http.NewServeMux()
	mux.Handle("GET "+path, promhttp.Handler())
	slog.Info("metrics endpoint enabled", "path", path)
	if err := http.ListenAndServe(":9090", observability.MetricsMiddleware(mux)); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "error", err)
	}
}
