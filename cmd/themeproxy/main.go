package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/themeproxy/internal/common/logger"
	"github.com/edgecomet/themeproxy/internal/common/metrics"
	"github.com/edgecomet/themeproxy/internal/common/metricsserver"
	"github.com/edgecomet/themeproxy/internal/config"
	"github.com/edgecomet/themeproxy/internal/driver"
	"github.com/edgecomet/themeproxy/internal/proxy"
	"github.com/edgecomet/themeproxy/internal/pyref"
)

func main() {
	configPath := flag.String("c", "configs/themeproxy.xml", "path to configuration file")
	testMode := flag.Bool("t", false, "test configuration and exit")
	flag.Parse()

	if *testMode {
		os.Exit(runConfigTest(*configPath))
	}

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	initialLogger.Info("starting themeproxy", zap.String("config_path", *configPath))

	data, err := os.ReadFile(*configPath)
	if err != nil {
		initialLogger.Fatal("failed to read config file", zap.Error(err))
	}

	result, err := config.Load(data, *configPath)
	if err != nil {
		initialLogger.Fatal("failed to load config", zap.Error(err))
	}

	sink := logger.NewSink(initialLogger.Logger)

	// ExecutePyref gates every host-callback invocation; with it disabled
	// the registry denies all pyref call sites (spec §6, §7).
	var security pyref.SecurityPredicate
	if !result.Server.ExecutePyref {
		security = func(ctx *fasthttp.RequestCtx) bool { return false }
	}
	registry := pyref.NewRegistry(security)

	client := &fasthttp.Client{}
	fetch := driver.NewFetcher(client)

	var engine *driver.Engine
	if len(result.RuleSets) > 0 {
		engine = driver.NewEngine(result.RuleSets[0], fetch, sink)
	}

	var routes []*proxy.Route
	for _, spec := range result.Routes {
		routes = append(routes, proxy.FromSpec(spec, registry, *configPath, engine))
	}
	metricsCollector := metrics.NewCollector("themeproxy", initialLogger.Logger)

	proxySet := proxy.NewSet(routes, registry)
	proxySet.Client = client
	proxySet.Metrics = metricsCollector
	metricsServer, err := metricsserver.StartMetricsServer(
		true,
		fmt.Sprintf("%s:9090", result.Server.Host),
		"/metrics",
		metricsCollector,
		initialLogger.Logger,
	)
	if err != nil {
		initialLogger.Fatal("failed to start metrics server", zap.Error(err))
	}

	handler := func(ctx *fasthttp.RequestCtx) {
		proxySet.Handle(ctx, sink)
	}

	addr := fmt.Sprintf("%s:%s", result.Server.Host, result.Server.Port)
	srv := &fasthttp.Server{
		Handler:                      handler,
		Name:                         "themeproxy",
		ReadTimeout:                  30 * time.Second,
		WriteTimeout:                 30 * time.Second,
		DisablePreParseMultipartForm: true,
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil {
			serverErrors <- err
		}
	}()
	initialLogger.Info("themeproxy listening", zap.String("address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		initialLogger.Info("shutting down themeproxy")
	case err := <-serverErrors:
		initialLogger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		initialLogger.Error("server shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			initialLogger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	initialLogger.Info("themeproxy stopped")
}

func runConfigTest(configPath string) int {
	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading config: %v\n", err)
		return 1
	}
	if _, err := config.Load(data, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "configuration validation FAILED:\n%v\n", err)
		return 1
	}
	fmt.Printf("configuration file %s syntax is ok\n", configPath)
	return 0
}
