// fix-initiator connects the initiator sessions of a settings file to their
// counterparties and keeps them logged on until interrupted.
//
// Usage:
//
//	fix-initiator -config sessions.yaml [options]
//
// Options:
//
//	-config     Settings file (YAML, TOML or JSON)
//	-store      Message store: memory, file or badger (default: memory)
//	-metrics    Listen address for /metrics (default: ":9102", empty disables)
//	-log-level  error, warn, info, debug or trace (default: info)
//
// Example:
//
//	fix-initiator -config sessions.yaml -store file -metrics 127.0.0.1:9102
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/discovery"
	"github.com/backkem/fix/pkg/initiator"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/store"
	"github.com/backkem/fix/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options holds the command-line options.
type Options struct {
	ConfigPath  string
	Store       string
	MetricsAddr string
	LogLevel    string
}

func parseFlags() Options {
	var o Options
	flag.StringVar(&o.ConfigPath, "config", "", "Settings file (YAML, TOML or JSON)")
	flag.StringVar(&o.Store, "store", "memory", "Message store: memory, file or badger")
	flag.StringVar(&o.MetricsAddr, "metrics", ":9102", "Listen address for /metrics (empty disables)")
	flag.StringVar(&o.LogLevel, "log-level", "info", "error, warn, info, debug or trace")
	flag.Parse()
	return o
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

func main() {
	opts := parseFlags()
	if opts.ConfigPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		log.Fatalf("fix-initiator: %v", err)
	}
}

func run(opts Options) error {
	level, ok := logLevels[strings.ToLower(opts.LogLevel)]
	if !ok {
		return fmt.Errorf("unknown log level %q", opts.LogLevel)
	}
	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = level
	logger := loggerFactory.NewLogger("fix-initiator")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	storeFactory, closeStore, err := newStoreFactory(opts.Store, settings, loggerFactory)
	if err != nil {
		return err
	}
	defer closeStore()

	logFactory, err := newLogFactory(settings.Defaults(), loggerFactory)
	if err != nil {
		return err
	}

	endpoints, err := newEndpointResolver(settings)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	in, err := initiator.New(initiator.Config{
		Settings: settings,
		Connector: transport.NewSocketConnector(transport.SocketConfig{
			Endpoints:     endpoints,
			LoggerFactory: loggerFactory,
		}),
		SessionFactory: session.NewFactory(session.FactoryConfig{
			Application:  &application{log: loggerFactory.NewLogger("application")},
			StoreFactory: storeFactory,
			LogFactory:   logFactory,
		}),
		LoggerFactory: loggerFactory,
		Registerer:    registry,
	})
	if err != nil {
		return err
	}

	var metrics *http.Server
	if opts.MetricsAddr != "" {
		metrics = serveMetrics(opts.MetricsAddr, registry, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := in.Start(); err != nil {
		return fmt.Errorf("start initiator: %w", err)
	}
	logger.Infof("started %d session(s)", len(in.SessionIDs()))

	<-ctx.Done()

	logger.Info("shutting down")
	if err := in.Stop(false); err != nil {
		logger.Warnf("stop: %v", err)
	}
	if err := in.Close(); err != nil {
		logger.Warnf("close: %v", err)
	}

	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("metrics shutdown: %v", err)
		}
	}
	return nil
}

// newStoreFactory picks the message store. The returned func releases
// resources shared by every store.
func newStoreFactory(kind string, settings *config.SessionSettings, loggerFactory logging.LoggerFactory) (store.Factory, func(), error) {
	nop := func() {}
	switch strings.ToLower(kind) {
	case "memory", "":
		return store.NewMemoryStoreFactory(), nop, nil
	case "file":
		return store.NewFileStoreFactory(settings, loggerFactory), nop, nil
	case "badger":
		path, err := settings.Defaults().String(config.BadgerStorePath)
		if err != nil {
			return nil, nop, config.NewError("badger store", err)
		}
		f, err := store.NewBadgerStoreFactory(path)
		if err != nil {
			return nil, nop, err
		}
		return f, func() { f.Close() }, nil
	}
	return nil, nop, fmt.Errorf("unknown store %q", kind)
}

func newLogFactory(defaults *config.Dictionary, loggerFactory logging.LoggerFactory) (*session.LeveledLogFactory, error) {
	incoming, err := defaults.BoolDefault(config.LogIncoming, true)
	if err != nil {
		return nil, err
	}
	outgoing, err := defaults.BoolDefault(config.LogOutgoing, true)
	if err != nil {
		return nil, err
	}
	events, err := defaults.BoolDefault(config.LogEvents, true)
	if err != nil {
		return nil, err
	}
	return session.NewLeveledLogFactory(loggerFactory, incoming, outgoing, events), nil
}

// newEndpointResolver enables DNS-SD only when a session asks for it.
func newEndpointResolver(settings *config.SessionSettings) (*transport.EndpointResolver, error) {
	var cfg transport.EndpointResolverConfig
	for _, id := range settings.SessionIDs() {
		d, err := settings.Get(id)
		if err != nil {
			return nil, err
		}
		if !d.Has(config.SocketConnectService) {
			continue
		}
		resolver, err := discovery.NewResolver(discovery.ResolverConfig{})
		if err != nil {
			return nil, fmt.Errorf("mdns resolver: %w", err)
		}
		cfg.ServiceLookup = resolver
		break
	}
	return transport.NewEndpointResolver(cfg), nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger logging.LeveledLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	logger.Infof("serving metrics on %s/metrics", addr)
	return srv
}
