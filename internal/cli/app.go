package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/config"
	"github.com/roach88/offlineq/internal/mutation"
	"github.com/roach88/offlineq/internal/netstate"
	"github.com/roach88/offlineq/internal/offline"
	"github.com/roach88/offlineq/internal/remote"
	"github.com/roach88/offlineq/internal/report"
	"github.com/roach88/offlineq/internal/store"
)

// connectivity selects how an app observes the network.
type connectivity int

const (
	// forcedOffline never reports a connection, so the queue is loaded
	// and edited without ever starting a processing pass.
	forcedOffline connectivity = iota
	// forcedOnline reports a connection for the whole run.
	forcedOnline
	// configured uses the probe or manual source from the config file.
	configured
)

// app wires the packages together for one command invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	kv      *store.KV
	queue   *offline.Queue
	monitor *netstate.Monitor
	probe   *netstate.Probe  // nil unless network.probe_addr is set
	manual  *netstate.Manual // nil when probing

	closers []func() error
}

// loadConfig reads the config file named by --config.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, CodeConfig, err)
	}
	return cfg, nil
}

// openApp opens storage and builds the queue. The queue is not yet
// initialized; callers decide when processing may start.
func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger, mode connectivity) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.kv = store.NewKV(backend, logger)

	var src netstate.Source
	switch {
	case mode == forcedOffline:
		a.manual = netstate.NewManual(netstate.StateOf(false, "none"))
		src = a.manual
	case mode == forcedOnline:
		a.manual = netstate.NewManual(netstate.StateOf(true, "manual"))
		src = a.manual
	case cfg.Network.ProbeAddr != "":
		a.probe = netstate.NewProbe(cfg.Network.ProbeAddr, cfg.Network.ProbeInterval)
		src = a.probe
	default:
		a.manual = netstate.NewManual(netstate.StateOf(cfg.Network.InitiallyOnline, "manual"))
		src = a.manual
	}
	a.monitor = netstate.NewMonitor(src, logger)

	a.queue = offline.New(a.kv, a.monitor,
		offline.WithConfig(cfg.OfflineConfig()),
		offline.WithReporter(report.NewLogger(logger)),
		offline.WithLogger(logger),
	)
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (store.Backend, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendRedis:
		r := a.cfg.Storage.Redis
		backend, err := store.DialRedis(ctx, r.Addr, r.DB, r.Prefix)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, CodeStorage, err)
		}
		a.closers = append(a.closers, backend.Close)
		return backend, nil
	default:
		backend, err := store.Open(a.cfg.Storage.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, CodeStorage, err)
		}
		a.closers = append(a.closers, backend.Close)
		return backend, nil
	}
}

// start brings up connectivity and initializes the queue.
func (a *app) start(ctx context.Context) error {
	if a.probe != nil {
		if err := a.probe.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, CodeNetwork, err)
		}
	}
	if _, err := a.monitor.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, CodeNetwork, err)
	}
	if err := a.queue.Initialize(ctx); err != nil {
		return WrapExitError(ExitCommandError, CodeNetwork, err)
	}
	return nil
}

// registerRemote installs HTTP handlers for every configured endpoint.
// It returns the registered types, or nil when no backend URL is set.
func (a *app) registerRemote() ([]string, error) {
	if a.cfg.Remote.BaseURL == "" {
		return nil, nil
	}
	d := &remote.Dispatcher{
		BaseURL:   a.cfg.Remote.BaseURL,
		Endpoints: a.cfg.Endpoints(),
		Headers:   a.cfg.Remote.Headers,
		Client:    &http.Client{Timeout: a.cfg.Remote.Timeout},
		Logger:    a.logger,
	}
	types, err := d.Register(a.queue)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, CodeConfig, err)
	}
	return types, nil
}

// newAnalytics builds the facade for the configured environment. Production
// records go to Kafka when brokers are configured and to the log otherwise.
func (a *app) newAnalytics() (*analytics.Analytics, error) {
	env := a.cfg.AnalyticsEnvironment()

	var sink analytics.Sink
	if env == analytics.Production {
		k := a.cfg.Analytics.Kafka
		if len(k.Brokers) > 0 {
			ks, err := analytics.NewKafkaSink(analytics.KafkaConfig{Brokers: k.Brokers, Topic: k.Topic})
			if err != nil {
				return nil, WrapExitError(ExitCommandError, CodeConfig, err)
			}
			a.closers = append(a.closers, ks.Close)
			sink = ks
		} else {
			sink = analytics.NewLogSink(a.logger)
		}
	}

	an, err := analytics.NewForEnvironment(env, a.kv, sink, a.cfg.AnalyticsOfflineConfig(),
		analytics.WithLogger(a.logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, CodeConfig, err)
	}
	return an, nil
}

// persisted returns what storage holds for the queue key. It is read
// after Destroy to report what a later run will pick up.
func (a *app) persisted(ctx context.Context) []mutation.Mutation {
	raw, ok := a.kv.Get(ctx, a.cfg.Queue.Key)
	if !ok {
		return nil
	}
	list, err := mutation.Decode(raw)
	if err != nil {
		a.logger.Warn("stored queue is unreadable", "key", a.cfg.Queue.Key, "error", err)
		return nil
	}
	return list
}

// Close tears down in reverse order of construction. Safe to call twice.
func (a *app) Close() error {
	a.queue.Destroy()
	a.monitor.Stop()
	if a.probe != nil {
		a.probe.Stop()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// fail prints the error in the configured format and returns the matching
// exit error.
func fail(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitFailure, "E_INTERNAL", err)
	}
	msg := exitErr.Message
	if exitErr.Err != nil {
		msg = exitErr.Err.Error()
	}
	_ = f.Error(exitErr.Message, msg, nil)
	return exitErr
}
