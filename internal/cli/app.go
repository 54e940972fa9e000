package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/rollbook/internal/cache"
	"github.com/roach88/rollbook/internal/config"
	"github.com/roach88/rollbook/internal/coordinator"
	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/netwatch"
	"github.com/roach88/rollbook/internal/reconcile"
	"github.com/roach88/rollbook/internal/remote"
	"github.com/roach88/rollbook/internal/store"
)

// app is one process's wiring of the attendance core.
type app struct {
	cfg      config.Config
	kv       store.KV
	cache    *cache.Cache
	remote   remote.Remote
	drainer  *lastDrain
	coord    *coordinator.Coordinator
	monitor  *netwatch.Monitor
	registry *prometheus.Registry
	logger   *slog.Logger
}

// lastDrain remembers the result of the most recent drain so commands can
// report it after HandleConnectivity.
type lastDrain struct {
	*reconcile.Reconciler
	result reconcile.Result
	ran    bool
}

func (d *lastDrain) Drain(ctx context.Context) (reconcile.Result, error) {
	res, err := d.Reconciler.Drain(ctx)
	d.result, d.ran = res, true
	return res, err
}

// loadConfig reads the config named by --config.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger installs the process logger. --verbose overrides log.level.
func newLogger(opts *RootOptions, cfg config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openStore opens the configured key/value backend.
func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.KV, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "badger":
		bc := store.DefaultBadgerConfig(cfg.Path)
		bc.Logger = logger
		return store.OpenBadger(bc)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		return store.Open(cfg.Path)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// openApp loads config and wires store, cache, remote client, reconciler,
// coordinator and monitor, then hydrates from the cache. The caller must
// Close the app.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts, cfg)

	kv, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	reg := prometheus.NewRegistry()
	c := cache.New(kv, cache.WithLogger(logger))
	client := remote.NewClient(cfg.Remote.BaseURL,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithBearerToken(cfg.Remote.Token),
	)
	drainer := &lastDrain{Reconciler: reconcile.New(c, client,
		reconcile.WithLogger(logger),
		reconcile.WithRegisterer(reg),
	)}
	coord := coordinator.New(c, client, drainer,
		coordinator.WithLogger(logger),
		coordinator.WithRegisterer(reg),
	)
	monitor := netwatch.New(netwatch.HTTPProber{URL: cfg.ProbeURL()},
		netwatch.WithInterval(cfg.Connectivity.Interval),
		netwatch.WithTimeout(cfg.Connectivity.Timeout),
		netwatch.WithLogger(logger),
		netwatch.WithRegisterer(reg),
	)

	a := &app{
		cfg:      cfg,
		kv:       kv,
		cache:    c,
		remote:   client,
		drainer:  drainer,
		coord:    coord,
		monitor:  monitor,
		registry: reg,
		logger:   logger,
	}
	coord.Hydrate(ctx)
	return a, nil
}

// Close releases the store.
func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Error("error closing store", "error", err)
	}
}

// requireTeacher makes sure a teacher is signed in, signing in the
// configured teacher when the cache has none.
func (a *app) requireTeacher(ctx context.Context) (domain.Teacher, error) {
	if t, ok := a.coord.Teacher(); ok {
		return t, nil
	}
	if a.cfg.Teacher.ID == "" {
		return domain.Teacher{}, WrapExitError(ExitCommandError,
			"no teacher signed in (run `rollbook signin` or set teacher.id in the config)",
			coordinator.ErrNotSignedIn)
	}
	res, err := a.coord.SignIn(ctx, domain.Teacher{
		ID:      a.cfg.Teacher.ID,
		Name:    a.cfg.Teacher.Name,
		Contact: a.cfg.Teacher.Contact,
	})
	if err != nil {
		return domain.Teacher{}, writeError("sign in", err)
	}
	return res.Value, nil
}

// writeError maps a coordinator error onto an exit code. Permanent remote
// rejections are operation failures; unknown targets and invalid input are
// command errors.
func writeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalid),
		errors.Is(err, coordinator.ErrUnknownClass),
		errors.Is(err, coordinator.ErrUnknownStudent),
		errors.Is(err, coordinator.ErrNotSignedIn):
		return WrapExitError(ExitCommandError, op+" failed", err)
	}
	return WrapExitError(ExitFailure, op+" failed", err)
}

// errorCode names err for JSON output.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return string(remote.CodeInvalid)
	case errors.Is(err, coordinator.ErrUnknownClass),
		errors.Is(err, coordinator.ErrUnknownStudent):
		return string(remote.CodeNotFound)
	case errors.Is(err, coordinator.ErrNotSignedIn):
		return "NOT_SIGNED_IN"
	}
	var re *remote.Error
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// report prints err through the formatter. The returned error is always an
// *ExitError, which tells main it was already shown.
func report(f *OutputFormatter, err error) error {
	if err == nil {
		return nil
	}
	_ = f.Error(errorCode(err), err.Error(), nil)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitFailure, "command failed", err)
}
