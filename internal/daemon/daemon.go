// Package daemon wires curator's components together and runs the long-lived
// process: stores, job runner, HTTP API, and metrics. A file lock guarantees
// a single instance per data directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"curator/internal/adapter"
	"curator/internal/adapter/annojson"
	"curator/internal/adapter/vocxml"
	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/coordinator"
	"curator/internal/export"
	"curator/internal/importer"
	"curator/internal/jobs"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/mediastore"
	"curator/internal/runner"
	"curator/internal/selection"
)

// Status reports the daemon's runtime state.
type Status struct {
	Running      bool
	PID          int
	LedgerDBPath string
	JobsDBPath   string
	LockPath     string
	APIBind      string
	SampleCount  int
	JobCounts    map[string]int
}

// Daemon owns the component graph and its lifecycle.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	mu          sync.Mutex
	running     bool
	lock        *flock.Flock
	ledgerStore *ledger.Store
	jobStore    *jobs.Store
	service     *api.Service
	run         *runner.Runner
	httpSrv     *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
}

// New constructs a daemon from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{cfg: cfg, logger: logger}
}

// Start acquires the instance lock, opens the stores, and launches the
// runner and HTTP API. It returns once everything is listening.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(d.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another curator instance holds %s", d.cfg.LockPath())
	}
	d.lock = lock

	ledgerStore, err := ledger.Open(d.cfg)
	if err != nil {
		d.releaseLock()
		return err
	}
	jobStore, err := jobs.Open(d.cfg)
	if err != nil {
		_ = ledgerStore.Close()
		d.releaseLock()
		return err
	}

	registry := adapter.NewRegistry()
	for _, a := range []adapter.Interface{annojson.New(), vocxml.New()} {
		if err := registry.Register(a); err != nil {
			_ = jobStore.Close()
			_ = ledgerStore.Close()
			d.releaseLock()
			return err
		}
	}

	coord := coordinator.New(ledgerStore, d.logger)
	selections := selection.NewManager()
	pipeline := export.NewPipeline(d.cfg, ledgerStore, jobStore, selections, registry, d.logger)
	media := mediastore.New(d.cfg)
	imp := importer.New(media, ledgerStore, coord, jobStore, d.logger)

	run := runner.New(d.cfg, jobStore, d.logger)
	run.RegisterTask(export.NewTask(registry, jobStore))
	run.RegisterTask(imp)

	service := api.NewService(ledgerStore, coord, selections, pipeline, imp, jobStore, run, registry, d.logger)

	runCtx, cancel := context.WithCancel(ctx)
	run.Start(runCtx)

	m := newMetrics(ledgerStore, jobStore)
	handler := newHTTPServer(service, m, d.logger)

	listener, err := net.Listen("tcp", d.cfg.APIBind)
	if err != nil {
		cancel()
		run.Stop()
		_ = jobStore.Close()
		_ = ledgerStore.Close()
		d.releaseLock()
		return fmt.Errorf("listen on %s: %w", d.cfg.APIBind, err)
	}

	httpSrv := &http.Server{
		Handler:           handler.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			d.logger.Error("http server stopped",
				logging.String(logging.FieldComponent, "daemon"),
				logging.Error(serveErr))
		}
	}()

	d.ledgerStore = ledgerStore
	d.jobStore = jobStore
	d.service = service
	d.run = run
	d.httpSrv = httpSrv
	d.listener = listener
	d.cancel = cancel
	d.running = true

	d.logger.Info("daemon started",
		logging.String(logging.FieldComponent, "daemon"),
		logging.String("api_bind", d.APIAddr()),
		logging.String("data_dir", d.cfg.DataDir))
	return nil
}

// Stop shuts everything down in reverse start order.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if d.httpSrv != nil {
		_ = d.httpSrv.Shutdown(shutdownCtx)
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.run != nil {
		d.run.Stop()
	}
	if d.jobStore != nil {
		_ = d.jobStore.Close()
	}
	if d.ledgerStore != nil {
		_ = d.ledgerStore.Close()
	}
	d.releaseLock()
	d.running = false
	d.logger.Info("daemon stopped", logging.String(logging.FieldComponent, "daemon"))
}

// Service returns the facade, available while the daemon runs.
func (d *Daemon) Service() *api.Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.service
}

// APIAddr returns the bound HTTP address.
func (d *Daemon) APIAddr() string {
	if d.listener == nil {
		return d.cfg.APIBind
	}
	return d.listener.Addr().String()
}

// Status summarizes the daemon's state for control clients.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := Status{
		Running:      d.running,
		PID:          os.Getpid(),
		LedgerDBPath: d.cfg.LedgerDBPath(),
		JobsDBPath:   d.cfg.JobsDBPath(),
		LockPath:     d.cfg.LockPath(),
		APIBind:      d.cfg.APIBind,
	}
	if !d.running {
		return status
	}
	if d.listener != nil {
		status.APIBind = d.listener.Addr().String()
	}
	if count, err := d.ledgerStore.Count(ctx); err == nil {
		status.SampleCount = count
	}
	if counts, err := d.jobStore.CountByStatus(ctx); err == nil {
		status.JobCounts = make(map[string]int, len(counts))
		for jobStatus, count := range counts {
			status.JobCounts[string(jobStatus)] = count
		}
	}
	return status
}

func (d *Daemon) releaseLock() {
	if d.lock != nil {
		_ = d.lock.Unlock()
		d.lock = nil
	}
}
