package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harun/raidreview/internal/config"
	"github.com/harun/raidreview/internal/logger"
	"github.com/harun/raidreview/internal/metrics"
	"github.com/robfig/cron/v3"
)

const shutdownTimeout = 5 * time.Second

var errClientConnected = errors.New("client is already connected")

// Daemon is the long-running server process that owns the log session
type Daemon struct {
	config    *config.Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	lifecycle *LifecycleManager

	server    *http.Server
	listener  net.Listener
	scheduler *cron.Cron

	mu        sync.RWMutex
	running   bool
	runID     string
	startTime time.Time
	clients   map[string]struct{}

	connMu sync.Mutex
	conns  map[string]*websocket.Conn
}

// LoggerConfig maps the loaded configuration onto the logger's options
func LoggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		EnableLogFiles:        cfg.Logging.EnableLogFiles,
		MaximumLogFiles:       cfg.Logging.MaximumLogFiles,
		EnableDebugLogs:       cfg.Logging.EnableDebugLogs,
		EnableVerboseLogFiles: cfg.Logging.EnableVerboseLogFiles,
		Directory:             cfg.Logging.Directory,
		Redaction:             cfg.Logging.Redaction,
	}
}

// New creates a daemon. m may be nil when metrics are not collected.
func New(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	d := &Daemon{
		config:  cfg,
		logger:  log,
		metrics: m,
		clients: make(map[string]struct{}),
		conns:   make(map[string]*websocket.Conn),
	}
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// Start writes the PID file, starts the first log session and, when
// configured, the prune schedule and the HTTP endpoint.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.runID = uuid.NewString()
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.log().Init(); err != nil {
		d.log().Error(fmt.Sprintf("Failed to start log session: %v", err))
		_ = d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start log session: %w", err)
	}

	if err := d.startScheduler(d.config.Logging.PruneSchedule); err != nil {
		_ = d.lifecycle.Stop()
		d.setStopped()
		return err
	}

	if d.config.Metrics.Enabled {
		if err := d.startServer(); err != nil {
			d.stopScheduler()
			_ = d.lifecycle.Stop()
			d.setStopped()
			return err
		}
		d.log().Info(fmt.Sprintf("Metrics available at http://%s/metrics", d.listener.Addr()))
	}

	d.log().Info(fmt.Sprintf("Server started (pid %d, run %s)", os.Getpid(), d.Status().RunID))

	return nil
}

// Stop shuts down the HTTP endpoint and removes the PID file. Every client
// is dropped, so the server is idle when started again.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.clients = make(map[string]struct{})
	d.mu.Unlock()

	d.metrics.ActiveClients.Set(0)
	d.log().Info("Stopping server")

	d.stopScheduler()
	d.closeConns()

	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.log().Error(fmt.Sprintf("Failed to stop HTTP server: %v", err))
		}
		d.server = nil
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.log().Error(fmt.Sprintf("Failed to stop lifecycle manager: %v", err))
		return err
	}

	d.log().Info("Server stopped")

	return nil
}

// Wait blocks until ctx is done or SIGINT/SIGTERM arrives, then stops
func (d *Daemon) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.log().Info(fmt.Sprintf("Received signal %s", sig))
	case <-ctx.Done():
	}

	return d.Stop()
}

// ClientJoined registers a connected client. When the server was idle
// this is the first client to join, and a new log session is started.
// Joining again with a registered id does nothing.
func (d *Daemon) ClientJoined(id string) error {
	return d.join(id, false)
}

// join registers id. With exclusive set an id that is already registered
// fails with errClientConnected instead of being accepted again.
func (d *Daemon) join(id string, exclusive bool) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	if _, ok := d.clients[id]; ok {
		d.mu.Unlock()
		if exclusive {
			return errClientConnected
		}
		return nil
	}
	wasIdle := len(d.clients) == 0
	d.clients[id] = struct{}{}
	count := len(d.clients)
	d.mu.Unlock()

	d.metrics.ActiveClients.Set(float64(count))

	if wasIdle {
		if err := d.log().Init(); err != nil {
			d.log().Error(fmt.Sprintf("Failed to start log session: %v", err))
			return fmt.Errorf("failed to start log session: %w", err)
		}
	}

	d.log().Info(fmt.Sprintf("Client '%s' joined, %d connected", id, count))

	return nil
}

// ClientLeft unregisters a client
func (d *Daemon) ClientLeft(id string) {
	d.mu.Lock()
	if _, ok := d.clients[id]; !ok {
		d.mu.Unlock()
		d.log().Debug(fmt.Sprintf("Ignoring leave for unknown client '%s'", id))
		return
	}
	delete(d.clients, id)
	count := len(d.clients)
	d.mu.Unlock()

	d.metrics.ActiveClients.Set(float64(count))
	d.log().Info(fmt.Sprintf("Client '%s' left, %d connected", id, count))
}

// Reload applies a changed configuration to the running daemon. A logger
// never changes configuration, so a new one is derived for cfg and, when
// running with file logging on, started on a fresh session before it
// replaces the current one. Metrics settings need a restart.
func (d *Daemon) Reload(cfg *config.Config) error {
	next := d.log().Derive(LoggerConfig(cfg))
	running := d.Status().Running

	// The new schedule is built before anything changes so a bad one
	// leaves the current schedule running.
	var sched *cron.Cron
	rescheduled := running && cfg.Logging.PruneSchedule != d.GetConfig().Logging.PruneSchedule
	if rescheduled {
		var err error
		if sched, err = d.newScheduler(cfg.Logging.PruneSchedule); err != nil {
			d.log().Error(fmt.Sprintf("Failed to apply prune schedule, keeping the previous configuration: %v", err))
			return err
		}
	}

	if running {
		if err := next.Init(); err != nil {
			d.log().Error(fmt.Sprintf("Failed to start log session, keeping the previous configuration: %v", err))
			return fmt.Errorf("failed to start log session: %w", err)
		}
	}

	d.mu.Lock()
	prev := d.config
	d.config = cfg
	d.logger = next
	d.mu.Unlock()

	if rescheduled {
		d.swapScheduler(sched, cfg.Logging.PruneSchedule)
	}

	next.Info("Configuration reloaded")

	if cfg.Metrics != prev.Metrics {
		next.Warn("Metrics settings changed, restart the server to apply them")
	}

	return nil
}

// PruneLogs runs one retention pass over the log directory
func (d *Daemon) PruneLogs() (logger.RetentionResult, error) {
	result, err := d.log().Prune()
	if err != nil {
		d.log().Error(fmt.Sprintf("Failed to prune log files: %v", err))
		return result, err
	}
	if result.Evicted == "" {
		d.log().Debug(fmt.Sprintf("Nothing to prune (%d files, limit %d)", result.Count, d.log().Config().MaximumLogFiles))
	}
	return result, nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:     d.running,
		RunID:       d.runID,
		Clients:     len(d.clients),
		SessionFile: d.logger.SessionFile(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Addr returns the HTTP listen address, nil when the server is not running
func (d *Daemon) Addr() net.Addr {
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.log()
}

func (d *Daemon) log() *logger.Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// GetMetrics returns the daemon metrics
func (d *Daemon) GetMetrics() *metrics.Metrics {
	return d.metrics
}

// Status represents daemon status
type Status struct {
	Running     bool          `json:"running"`
	RunID       string        `json:"run_id,omitempty"`
	Uptime      time.Duration `json:"uptime"`
	StartTime   time.Time     `json:"start_time"`
	Clients     int           `json:"clients"`
	SessionFile string        `json:"session_file,omitempty"`
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// newScheduler builds an unstarted prune scheduler. An empty schedule
// yields nil.
func (d *Daemon) newScheduler(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { _, _ = d.PruneLogs() }); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return c, nil
}

func (d *Daemon) startScheduler(schedule string) error {
	c, err := d.newScheduler(schedule)
	if err != nil {
		return err
	}
	d.swapScheduler(c, schedule)
	return nil
}

// swapScheduler starts c, which may be nil, and then stops the scheduler
// it replaces.
func (d *Daemon) swapScheduler(c *cron.Cron, schedule string) {
	if c != nil {
		c.Start()
	}

	d.mu.Lock()
	prev := d.scheduler
	d.scheduler = c
	d.mu.Unlock()

	if prev != nil {
		<-prev.Stop().Done()
	}
	if c != nil {
		d.log().Debug(fmt.Sprintf("Pruning log files on schedule '%s'", schedule))
	}
}

func (d *Daemon) stopScheduler() {
	d.swapScheduler(nil, "")
}

func (d *Daemon) startServer() error {
	listener, err := net.Listen("tcp", d.config.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.config.Metrics.Addr, err)
	}

	d.listener = listener
	d.server = &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log().Error(fmt.Sprintf("HTTP server failed: %v", err))
		}
	}(d.server)

	return nil
}
