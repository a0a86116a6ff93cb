// Package daemon wires the fail2ban pipeline together and runs it as a
// background service: log tailing, status reconciliation, SSH log
// analysis and geolocation warm-up on a shared scheduler.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/user/banwatch/internal/aggregate"
	"github.com/user/banwatch/internal/fail2ban"
	"github.com/user/banwatch/internal/geo"
	"github.com/user/banwatch/internal/storage"
	"github.com/user/banwatch/internal/tail"
	"github.com/user/banwatch/internal/util"
)

// Daemon manages the background service.
type Daemon struct {
	config    *util.Config
	scheduler *Scheduler
	db        *storage.DB

	client   *fail2ban.Client
	agg      *aggregate.Aggregator
	resolver *geo.Resolver

	tailer    *tail.Tailer
	sshTailer *tail.Tailer
	cursors   *storage.CursorStore

	// jails whose bantime has been queried already
	knownJails map[string]struct{}

	pidFile   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	startTime time.Time
	mu        sync.RWMutex
}

// New creates a new daemon instance.
func New(cfg *util.Config) (*Daemon, error) {
	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	resolver := geo.NewResolver(cfg.GeoAPIURL, cfg.GeoTimeout)
	geoStore := storage.NewGeoStore(db)
	if entries, err := geoStore.All(); err == nil {
		resolver.Warm(entries)
	} else {
		util.Warn("Failed to warm geo cache: %v", err)
	}
	resolver.SetStore(geoStore)

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     cfg,
		db:         db,
		client:     fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout),
		agg:        aggregate.New(resolver, cfg.RecentLines),
		resolver:   resolver,
		cursors:    storage.NewCursorStore(db),
		knownJails: make(map[string]struct{}),
		pidFile:    filepath.Join(cfg.DataDir, "banwatch.pid"),
		ctx:        ctx,
		cancel:     cancel,
	}

	d.tailer = tail.Open(cfg.Fail2banLog)
	if offset, inode, ok, err := d.cursors.Load(cfg.Fail2banLog); err == nil && ok {
		d.tailer.SetCursor(offset, inode)
	}

	sshLog := cfg.SSHLog
	if sshLog == "" {
		sshLog = util.FindSSHLog()
	}
	if sshLog != "" {
		d.sshTailer = tail.Open(sshLog)
		util.Info("SSH auth log: %s", sshLog)
	} else {
		util.Warn("No readable SSH auth log found, SSH statistics disabled")
	}

	d.scheduler = NewScheduler(ctx)

	return d, nil
}

// Start starts the daemon.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("Daemon starting...")

	// The executor being absent disables control features but not log
	// viewing; startup only warns.
	if err := d.client.Ping(d.ctx); err != nil {
		if fail2ban.IsNotAvailable(err) {
			util.Warn("fail2ban-client not available, running in read-only log mode: %v", err)
		} else {
			util.Warn("fail2ban ping failed: %v", err)
		}
	}

	d.registerJobs()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run()
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleSignals()
	}()

	util.Info("Daemon started with PID %d", os.Getpid())

	return nil
}

// Wait waits for the daemon to finish.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	util.Info("Daemon stopping...")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		util.Info("Daemon stopped gracefully")
	case <-time.After(30 * time.Second):
		util.Warn("Daemon stop timed out")
	}

	d.saveCursors()
	d.removePIDFile()
	if d.db != nil {
		d.db.Close()
	}

	return nil
}

func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		util.Info("Received signal: %v", sig)
		d.Stop()
	case <-d.ctx.Done():
		return
	}
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &DaemonStatus{
		Running:   d.running,
		PID:       os.Getpid(),
		StartTime: d.startTime,
		Uptime:    time.Since(d.startTime),
		Jobs:      d.scheduler.GetJobStatuses(),
	}
}

// DaemonStatus holds the current daemon status.
type DaemonStatus struct {
	Running   bool
	PID       int
	StartTime time.Time
	Uptime    time.Duration
	Jobs      []JobStatus
}

// Aggregator returns the state aggregator.
func (d *Daemon) Aggregator() *aggregate.Aggregator {
	return d.agg
}

// Client returns the fail2ban command executor.
func (d *Daemon) Client() *fail2ban.Client {
	return d.client
}

// Resolver returns the geolocation resolver.
func (d *Daemon) Resolver() *geo.Resolver {
	return d.resolver
}

// Config returns the configuration.
func (d *Daemon) Config() *util.Config {
	return d.config
}

// Context returns the daemon context.
func (d *Daemon) Context() context.Context {
	return d.ctx
}
