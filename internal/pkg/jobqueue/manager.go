package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/eventarchive"
)

// Background job names. They double as metric labels and lock names.
const (
	JobSweep        = "sweep"
	JobFraudCleanup = "fraud_cleanup"
	JobEventArchive = "event_archive"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 5 * time.Minute

// Tasks is the part of the ad service the manager drives.
type Tasks interface {
	RunSweep(ctx context.Context) (adcatalog.SweepResult, error)
	CleanupFraudWindows(ctx context.Context) (int, error)
	ObserveJob(job string, err error)
}

// Archiver exports finished days of the event log.
type Archiver interface {
	ArchivePending(ctx context.Context) ([]eventarchive.DayResult, error)
}

// Config wires a Manager.
type Config struct {
	Tasks    Tasks
	Archiver Archiver // nil disables the event export
	Locker   Locker   // nil runs every job on this instance
	Timeout  time.Duration
	// Intervals overrides the settings-driven interval per job.
	Intervals map[string]time.Duration
}

// Manager runs the periodic ad engine jobs
type Manager struct {
	tasks     Tasks
	archiver  Archiver
	locker    Locker
	timeout   time.Duration
	intervals map[string]time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	globalMu      sync.RWMutex
)

// NewManager creates a manager. Call Start to schedule the jobs.
func NewManager(cfg Config) *Manager {
	if cfg.Locker == nil {
		cfg.Locker = LocalLocker{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultJobTimeout
	}
	return &Manager{
		tasks:     cfg.Tasks,
		archiver:  cfg.Archiver,
		locker:    cfg.Locker,
		timeout:   cfg.Timeout,
		intervals: cfg.Intervals,
	}
}

// Init creates the global manager. Later calls replace it.
func Init(cfg Config) *Manager {
	m := NewManager(cfg)
	globalMu.Lock()
	globalManager = m
	globalMu.Unlock()
	return m
}

// GetManager returns the global manager, or nil before Init.
func GetManager() *Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// Start schedules every job on its own ticker
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting background jobs")

	for _, job := range []string{JobSweep, JobFraudCleanup, JobEventArchive} {
		m.wg.Add(1)
		go m.worker(job, m.interval(job), m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the tickers and waits for running jobs to return
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	log.Info("[JobQueue Manager] Stopping background jobs...")
	close(m.stopCh)
	m.stopCh = nil
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) worker(job string, interval time.Duration, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", job, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", job)
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			if err := m.RunOnce(ctx, job); err != nil {
				log.Errorf("[JobQueue Manager] %s failed: %v", job, err)
			}
			cancel()
		}
	}
}

// RunOnce runs job immediately. When another instance holds the job's lock
// the run is skipped without error.
func (m *Manager) RunOnce(ctx context.Context, job string) error {
	run, err := m.runner(job)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}

	release, ok, err := m.locker.TryLock(ctx, job, m.timeout)
	if err != nil {
		return fmt.Errorf("lock %s: %w", job, err)
	}
	if !ok {
		log.Debugf("[JobQueue Manager] %s already running elsewhere, skipping", job)
		return nil
	}
	defer release()

	return run(ctx)
}

func (m *Manager) runner(job string) (func(context.Context) error, error) {
	switch job {
	case JobSweep:
		return func(ctx context.Context) error {
			res, err := m.tasks.RunSweep(ctx)
			if len(res.Expired) > 0 || res.SpendRollups > 0 {
				log.Infof("[JobQueue Manager] Sweep expired %d ads, rolled %d daily budgets", len(res.Expired), res.SpendRollups)
			}
			return err
		}, nil
	case JobFraudCleanup:
		return func(ctx context.Context) error {
			n, err := m.tasks.CleanupFraudWindows(ctx)
			if n > 0 {
				log.Debugf("[JobQueue Manager] Pruned %d fraud windows", n)
			}
			return err
		}, nil
	case JobEventArchive:
		if m.archiver == nil || !models.GetAdSettings().IsEventArchiveEnabled() {
			return nil, nil
		}
		return func(ctx context.Context) error {
			days, err := m.archiver.ArchivePending(ctx)
			m.tasks.ObserveJob(JobEventArchive, err)
			for _, d := range days {
				log.Infof("[JobQueue Manager] Archived %d events of %s to %s", d.Events, d.Day, d.Key)
			}
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}
}

func (m *Manager) interval(job string) time.Duration {
	if d := m.intervals[job]; d > 0 {
		return d
	}
	settings := models.GetAdSettings()
	switch job {
	case JobFraudCleanup:
		return settings.GetFraudCleanupInterval()
	case JobEventArchive:
		return time.Hour
	default:
		return settings.GetSweepInterval()
	}
}
