package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/orchestrate/jarvis/internal/archive"
	"github.com/orchestrate/jarvis/internal/config"
	"github.com/orchestrate/jarvis/internal/guard"
	"github.com/orchestrate/jarvis/internal/health"
	"github.com/orchestrate/jarvis/internal/notify"
	"github.com/orchestrate/jarvis/internal/queue"
	"github.com/orchestrate/jarvis/internal/store"
	"github.com/orchestrate/jarvis/internal/telemetry"
)

// App holds everything an action needs, built once per invocation from the
// resolved root.
type App struct {
	Root   string
	Config *config.Config
	Paths  config.Paths

	Queue    store.QueueStore
	Manager  *queue.Manager
	Archiver *archive.Archiver
	Auditor  *health.Auditor
	Gate     *guard.Gate
	Ledger   *telemetry.Ledger // nil when disabled or unavailable
	Notifier notify.Notifier

	Log *log.Logger
}

// openApp loads configuration for root and opens the stores. With readOnly
// set, stores that do not exist yet are not created: a missing bolt
// database reads as an empty queue and a missing ledger stays disabled.
func openApp(ctx context.Context, root string, readOnly bool) (*App, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	paths := config.NewPaths(root, cfg)

	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.New(os.Stderr, "orchestrate: ", log.LstdFlags)
	}
	warn := log.New(os.Stderr, "orchestrate: ", 0)

	app := &App{
		Root:     root,
		Config:   cfg,
		Paths:    paths,
		Gate:     guard.New(root),
		Notifier: notify.Nop{},
		Log:      logger,
	}

	timeout := cfg.Store.LockTimeout
	switch cfg.Store.Backend {
	case config.BackendBolt:
		if readOnly && !fileExists(paths.Bolt) {
			app.Queue = store.EmptyQueue{}
			break
		}
		q, err := store.NewBoltQueue(paths.Bolt, timeout)
		if err != nil {
			return nil, err
		}
		app.Queue = q
	default:
		app.Queue = store.NewJSONQueue(paths.Queue, timeout)
	}

	if paths.Ledger != "" && (!readOnly || fileExists(paths.Ledger)) {
		ledger, err := telemetry.OpenLedger(paths.Ledger)
		if err != nil {
			warn.Printf("warning: telemetry ledger disabled: %v", err)
		} else {
			app.Ledger = ledger
		}
	}

	if cfg.Notify.RedisAddr != "" {
		n, err := notify.NewRedis(ctx, cfg.Notify.RedisAddr, cfg.Notify.RedisPassword, cfg.Notify.RedisDB, cfg.Notify.Channel)
		if err != nil {
			warn.Printf("warning: notifications disabled: %v", err)
		} else {
			app.Notifier = n
		}
	}

	archiveStore := store.NewJSONFile(paths.Archive, store.NewTaskArchiveDoc, timeout)
	memory := store.NewJSONFile(paths.WorkingMemory, store.NewWorkingMemoryDoc, timeout)

	qopts := queue.Options{
		Queue:         app.Queue,
		Archive:       archiveStore,
		WorkingMemory: memory,
		MarkerPath:    paths.Marker,
		SideChannel:   telemetry.NewSideChannel(paths.TelemetrySlot, paths.TelemetryDir),
		Notifier:      app.Notifier,
		Logger:        warn,
	}
	if app.Ledger != nil {
		qopts.Ledger = app.Ledger
	}
	app.Manager = queue.New(qopts)

	app.Archiver = archive.New(archive.Options{
		Queue:               app.Queue,
		Archive:             archiveStore,
		ThreadLog:           store.NewJSONFile(paths.ThreadLog, store.NewThreadLogDoc, timeout),
		WorkingMemory:       memory,
		LogArchive:          store.NewJSONFile(paths.LogArchive, store.NewLogArchiveDoc, timeout),
		ExecutionLog:        store.NewJSONFile(paths.ExecutionLog, store.NewExecutionLogDoc, timeout),
		ExecutionArchiveDir: paths.ExecutionArchive,
		LogRetentionDays:    cfg.Retention.LogDays,
		Notifier:            app.Notifier,
		Logger:              logger,
	})

	app.Auditor = health.New(health.Options{
		Queue:      app.Queue,
		Recent:     app.Manager,
		MarkerPath: paths.Marker,
		Processes:  cfg.Health.Processes,
		StaleAfter: cfg.Health.StaleMarker,
	})

	return app, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Close releases the stores
func (a *App) Close() error {
	var firstErr error
	if err := a.Queue.Close(); err != nil {
		firstErr = err
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Notifier.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
