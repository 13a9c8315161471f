package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"docflow/internal/analytics"
	"docflow/internal/api"
	"docflow/internal/config"
	"docflow/internal/emitter"
	"docflow/internal/escalation"
	"docflow/internal/history"
	"docflow/internal/hub"
	"docflow/internal/logging"
	"docflow/internal/notify"
	"docflow/internal/progress"
	"docflow/internal/sla"
)

// Daemon wires the progression engine, escalation cascade, broadcast hub,
// and background sweeps, and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store         *history.Store
	notifications *notify.Store
	sink          *analytics.Sink

	policies sla.PolicyTable
	engine   *progress.Engine
	cascade  *escalation.Cascade
	hub      *hub.Hub
	ws       *hub.WSHandler
	emitter  *emitter.Emitter
	sweeper  *emitter.Sweeper

	scheduler *cron.Cron
	lock      *flock.Flock
	server    *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. The stores share
// one SQLite file; each owns its connection.
func New(cfg *config.Config, store *history.Store, notifications *notify.Store, sink *analytics.Sink, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || notifications == nil || sink == nil {
		return nil, errors.New("daemon requires config, stores, and analytics sink")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	policies := sla.NewPolicyTable(cfg)
	broadcast := hub.New(logger)

	directory := escalation.NewStaticDirectory(cfg.Directory)
	var external []escalation.Channel
	if webhook := escalation.NewWebhookChannel(cfg); webhook != nil {
		external = append(external, webhook)
	}
	if email := escalation.NewEmailChannel(cfg); email != nil {
		external = append(external, email)
	}
	inApp := notify.NewInAppChannel(notifications)

	d := &Daemon{
		cfg:           cfg,
		logger:        logging.WithComponent(logger, "daemon"),
		store:         store,
		notifications: notifications,
		sink:          sink,
		policies:      policies,
		engine:        progress.NewEngine(store, policies, logger),
		cascade:       escalation.NewCascade(store, directory, external, inApp, logger),
		hub:           broadcast,
		ws:            hub.NewWSHandler(broadcast, store, logger),
		emitter:       emitter.New(store, policies, cfg, logger),
		sweeper:       emitter.NewSweeper(sink, broadcast, cfg, logger),
		scheduler:     cron.New(),
		lock:          flock.New(cfg.LockPath()),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the background loops and
// the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.registerJobs(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return err
	}
	d.scheduler.Start()
	go d.sweeper.Run(runCtx)

	if d.server != nil {
		if err := d.server.start(runCtx); err != nil {
			d.scheduler.Stop()
			d.sweeper.Stop()
			_ = d.lock.Unlock()
			cancel()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("docflow daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.String("database", d.cfg.DatabasePath()))
	return nil
}

// Stop halts background processing and releases the lock. Safe to call
// more than once.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.server != nil {
		d.server.stop()
	}
	stopCtx := d.scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	d.sweeper.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.sweeper.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("docflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.notifications != nil {
		errs = append(errs, d.notifications.Close())
	}
	if d.sink != nil {
		errs = append(errs, d.sink.Close())
	}
	return errors.Join(errs...)
}

func (d *Daemon) registerJobs(ctx context.Context) error {
	slaSpec := fmt.Sprintf("@every %ds", d.cfg.Workflow.SLASweepInterval)
	if _, err := d.scheduler.AddFunc(slaSpec, func() { d.sweepSLA(ctx) }); err != nil {
		return fmt.Errorf("schedule sla sweep: %w", err)
	}
	retentionSpec := fmt.Sprintf("@every %ds", d.cfg.Workflow.RetentionSweepInterval)
	if _, err := d.scheduler.AddFunc(retentionSpec, func() { d.purgeNotifications(ctx) }); err != nil {
		return fmt.Errorf("schedule retention purge: %w", err)
	}
	return nil
}

// sweepSLA evaluates every open entry against the policy table, escalates
// fresh breaches, and buffers them for emission. Broadcast to real-time
// clients happens when the analytics drain picks the events up, which
// keeps each breach delivered once per client.
func (d *Daemon) sweepSLA(ctx context.Context) {
	entries, err := d.store.OpenEntries(ctx)
	if err != nil {
		d.logger.Error("sla sweep query failed", logging.Error(err))
		return
	}

	now := time.Now().UTC()
	var fresh []sla.Breach
	for _, entry := range entries {
		breach, ok := sla.BreachFor(*entry, d.policies, now)
		if !ok || entry.EscalationSent {
			continue
		}
		fresh = append(fresh, breach)
	}
	if len(fresh) == 0 {
		return
	}

	summary := d.cascade.Escalate(ctx, fresh)
	for _, breach := range fresh {
		if err := d.sink.Record(ctx, breach, now); err != nil {
			d.logger.Error("buffering breach event failed",
				logging.String(logging.FieldFileID, breach.FileID),
				logging.Error(err))
		}
	}
	d.logger.Info("sla sweep escalated breaches",
		logging.Int("breaches", summary.BreachesProcessed),
		logging.Int("notifications", summary.NotificationsSent))
}

func (d *Daemon) purgeNotifications(ctx context.Context) {
	purged, err := d.notifications.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		d.logger.Error("notification retention purge failed", logging.Error(err))
		return
	}
	if purged > 0 {
		d.logger.Info("expired notifications purged", logging.Int64("count", purged))
	}
}

// CompleteStage runs the progression and its side effects: broadcasting
// the completion and the next assignment, and escalating inline when the
// closed stage breached its threshold.
func (d *Daemon) CompleteStage(ctx context.Context, fileID, workerID, workerName string) (progress.Result, error) {
	result, err := d.engine.CompleteStage(ctx, fileID, workerID, workerName)
	if err != nil {
		return result, err
	}

	d.hub.Broadcast(hub.NewEvent(hub.EventStageCompleted, hub.StageCompleted{
		FileID:          result.FileID,
		Stage:           result.PreviousStage,
		WorkerID:        workerID,
		WorkerName:      workerName,
		DurationMinutes: result.DurationMinutes,
		NextStage:       result.NextStage,
		Delivered:       result.Delivered,
	}))
	if result.Opened != nil {
		d.hub.Broadcast(hub.NewEvent(hub.EventTaskAssigned, hub.TaskAssigned{
			FileID:    result.Opened.FileID,
			Stage:     result.Opened.Stage,
			EnteredAt: result.Opened.EnteredAt,
		}))
	}

	if result.Breach != nil {
		now := time.Now().UTC()
		d.cascade.Escalate(ctx, []sla.Breach{*result.Breach})
		if err := d.sink.Record(ctx, *result.Breach, now); err != nil {
			d.logger.Error("buffering breach event failed",
				logging.String(logging.FieldFileID, fileID),
				logging.Error(err))
		}
	}
	return result, nil
}

// AssignWorker stamps worker identity onto the file's open entry and
// announces the assignment. Called by the external assignment service when
// it picks a worker for a pending stage.
func (d *Daemon) AssignWorker(ctx context.Context, fileID, workerID, workerName string) (*history.Entry, error) {
	open, err := d.store.OpenEntry(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, fmt.Errorf("file %s: %w", fileID, history.ErrNoActiveStage)
	}
	if err := d.store.AssignWorker(ctx, open.ID, workerID, workerName, time.Now().UTC()); err != nil {
		return nil, err
	}
	entry, err := d.store.GetByID(ctx, open.ID)
	if err != nil {
		return nil, err
	}
	d.hub.Broadcast(hub.NewEvent(hub.EventTaskAssigned, hub.TaskAssigned{
		FileID:     entry.FileID,
		Stage:      entry.Stage,
		WorkerID:   entry.WorkerID,
		WorkerName: entry.WorkerName,
		EnteredAt:  entry.EnteredAt,
	}))
	return entry, nil
}

// Reassign moves a file's stage to a new worker and announces the
// assignment.
func (d *Daemon) Reassign(ctx context.Context, fileID string, stage history.Stage, workerID, workerName string) (*history.Entry, error) {
	entry, err := d.engine.Reassign(ctx, fileID, stage, workerID, workerName)
	if err != nil {
		return nil, err
	}
	d.hub.Broadcast(hub.NewEvent(hub.EventTaskAssigned, hub.TaskAssigned{
		FileID:     entry.FileID,
		Stage:      entry.Stage,
		WorkerID:   entry.WorkerID,
		WorkerName: entry.WorkerName,
		EnteredAt:  entry.EnteredAt,
	}))
	return entry, nil
}

// Breaches evaluates all open entries on demand. Pure read; evaluating
// redundantly with the periodic sweep is harmless.
func (d *Daemon) Breaches(ctx context.Context) ([]sla.Breach, error) {
	entries, err := d.store.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var breaches []sla.Breach
	for _, entry := range entries {
		if breach, ok := sla.BreachFor(*entry, d.policies, now); ok {
			breaches = append(breaches, breach)
		}
	}
	return breaches, nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	openByStage := make(map[string]int, len(stats.OpenByStage))
	for stage, count := range stats.OpenByStage {
		openByStage[string(stage)] = count
	}
	return api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DatabasePath:   d.cfg.DatabasePath(),
		LockFilePath:   d.cfg.LockPath(),
		Connections:    d.hub.ConnectionCount(),
		ConnectedUsers: d.hub.ActorCount(),
		OpenByStage:    openByStage,
		Delivered:      stats.Delivered,
		TotalEntries:   stats.Total,
	}, nil
}
