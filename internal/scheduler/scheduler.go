// Package scheduler runs the tariff sync and snapshot export on cron
// cadences. Each task runs once immediately when started, then on schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
)

// ErrStopped is returned when starting a task after StopAll.
var ErrStopped = eris.New("scheduler: stopped")

// DefaultTaskTimeout bounds a single task invocation.
const DefaultTaskTimeout = 10 * time.Minute

// Runner performs the work behind each task.
type Runner interface {
	FetchAndPersist(ctx context.Context, date string) (int64, error)
	ExportSnapshot(ctx context.Context, dests []model.SheetDestination) (*export.Report, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the timezone for cron expressions and for "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithTaskTimeout bounds each invocation.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source used to compute the sync date.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler owns the cron instance and the handles of its registered tasks.
type Scheduler struct {
	runner  Runner
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	stopped  bool
	cronDone context.Context

	// immediate runs started outside cron
	inflight sync.WaitGroup
}

// New creates a Scheduler. Nothing runs until a task is started.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		loc:     time.UTC,
		timeout: DefaultTaskTimeout,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
	}
	for _, o := range opts {
		o(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: zap.L().Sugar().With("component", "cron")}),
	)
	return s
}

// StartTariffSync registers the tariff sync on expr and runs it once now.
// The returned channel is closed when the first invocation completes,
// whether it succeeded or not.
func (s *Scheduler) StartTariffSync(expr string) (<-chan struct{}, error) {
	done := make(chan struct{})
	var once sync.Once
	job := func() {
		s.invoke(model.TaskTariffSync, s.RunTariffSync)
		once.Do(func() { close(done) })
	}
	if err := s.schedule(model.TaskTariffSync, expr, job); err != nil {
		return nil, err
	}
	return done, nil
}

// StartSheetsSync registers the snapshot export on expr and runs it once now.
func (s *Scheduler) StartSheetsSync(dests []model.SheetDestination, expr string) error {
	job := func() {
		s.invoke(model.TaskSheetsExport, func(ctx context.Context) error {
			return s.RunSheetsSync(ctx, dests)
		})
	}
	return s.schedule(model.TaskSheetsExport, expr, job)
}

// StartSheetsSyncAfter blocks until ready is closed, then starts the
// snapshot export. It returns ctx's error if ctx ends first.
func (s *Scheduler) StartSheetsSyncAfter(ctx context.Context, ready <-chan struct{}, dests []model.SheetDestination, expr string) error {
	select {
	case <-ready:
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler: waiting for first tariff sync")
	}
	zap.L().Info("scheduler: first tariff sync finished, starting sheets sync")
	return s.StartSheetsSync(dests, expr)
}

func (s *Scheduler) schedule(task, expr string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	id, err := s.cron.AddFunc(expr, job)
	if err != nil {
		return model.Errorf(model.KindConfiguration, "scheduler: "+task, "invalid cron expression %q: %v", expr, err)
	}
	if old, ok := s.entries[task]; ok {
		s.cron.Remove(old)
	}
	s.entries[task] = id
	s.cron.Start()

	zap.L().Info("scheduler: task registered",
		zap.String("task", task),
		zap.String("cron", expr),
		zap.String("timezone", s.loc.String()),
	)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		job()
	}()
	return nil
}

// invoke runs fn with its own timeout, logs the outcome and never panics.
func (s *Scheduler) invoke(task string, fn func(ctx context.Context) error) {
	log := zap.L().With(
		zap.String("component", "scheduler"),
		zap.String("task", task),
		zap.String("run_id", uuid.NewString()),
	)
	start := time.Now()
	log.Info("scheduler: task started")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := safeCall(ctx, fn)
	metrics.ObserveTask(task, start, err)
	if err != nil {
		log.Error("scheduler: task failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Info("scheduler: task complete", zap.Duration("elapsed", time.Since(start)))
}

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scheduler: panic: %v", r)
		}
	}()
	return fn(ctx)
}

// RunTariffSync fetches and persists today's tariffs in the scheduler's
// timezone.
func (s *Scheduler) RunTariffSync(ctx context.Context) error {
	date := model.Today(s.now(), s.loc)
	n, err := s.runner.FetchAndPersist(ctx, date)
	if err != nil {
		return err
	}
	zap.L().Info("scheduler: tariffs synced", zap.String("date", date), zap.Int64("rows", n))
	return nil
}

// RunSheetsSync exports the snapshot to dests. Per-destination failures are
// logged and do not fail the invocation.
func (s *Scheduler) RunSheetsSync(ctx context.Context, dests []model.SheetDestination) error {
	report, err := s.runner.ExportSnapshot(ctx, dests)
	if err != nil {
		return err
	}
	if failed := report.Failed(); failed > 0 {
		zap.L().Warn("scheduler: some destinations failed",
			zap.Int("failed", failed),
			zap.Int("succeeded", report.Succeeded()),
		)
	}
	return nil
}

// StopAll stops future ticks and drops every task handle. In-flight
// invocations keep running. Safe to call more than once.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for task, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, task)
	}
	s.cronDone = s.cron.Stop()
	zap.L().Info("scheduler: all tasks stopped")
}

// Wait blocks until in-flight invocations finish or ctx ends. Cron-fired
// invocations are only tracked after StopAll.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	cronDone := s.cronDone
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		if cronDone != nil {
			<-cronDone.Done()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler: wait")
	}
}

// Tasks returns the names of registered tasks.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for task := range s.entries {
		out = append(out, task)
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
