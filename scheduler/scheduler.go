package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"apartments-bot/db"
	"apartments-bot/models"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// Trigger sources recorded with each run
const (
	SourceSchedule = "schedule"
	SourceCommand  = "command"
	SourceStartup  = "startup"
	SourceCLI      = "cli"
	SourceAPI      = "api"
)

// Scraper produces a full set of listings
type Scraper interface {
	Run(ctx context.Context) ([]models.Listing, error)
}

// Store persists the snapshot
type Store interface {
	ReplaceAll(ctx context.Context, listings []models.Listing) error
}

// RunLog records run outcomes. Optional.
type RunLog interface {
	CreateRun(ctx context.Context, source string) (*db.SyncRun, error)
	FinishRun(ctx context.Context, id int64, status db.RunStatus, listingsCount int, runErr error) error
}

// Exporter mirrors each stored snapshot somewhere else. Optional.
type Exporter interface {
	ExportSnapshot(ctx context.Context, listings []models.Listing) error
}

// Result describes one finished run
type Result struct {
	Source    string
	Status    db.RunStatus
	Listings  []models.Listing
	Replaced  bool // the stored snapshot was swapped
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Options configures a Syncer
type Options struct {
	// ReplaceOnEmpty lets a run that found nothing clear the stored snapshot
	ReplaceOnEmpty bool
	Timeout        time.Duration
	RunLog         RunLog
	Exporter       Exporter
}

// Syncer runs scrape-and-replace cycles. At most one cycle is in flight:
// callers arriving during a run wait for it and share its result.
type Syncer struct {
	scraper Scraper
	store   Store
	opts    Options
	logger  *slog.Logger

	group singleflight.Group
	last  atomic.Pointer[Result]

	mu        sync.Mutex
	listeners []func(Result)
	cron      *cron.Cron

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewSyncer creates a new Syncer
func NewSyncer(scraper Scraper, store Store, opts Options, logger *slog.Logger) *Syncer {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		scraper: scraper,
		store:   store,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnResult registers fn to be called after every run
func (s *Syncer) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Last returns the most recent result, or nil before the first run
func (s *Syncer) Last() *Result {
	return s.last.Load()
}

// Sync runs a cycle or joins the one in flight. The cycle itself is bound to
// the Syncer's lifetime, so a caller giving up does not abort a shared run.
func (s *Syncer) Sync(ctx context.Context, source string) (Result, error) {
	ch := s.group.DoChan("sync", func() (any, error) {
		res := s.run(source)
		return res, res.Err
	})

	select {
	case <-ctx.Done():
		return Result{Source: source}, ctx.Err()
	case r := <-ch:
		res := r.Val.(Result)
		if r.Shared && res.Source != source {
			s.logger.Info("joined in-flight sync", "source", source, "running_for", res.Source)
		}
		return res, r.Err
	}
}

func (s *Syncer) run(source string) Result {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()

	res := Result{Source: source, StartedAt: time.Now()}
	s.logger.Info("sync started", "source", source)

	var runID int64
	if s.opts.RunLog != nil {
		run, err := s.opts.RunLog.CreateRun(ctx, source)
		if err != nil {
			s.logger.Warn("failed to record sync run", "err", err)
		} else {
			runID = run.ID
		}
	}

	res.Listings, res.Err = s.scraper.Run(ctx)
	switch {
	case res.Err != nil:
		res.Status = db.RunFailed
		res.Listings = nil
	case len(res.Listings) == 0 && !s.opts.ReplaceOnEmpty:
		// Keep serving the previous snapshot
		res.Status = db.RunEmpty
	default:
		if err := s.store.ReplaceAll(ctx, res.Listings); err != nil {
			res.Status = db.RunFailed
			res.Err = fmt.Errorf("failed to store listings: %w", err)
			break
		}
		res.Replaced = true
		res.Status = db.RunDone
		if len(res.Listings) == 0 {
			res.Status = db.RunEmpty
		}
		s.export(ctx, res.Listings)
	}
	res.Duration = time.Since(res.StartedAt)

	if runID != 0 {
		// Record the outcome even if the run was cancelled
		finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := s.opts.RunLog.FinishRun(finishCtx, runID, res.Status, len(res.Listings), res.Err); err != nil {
			s.logger.Warn("failed to record sync outcome", "run_id", runID, "err", err)
		}
		finishCancel()
	}

	if res.Err != nil {
		s.logger.Error("sync failed", "source", source, "err", res.Err, "elapsed", res.Duration)
	} else {
		s.logger.Info("sync finished", "source", source, "status", res.Status,
			"listings", len(res.Listings), "replaced", res.Replaced, "elapsed", res.Duration)
	}

	s.last.Store(&res)
	s.notify(res)
	return res
}

func (s *Syncer) export(ctx context.Context, listings []models.Listing) {
	if s.opts.Exporter == nil {
		return
	}
	if err := s.opts.Exporter.ExportSnapshot(ctx, listings); err != nil {
		s.logger.Warn("failed to export snapshot", "err", err)
	}
}

func (s *Syncer) notify(res Result) {
	s.mu.Lock()
	listeners := append([]func(Result){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
}

// Start schedules runs on the cron spec (standard five fields)
func (s *Syncer) Start(spec string) error {
	c := cron.New(cron.WithLogger(cronLogger{logger: s.logger}))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sync(s.ctx, SourceSchedule); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("scheduled sync ended with error", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("scheduler started", "cron", spec)
	return nil
}

// Stop cancels any run in flight and waits for scheduled jobs to return
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		c := s.cron
		s.mu.Unlock()
		if c != nil {
			<-c.Stop().Done()
		}
		s.logger.Info("scheduler stopped")
	})
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
