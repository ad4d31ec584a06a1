// Package schedule implements the recurring job engine that drives
// reasoning cycles and lightweight action handlers on cron/interval/once
// schedules, with concurrency caps and restart recovery.
//
// Grounded on internal/tasks/scheduler.go's three-loop shape (poll/acquire/
// cleanup), robfig/cron-based next-run computation, and semaphore-bounded
// concurrent execution — adapted from a generic task executor into the
// schedule/JobHistory domain with the spec's specific restart-recovery and
// staggering rules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/agentrun/agentrun/pkg/models"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ActionResult is what an ActionHandler returns on success.
type ActionResult struct {
	Summary    string
	TokensUsed int
	Provider   string
	Model      string
	OutputData map[string]any
	// Notify, if non-empty, asks the scheduler to dispatch the result to
	// the agent's master contact as a dashboard/master notification.
	Notify bool
}

// ActionHandler executes one schedule firing. Most delegate into the
// reasoning loop with a synthetic trigger context; a few (health_summary,
// check_messages, review_tasks) are read-only aggregations handled
// in-process.
type ActionHandler func(ctx context.Context, sched models.AgenticSchedule) (ActionResult, error)

// Notifier dispatches a dashboard/master notification for a completed or
// failed job; best-effort, failures are logged and swallowed.
type Notifier interface {
	NotifyJobResult(ctx context.Context, agentID string, job models.JobHistory) error
}

// Config tunes scheduler timing and concurrency.
type Config struct {
	CheckInterval     time.Duration // default 60s
	FirstTickDelay    time.Duration // default 5s
	MaxConcurrentJobs int           // default 5
	JobTimeout        time.Duration // SCHEDULER_JOB_TIMEOUT_MS, default 5m
	SemaphoreWait     time.Duration // max wait to acquire AI-concurrency semaphore, default 30s
	StaggerInterval   time.Duration // default 30s
	Logger            *slog.Logger
	Now               func() time.Time
}

func (c *Config) setDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.FirstTickDelay <= 0 {
		c.FirstTickDelay = 5 * time.Second
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 5
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.SemaphoreWait <= 0 {
		c.SemaphoreWait = 30 * time.Second
	}
	if c.StaggerInterval <= 0 {
		c.StaggerInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "scheduler")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Scheduler drives AgenticSchedule rows.
type Scheduler struct {
	store    Store
	handlers map[string]ActionHandler
	notifier Notifier
	cfg      Config
	aiSem    chan struct{}

	mu          sync.Mutex
	runningJobs map[string]struct{} // schedule ID -> in flight

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Scheduler with the given action-handler registry.
func New(store Store, handlers map[string]ActionHandler, notifier Notifier, cfg Config) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		store:       store,
		handlers:    handlers,
		notifier:    notifier,
		cfg:         cfg,
		aiSem:       make(chan struct{}, cfg.MaxConcurrentJobs),
		runningJobs: make(map[string]struct{}),
	}
}

// Start performs restart recovery, then launches the periodic tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.recoverOnStart(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.cfg.FirstTickDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.checkDueJobs(ctx)

		ticker := time.NewTicker(s.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkDueJobs(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// recoverOnStart implements the three best-effort restart-recovery steps.
func (s *Scheduler) recoverOnStart(ctx context.Context) {
	now := s.cfg.Now()

	schedules, err := s.store.ActiveSchedules(ctx)
	if err != nil {
		s.cfg.Logger.Error("recovery: failed to list active schedules", "error", err)
		return
	}

	// 1. Backfill next_run_at for active interval schedules where null.
	for i := range schedules {
		sch := &schedules[i]
		if sch.Type == models.ScheduleInterval && sch.NextRunAt == nil {
			next := now.Add(time.Duration(sch.IntervalMinutes) * time.Minute)
			sch.NextRunAt = &next
			if err := s.store.UpdateSchedule(ctx, *sch); err != nil {
				s.cfg.Logger.Error("recovery: failed to backfill next_run_at", "schedule_id", sch.ID, "error", err)
			}
		}
	}

	// 2. Rewrite job_history rows stuck in running to failed.
	stuck, err := s.store.RunningJobHistoryByStatus(ctx, models.JobRunning)
	if err != nil {
		s.cfg.Logger.Error("recovery: failed to list running jobs", "error", err)
	}
	for _, job := range stuck {
		job.Status = models.JobFailed
		job.ErrorMessage = "Server restarted while job was running"
		completed := now
		job.CompletedAt = &completed
		if err := s.store.UpdateJobHistory(ctx, job); err != nil {
			s.cfg.Logger.Error("recovery: failed to mark stuck job failed", "job_id", job.ID, "error", err)
		}
	}

	// 3. Stagger past-due active schedules by 30s increments, ascending by next_run_at.
	var pastDue []models.AgenticSchedule
	for _, sch := range schedules {
		if sch.IsActive && sch.NextRunAt != nil && !sch.NextRunAt.After(now) {
			pastDue = append(pastDue, sch)
		}
	}
	sort.Slice(pastDue, func(i, j int) bool { return pastDue[i].NextRunAt.Before(*pastDue[j].NextRunAt) })
	for i, sch := range pastDue {
		next := now.Add(time.Duration(i) * s.cfg.StaggerInterval)
		sch.NextRunAt = &next
		if err := s.store.UpdateSchedule(ctx, sch); err != nil {
			s.cfg.Logger.Error("recovery: failed to stagger schedule", "schedule_id", sch.ID, "error", err)
		}
	}
}

// checkDueJobs selects due, active schedules up to remaining capacity and
// launches each without awaiting completion.
func (s *Scheduler) checkDueJobs(ctx context.Context) {
	now := s.cfg.Now()

	s.mu.Lock()
	capacity := s.cfg.MaxConcurrentJobs - len(s.runningJobs)
	s.mu.Unlock()
	if capacity <= 0 {
		return
	}

	schedules, err := s.store.ActiveSchedules(ctx)
	if err != nil {
		s.cfg.Logger.Error("failed to list active schedules", "error", err)
		return
	}

	var due []models.AgenticSchedule
	for _, sch := range schedules {
		if !sch.IsActive || sch.NextRunAt == nil || sch.NextRunAt.After(now) {
			continue
		}
		status, err := s.store.AgentStatus(ctx, sch.AgentID)
		if err != nil || (status != AgentActive && status != AgentRunning) {
			continue
		}
		s.mu.Lock()
		_, inFlight := s.runningJobs[sch.ID]
		s.mu.Unlock()
		if inFlight {
			continue
		}
		due = append(due, sch)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })

	if len(due) > capacity {
		due = due[:capacity]
	}

	for _, sch := range due {
		s.mu.Lock()
		s.runningJobs[sch.ID] = struct{}{}
		s.mu.Unlock()

		sch := sch
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.runningJobs, sch.ID)
				s.mu.Unlock()
			}()
			s.executeJob(ctx, sch)
		}()
	}
}

// executeJob runs one schedule firing end to end: job-history bookkeeping,
// AI-concurrency semaphore, hard timeout race, next-run recomputation.
func (s *Scheduler) executeJob(ctx context.Context, sch models.AgenticSchedule) {
	now := s.cfg.Now()
	job := models.JobHistory{
		ID:          uuid.NewString(),
		ScheduleID:  sch.ID,
		AgentID:     sch.AgentID,
		ActionType:  sch.ActionType,
		ScheduledAt: now,
		StartedAt:   &now,
		Status:      models.JobRunning,
	}
	job, err := s.store.CreateJobHistory(ctx, job)
	if err != nil {
		s.cfg.Logger.Error("failed to create job history row", "schedule_id", sch.ID, "error", err)
		return
	}

	semCtx, semCancel := context.WithTimeout(ctx, s.cfg.SemaphoreWait)
	defer semCancel()
	select {
	case s.aiSem <- struct{}{}:
		defer func() { <-s.aiSem }()
	case <-semCtx.Done():
		s.finishJob(ctx, job, ActionResult{}, fmt.Errorf("timed out waiting for AI concurrency slot"))
		s.recomputeNextRun(ctx, sch)
		return
	}

	handler, ok := s.handlers[sch.ActionType]
	if !ok {
		s.finishJob(ctx, job, ActionResult{}, fmt.Errorf("no handler registered for action_type %q", sch.ActionType))
		s.recomputeNextRun(ctx, sch)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	type outcome struct {
		res ActionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := handler(runCtx, sch)
		done <- outcome{res, err}
	}()

	var result ActionResult
	var runErr error
	select {
	case o := <-done:
		result, runErr = o.res, o.err
	case <-runCtx.Done():
		runErr = fmt.Errorf("job exceeded hard timeout")
	}

	s.finishJob(ctx, job, result, runErr)
	s.recomputeNextRun(ctx, sch)

	if result.Notify && s.notifier != nil {
		finalJob := job
		if runErr == nil {
			finalJob.Status = models.JobSucceeded
		} else {
			finalJob.Status = models.JobFailed
		}
		_ = s.notifier.NotifyJobResult(ctx, sch.AgentID, finalJob)
	}
}

func (s *Scheduler) finishJob(ctx context.Context, job models.JobHistory, result ActionResult, runErr error) {
	now := s.cfg.Now()
	job.CompletedAt = &now
	if job.StartedAt != nil {
		job.DurationMs = now.Sub(*job.StartedAt).Milliseconds()
	}
	if runErr != nil {
		job.Status = models.JobFailed
		job.ErrorMessage = runErr.Error()
	} else {
		job.Status = models.JobSucceeded
		job.ResultSummary = result.Summary
		job.TokensUsed = result.TokensUsed
		job.Provider = result.Provider
		job.Model = result.Model
		job.OutputData = result.OutputData
	}
	if err := s.store.UpdateJobHistory(ctx, job); err != nil {
		s.cfg.Logger.Error("failed to finalize job history", "job_id", job.ID, "error", err)
	}
}

func (s *Scheduler) recomputeNextRun(ctx context.Context, sch models.AgenticSchedule) {
	now := s.cfg.Now()
	next, err := NextRun(sch, now)
	if err != nil {
		s.cfg.Logger.Error("failed to compute next run", "schedule_id", sch.ID, "error", err)
		return
	}
	sch.LastRunAt = &now
	sch.NextRunAt = next
	if sch.Type == models.ScheduleOnce {
		sch.IsActive = false
	}
	if err := s.store.UpdateSchedule(ctx, sch); err != nil {
		s.cfg.Logger.Error("failed to update schedule after run", "schedule_id", sch.ID, "error", err)
	}
}

// NextRun computes the next firing time for a schedule: cron schedules
// fire from now via the standard 5-field cron expression; interval
// schedules fire now+interval; once/event schedules have no further runs.
func NextRun(sch models.AgenticSchedule, after time.Time) (*time.Time, error) {
	switch sch.Type {
	case models.ScheduleCron:
		parsed, err := cronParser.Parse(sch.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression: %w", err)
		}
		next := parsed.Next(after)
		return &next, nil
	case models.ScheduleInterval:
		next := after.Add(time.Duration(sch.IntervalMinutes) * time.Minute)
		return &next, nil
	case models.ScheduleOnce, models.ScheduleEvent:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown schedule type %q", sch.Type)
	}
}
