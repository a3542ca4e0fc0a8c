// Package scheduler runs periodic background jobs, such as price cache
// warm-up, on clock-aligned schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// JobFunc is the function signature for scheduled jobs
type JobFunc func(ctx context.Context) error

// ErrEmptySchedule is returned when a job is created without a schedule.
var ErrEmptySchedule = errors.New("schedule is empty")

// cronPattern matches cron expressions (5 or 6 fields)
var cronPattern = regexp.MustCompile(`^(\S+\s+){4,5}\S+$`)

// Config holds scheduler configuration
type Config struct {
	Name           string         // Job name used in logs
	Schedule       string         // Duration (e.g., "5m") or cron expression (e.g., "*/5 * * * *")
	Timezone       *time.Location // Timezone for cron expressions (default: UTC)
	RunImmediately bool           // Execute once on Start
	Timeout        time.Duration  // Per-run deadline; zero means none
	Logger         *slog.Logger
	Clock          clockwork.Clock
}

// RunStatus describes the last completed run.
type RunStatus struct {
	At       time.Time
	Duration time.Duration
	Err      error
}

// Scheduler wraps gocron v2 around a single job. Runs never overlap.
type Scheduler struct {
	gocronScheduler gocron.Scheduler
	job             gocron.Job
	cfg             Config
	cron            string

	mu   sync.RWMutex
	last RunStatus
}

// NewScheduler creates a scheduler for jobFunc. ctx bounds every run.
func NewScheduler(ctx context.Context, cfg Config, jobFunc JobFunc) (*Scheduler, error) {
	if cfg.Schedule == "" {
		return nil, ErrEmptySchedule
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Name == "" {
		cfg.Name = "job"
	}

	cronExpr, withSeconds, err := toCron(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{cfg: cfg, cron: cronExpr}
	logger := cfg.Logger.With("job", cfg.Name)

	gocronScheduler, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Timezone),
		gocron.WithClock(cfg.Clock),
		gocron.WithLogger(newGocronLoggerAdapter(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.gocronScheduler = gocronScheduler

	logger.Info("Scheduling job", "schedule", cfg.Schedule, "cron", cronExpr, "timezone", cfg.Timezone.String())

	s.job, err = gocronScheduler.NewJob(
		gocron.CronJob(cronExpr, withSeconds),
		gocron.NewTask(func() { s.run(ctx, logger, jobFunc) }),
		gocron.WithName(cfg.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = gocronScheduler.Shutdown()
		return nil, fmt.Errorf("failed to create scheduled job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) run(ctx context.Context, logger *slog.Logger, jobFunc JobFunc) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := s.cfg.Clock.Now()
	err := jobFunc(ctx)
	status := RunStatus{At: start, Duration: s.cfg.Clock.Since(start), Err: err}

	s.mu.Lock()
	s.last = status
	s.mu.Unlock()

	if err != nil {
		logger.Error("Job execution failed", "error", err, "duration", status.Duration)
		return
	}
	logger.Debug("Job executed", "duration", status.Duration)
}

// Start begins the scheduler
func (s *Scheduler) Start() error {
	s.gocronScheduler.Start()

	if s.cfg.RunImmediately {
		if err := s.job.RunNow(); err != nil {
			s.cfg.Logger.Error("Immediate execution failed", "job", s.cfg.Name, "error", err)
		}
	}

	if nextRun, err := s.NextRun(); err == nil {
		s.cfg.Logger.Info("Scheduler started", "job", s.cfg.Name, "cron", s.cron, "next_run", nextRun.Format(time.RFC3339))
	} else {
		s.cfg.Logger.Info("Scheduler started", "job", s.cfg.Name, "cron", s.cron)
	}
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() error {
	s.cfg.Logger.Info("Stopping scheduler", "job", s.cfg.Name)
	return s.gocronScheduler.Shutdown()
}

// NextRun returns the next scheduled run time
func (s *Scheduler) NextRun() (time.Time, error) {
	nextRun, err := s.job.NextRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get next run: %w", err)
	}
	return nextRun, nil
}

// LastStatus returns the outcome of the last completed run. The zero value
// means the job has not run yet.
func (s *Scheduler) LastStatus() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// ExpectedInterval is the nominal gap between runs. Irregular cron
// expressions fall back to the gap between the next two runs.
func (s *Scheduler) ExpectedInterval() time.Duration {
	if d, err := time.ParseDuration(s.cfg.Schedule); err == nil {
		return d
	}
	runs, err := s.job.NextRuns(2)
	if err == nil && len(runs) == 2 {
		return runs[1].Sub(runs[0])
	}
	return 5 * time.Minute
}

// isCronExpression checks if a string is a cron expression (vs duration)
func isCronExpression(s string) bool {
	return cronPattern.MatchString(s)
}

// toCron returns the cron form of a schedule and whether it has a seconds field.
func toCron(schedule string) (string, bool, error) {
	if isCronExpression(schedule) {
		return schedule, len(strings.Fields(schedule)) == 6, nil
	}
	expr, err := durationToCron(schedule)
	if err != nil {
		return "", false, fmt.Errorf("invalid schedule: %w", err)
	}
	return expr, strings.Count(expr, " ") == 5, nil
}

// durationToCron converts a duration to a clock-aligned cron expression.
// The unit must divide its parent evenly: "5m" -> "*/5 * * * *",
// "1h" -> "0 */1 * * *", "30s" -> "*/30 * * * * *".
func durationToCron(durationStr string) (string, error) {
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return "", fmt.Errorf("invalid duration format: %w", err)
	}

	switch {
	case d <= 0:
		return "", fmt.Errorf("duration must be positive (got %s)", durationStr)
	case d < time.Minute:
		if d%time.Second != 0 {
			return "", fmt.Errorf("duration must be whole seconds (got %s)", durationStr)
		}
		n := int(d / time.Second)
		if 60%n != 0 {
			return "", fmt.Errorf("second intervals must divide evenly into 60 (got %ds)", n)
		}
		return fmt.Sprintf("*/%d * * * * *", n), nil
	case d < time.Hour:
		if d%time.Minute != 0 {
			return "", fmt.Errorf("duration must be whole minutes (got %s)", durationStr)
		}
		n := int(d / time.Minute)
		if 60%n != 0 {
			return "", fmt.Errorf("minute intervals must divide evenly into 60 (got %dm)", n)
		}
		return fmt.Sprintf("*/%d * * * *", n), nil
	case d%time.Hour == 0:
		n := int(d / time.Hour)
		if 24%n != 0 {
			return "", fmt.Errorf("hour intervals must divide evenly into 24 (got %dh)", n)
		}
		return fmt.Sprintf("0 */%d * * *", n), nil
	default:
		return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
	}
}

// ValidateSchedule validates a schedule (duration or cron). Empty disables the job.
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if isCronExpression(schedule) {
		cron := gocron.NewDefaultCron(len(strings.Fields(schedule)) == 6)
		if err := cron.IsValid(schedule, time.UTC, time.Now()); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		return nil
	}
	_, err := durationToCron(schedule)
	return err
}

// DescribeSchedule provides a human-readable description of the schedule
func DescribeSchedule(schedule string, timezone *time.Location) string {
	if timezone == nil {
		timezone = time.UTC
	}

	if schedule == "" {
		return "disabled"
	}
	if isCronExpression(schedule) {
		return fmt.Sprintf("cron: %s (%s)", schedule, timezone.String())
	}

	d, err := time.ParseDuration(schedule)
	if err != nil {
		return fmt.Sprintf("invalid: %s", schedule)
	}
	cronExpr, err := durationToCron(schedule)
	if err != nil {
		return fmt.Sprintf("duration: %s (non-aligned)", schedule)
	}
	return fmt.Sprintf("every %s (aligned to clock, cron: %s, %s)", d, cronExpr, timezone.String())
}

// gocronLoggerAdapter adapts slog.Logger to gocron.Logger interface
type gocronLoggerAdapter struct {
	logger *slog.Logger
}

func newGocronLoggerAdapter(logger *slog.Logger) gocron.Logger {
	return &gocronLoggerAdapter{logger: logger}
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *gocronLoggerAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *gocronLoggerAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *gocronLoggerAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
