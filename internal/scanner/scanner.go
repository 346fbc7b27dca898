package scanner

import (
	"context"
	"encoding/json"
	"time"

	"task_reminders/internal/config"
	"task_reminders/internal/domain"
	"task_reminders/internal/logger"
	"task_reminders/internal/metrics"
)

// TaskSource is the task-store read contract the scanner consumes.
type TaskSource interface {
	ListDueForReminder(ctx context.Context, now time.Time, policy config.NotifyPolicy, interval time.Duration) ([]*domain.Task, error)
}

// Publisher enqueues serialized reminder messages.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Enabled() bool
}

// Scanner polls the task store on a fixed interval and enqueues a reminder
// for every task that crossed the overdue threshold and has not been
// notified for the current episode. It never writes to the store itself;
// marking happens downstream after delivery.
type Scanner struct {
	tasks    TaskSource
	pub      Publisher
	interval time.Duration
	policy   config.NotifyPolicy
}

func New(tasks TaskSource, pub Publisher, interval time.Duration, policy config.NotifyPolicy) *Scanner {
	return &Scanner{tasks: tasks, pub: pub, interval: interval, policy: policy}
}

// Run executes one cycle immediately and then on every tick until ctx is
// cancelled. A failed cycle is logged and skipped; the next tick retries.
func (s *Scanner) Run(ctx context.Context) {
	logger.Info("overdue scanner started", "interval", s.interval, "policy", s.policy)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("overdue scanner stopped")
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle runs a single scan pass.
func (s *Scanner) Cycle(ctx context.Context) {
	if !s.pub.Enabled() {
		logger.Warn("reminder queue disabled, skipping scan cycle")
		return
	}

	now := time.Now().UTC()
	tasks, err := s.tasks.ListDueForReminder(ctx, now, s.policy, s.interval)
	if err != nil {
		logger.Error("overdue scan failed", "error", err)
		return
	}
	if len(tasks) == 0 {
		logger.Debug("no tasks due for reminder", "at", now)
		return
	}

	logger.Info("found tasks due for reminder", "count", len(tasks), "at", now)

	for _, t := range tasks {
		msg := domain.ReminderMessage{
			TaskID:    t.ID,
			UserID:    t.OwnerID,
			TaskTitle: t.Title,
			DueDate:   t.DueDate.UTC(),
			Timestamp: time.Now().UTC(),
		}

		body, err := json.Marshal(msg)
		if err != nil {
			logger.Error("failed to serialize reminder", "task_id", t.ID, "error", err)
			continue
		}

		// A publish failure leaves the task unmarked, so the next cycle
		// retries it naturally.
		if err := s.pub.Publish(ctx, body); err != nil {
			logger.Error("failed to publish reminder", "task_id", t.ID, "error", err)
			continue
		}

		metrics.RemindersEnqueued.Inc()
		logger.Info("published reminder", "task_id", t.ID, "user_id", t.OwnerID, "due_date", t.DueDate)
	}
}
