package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"task_reminders/internal/domain"
	"task_reminders/internal/logger"
	"task_reminders/internal/metrics"
	"task_reminders/internal/queue"
	"task_reminders/internal/registry"
)

// Consumer is the queue side the dispatcher drains.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error)
}

// ConnectionLookup resolves a user's live push-channel connections.
type ConnectionLookup interface {
	Lookup(userID int64) []registry.Pusher
}

// TaskMarker is the task-store write contract: advance a task's notified
// marker, tolerating a concurrently modified or deleted row.
type TaskMarker interface {
	MarkNotified(ctx context.Context, id int64, at time.Time) error
}

// Dispatcher drains the reminder queue and fans each message out to the
// owner's live connections. Per message: a malformed payload is dropped as
// poison; a valid one is pushed to the user's connections (zero connections
// is still terminal success), the task is marked notified, and only then is
// the message acknowledged. A failed store write requeues the message.
//
// The queue delivers one message at a time, so handling is strictly
// sequential per consumer. A single consumer process is assumed; running
// several would need per-task optimistic locking on the notified marker to
// rule out duplicate delivery from racing redeliveries.
type Dispatcher struct {
	queue Consumer
	conns ConnectionLookup
	tasks TaskMarker
}

func New(q Consumer, conns ConnectionLookup, tasks TaskMarker) *Dispatcher {
	return &Dispatcher{queue: q, conns: conns, tasks: tasks}
}

// Run blocks draining the queue until ctx is cancelled. Per-message errors
// never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.Info("notification dispatcher started")
	d.queue.Consume(ctx, d.Handle)
	logger.Info("notification dispatcher stopped")
}

// Handle processes one reminder message body. nil acknowledges,
// queue.ErrPoison acknowledges-and-drops, any other error requeues.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var msg domain.ReminderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		metrics.RemindersHandled.WithLabelValues("poison").Inc()
		return fmt.Errorf("%w: %v", queue.ErrPoison, err)
	}
	if !msg.Valid() {
		metrics.RemindersHandled.WithLabelValues("poison").Inc()
		return fmt.Errorf("%w: missing task or user id", queue.ErrPoison)
	}

	conns := d.conns.Lookup(msg.UserID)
	if len(conns) > 0 {
		payload, err := json.Marshal(domain.Notification{
			Type:      domain.EventTaskNotification,
			TaskID:    msg.TaskID,
			TaskTitle: msg.TaskTitle,
			DueDate:   msg.DueDate,
			Timestamp: msg.Timestamp,
			Message:   fmt.Sprintf("Task '%s' is overdue!", msg.TaskTitle),
		})
		if err != nil {
			return fmt.Errorf("%w: %v", queue.ErrPoison, err)
		}

		// Fire-and-forget: handing the payload to the transport counts as
		// delivered; transport-level failures are not retried here.
		for _, c := range conns {
			c.Push(payload)
		}

		metrics.RemindersHandled.WithLabelValues("pushed").Inc()
		logger.Info("notification pushed",
			"task_id", msg.TaskID, "user_id", msg.UserID, "connections", len(conns))
	} else {
		// No client to deliver to right now; still a terminal success.
		// Requeueing until the user reconnects would only build up a
		// redelivery storm.
		metrics.RemindersHandled.WithLabelValues("no_session").Inc()
		logger.Info("user not connected, notification skipped",
			"task_id", msg.TaskID, "user_id", msg.UserID)
	}

	if err := d.tasks.MarkNotified(ctx, msg.TaskID, time.Now().UTC()); err != nil {
		metrics.RemindersHandled.WithLabelValues("requeued").Inc()
		return fmt.Errorf("mark task %d notified: %w", msg.TaskID, err)
	}

	logger.Info("task marked as notified", "task_id", msg.TaskID)
	return nil
}
