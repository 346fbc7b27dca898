package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"task_reminders/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

// ErrPoison is returned by a consumer handler for a structurally invalid
// message. The message is acknowledged and dropped instead of requeued,
// since retrying cannot make it valid.
var ErrPoison = errors.New("poison message")

// ErrDisabled is returned by Publish while the broker is unreachable.
var ErrDisabled = errors.New("reminder queue disabled")

const (
	group       = "dispatchers"
	bodyField   = "body"
	readBlock   = 5 * time.Second
	retryPause  = time.Second
	backoffBase = time.Second
	backoffMax  = time.Minute
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// Stream is the queue name, e.g. "TaskReminders".
	Stream string
	// RequeueMinIdle is how long an unacknowledged delivery stays pending
	// before it is handed out again.
	RequeueMinIdle time.Duration
	// Consumer names this process inside the consumer group.
	Consumer string
}

// Queue is the durable reminder queue on a Redis stream with a consumer
// group. Publishing appends to the stream; consuming reads one entry at a
// time (prefetch=1) and acknowledges with XACK only after the handler
// reports success, so an unhandled entry stays in the pending list and is
// reclaimed later.
//
// If the broker is unreachable at startup the queue degrades to a disabled
// no-op and a background loop retries the connection with exponential
// backoff; the rest of the process keeps running without reminders.
type Queue struct {
	opts Options

	mu  sync.RWMutex
	rdb *redis.Client
}

func New(ctx context.Context, opts Options) *Queue {
	if opts.Consumer == "" {
		opts.Consumer = "dispatcher-1"
	}
	if opts.RequeueMinIdle <= 0 {
		opts.RequeueMinIdle = 30 * time.Second
	}

	q := &Queue{opts: opts}

	if err := q.connect(ctx); err != nil {
		logger.Warn("reminder queue unavailable, reminders disabled until broker returns",
			"addr", opts.Addr, "error", err)
		go q.reconnectLoop(ctx)
		return q
	}

	logger.Info("reminder queue connected", "addr", opts.Addr, "stream", opts.Stream)
	return q
}

func (q *Queue) connect(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     q.opts.Addr,
		Password: q.opts.Password,
		DB:       q.opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}

	// Declare the durable queue: stream + consumer group, idempotent.
	err := rdb.XGroupCreateMkStream(ctx, q.opts.Stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = rdb.Close()
		return err
	}

	q.mu.Lock()
	q.rdb = rdb
	q.mu.Unlock()
	return nil
}

func (q *Queue) reconnectLoop(ctx context.Context) {
	delay := backoffBase
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := q.connect(ctx); err == nil {
			logger.Info("reminder queue reconnected", "addr", q.opts.Addr, "stream", q.opts.Stream)
			return
		}

		delay *= 2
		if delay > backoffMax {
			delay = backoffMax
		}
		logger.Debug("reminder queue still unreachable", "addr", q.opts.Addr, "next_retry", delay)
	}
}

func (q *Queue) client() *redis.Client {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.rdb
}

// Enabled reports whether the broker connection is up.
func (q *Queue) Enabled() bool {
	return q.client() != nil
}

// Publish appends a message body to the stream. The entry survives process
// restarts for as long as the broker keeps it.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	rdb := q.client()
	if rdb == nil {
		return ErrDisabled
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.opts.Stream,
		Values: map[string]any{bodyField: body},
	}).Err()
}

// Consume pulls messages one at a time and runs handler on each. A nil
// return acknowledges and deletes the entry; ErrPoison does the same but is
// logged as a drop; any other error leaves the entry pending so it is
// redelivered after RequeueMinIdle. Blocks until ctx is cancelled; an
// in-flight handler always runs to completion before the loop exits.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, []byte) error) {
	for {
		if ctx.Err() != nil {
			return
		}

		rdb := q.client()
		if rdb == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryPause):
			}
			continue
		}

		msg, ok := q.next(ctx, rdb)
		if !ok {
			continue
		}

		q.handle(ctx, rdb, msg, handler)
	}
}

// next returns the next delivery: a stale pending entry first (redelivery),
// otherwise a new one.
func (q *Queue) next(ctx context.Context, rdb *redis.Client) (redis.XMessage, bool) {
	claimed, _, err := rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.opts.Stream,
		Group:    group,
		Consumer: q.opts.Consumer,
		MinIdle:  q.opts.RequeueMinIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() == nil {
			logger.Warn("reminder queue claim failed", "error", err)
			q.pause(ctx)
		}
		return redis.XMessage{}, false
	}
	if len(claimed) > 0 {
		logger.Info("reminder message redelivered", "id", claimed[0].ID)
		return claimed[0], true
	}

	streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: q.opts.Consumer,
		Streams:  []string{q.opts.Stream, ">"},
		Count:    1,
		Block:    readBlock,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Warn("reminder queue read failed", "error", err)
			q.pause(ctx)
		}
		return redis.XMessage{}, false
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return redis.XMessage{}, false
	}
	return streams[0].Messages[0], true
}

func (q *Queue) handle(ctx context.Context, rdb *redis.Client, msg redis.XMessage, handler func(context.Context, []byte) error) {
	body, _ := msg.Values[bodyField].(string)

	err := handler(ctx, []byte(body))
	switch {
	case err == nil:
		q.ack(ctx, rdb, msg.ID)
	case errors.Is(err, ErrPoison):
		logger.Warn("dropping poison message from reminder queue", "id", msg.ID, "error", err)
		q.ack(ctx, rdb, msg.ID)
	default:
		// Leave the entry pending; it is redelivered after RequeueMinIdle.
		logger.Warn("reminder handling failed, message requeued", "id", msg.ID, "error", err)
	}
}

func (q *Queue) ack(ctx context.Context, rdb *redis.Client, id string) {
	if err := rdb.XAck(ctx, q.opts.Stream, group, id).Err(); err != nil {
		logger.Warn("reminder queue ack failed", "id", id, "error", err)
		return
	}
	if err := rdb.XDel(ctx, q.opts.Stream, id).Err(); err != nil {
		logger.Warn("reminder queue delete failed", "id", id, "error", err)
	}
}

func (q *Queue) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(retryPause):
	}
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rdb == nil {
		return nil
	}
	err := q.rdb.Close()
	q.rdb = nil
	return err
}
