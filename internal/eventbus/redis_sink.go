package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink mirrors events into a Redis stream for consumers outside
// this process. Writes are queued and flushed by Run in publish order; when
// the queue is full the event is dropped from the mirror only.
type RedisStreamSink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	queue  chan *Event
}

func NewRedisStreamSink(rdb *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{
		rdb:    rdb,
		stream: stream,
		maxLen: maxLen,
		queue:  make(chan *Event, 1024),
	}
}

func (s *RedisStreamSink) Write(e *Event) {
	select {
	case s.queue <- e:
	default:
		slog.Warn("redis event mirror queue full, dropping", "seq", e.Seq, "type", e.Type)
	}
}

func (s *RedisStreamSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			if err := s.xadd(ctx, e); err != nil {
				slog.ErrorContext(ctx, "failed to mirror event to redis", "seq", e.Seq, "stream", s.stream, "error", err)
			}
		}
	}
}

func (s *RedisStreamSink) xadd(ctx context.Context, e *Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":        e.ID,
			"seq":       strconv.FormatUint(e.Seq, 10),
			"type":      e.Type,
			"category":  string(e.Category),
			"agent_id":  e.AgentID,
			"thread_id": e.ThreadID,
			"task_id":   e.TaskID,
			"ts":        e.Timestamp.UnixMilli(),
			"data":      string(data),
		},
	}).Err()
}
