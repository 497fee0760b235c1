package intent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "Agentica/internal/errors"
	"Agentica/pkg/logger"
)

const (
	defaultRedisQueue = "agentica:intents"
	defaultBlockWait  = 5 * time.Second
)

// RedisQueue 使用 Redis list 实现对账队列，LPUSH 入队，BRPOP 出队。
type RedisQueue struct {
	client *goredis.Client
	queue  string
	wait   time.Duration
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue 基于已连接的客户端创建队列。
func NewRedisQueue(client *goredis.Client, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = defaultRedisQueue
	}
	if wait <= 0 {
		wait = defaultBlockWait
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}
}

// Publish 投递房间 ID。
func (q *RedisQueue) Publish(ctx context.Context, roomID string) error {
	if err := q.client.LPush(ctx, q.queue, roomID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 投递对账任务失败")
	}
	return nil
}

// Consume 通过 BRPOP 消费，处理失败时重新入队。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if stdErrors.Is(err, goredis.Nil) {
						continue
					}
					if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, goredis.ErrClosed) {
						errCh <- err
						return
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 获取对账任务失败")
					return
				}
				if len(values) != 2 {
					continue
				}
				roomID := values[1]
				if handlerErr := handler(ctx, roomID); handlerErr != nil {
					if pushErr := q.client.RPush(ctx, q.queue, roomID).Err(); pushErr != nil {
						logger.L().Error("对账任务重新入队失败", slog.String("room_id", roomID), slog.Any("error", pushErr))
					}
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
