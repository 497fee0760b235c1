package intent

import (
	"context"

	"Agentica/internal/config"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/redis"
)

// Handler 处理队列中的房间 ID。
type Handler func(ctx context.Context, roomID string) error

// Producer 负责投递待对账的房间。
type Producer interface {
	Publish(ctx context.Context, roomID string) error
	Close() error
}

// Consumer 负责消费待对账的房间。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// NewQueue 按配置创建对账队列。
func NewQueue(ctx context.Context, cfg config.QueueConfig) (Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		client, err := redis.Open(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "初始化 Redis 对账队列失败")
		}
		return NewRedisQueue(client, cfg.Redis.Queue, cfg.Redis.BlockWait()), nil
	case "rabbitmq":
		q, err := NewRabbitMQQueue(cfg.RabbitMQ)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "初始化 RabbitMQ 对账队列失败")
		}
		return q, nil
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的队列驱动: %s", cfg.Driver)
	}
}
