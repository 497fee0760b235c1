package lock

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	xerrors "Agentica/internal/errors"
)

// releaseScript 只删除自己持有的锁。
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis 使用 SET NX PX 实现跨进程的按键互斥锁。
type Redis struct {
	client goredis.UniversalClient
	prefix string
	poll   time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedis 创建 Redis 锁。
func NewRedis(client goredis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "agentica:lock"
	}
	return &Redis{client: client, prefix: prefix, poll: 50 * time.Millisecond}
}

var errLockHeld = xerrors.New(CodeLockUnavailable, "房间锁被占用")

// Acquire 实现 Locker 接口，锁被占用时以退避方式轮询。
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	fullKey := r.prefix + ":" + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.poll
	policy.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := r.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return false, backoff.Permanent(xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "获取房间锁失败"))
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxElapsedTime(ttl))
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(CodeLockUnavailable, err, "等待房间锁超时")
	}
	return &redisLease{client: r.client, key: fullKey, token: token}, nil
}

type redisLease struct {
	client goredis.UniversalClient
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != goredis.Nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "释放房间锁失败")
	}
	return nil
}
