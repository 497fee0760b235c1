package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"

	"Agentica/pkg/logger"
)

const (
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultPingWait        = 15 * time.Second

	errDuplicateEntry = 1062
)

// Config 描述 MySQL 连接池参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// PingWait 是启动时等待数据库就绪的最长时间。
	PingWait time.Duration
}

// Open 建立连接池，数据库在 PingWait 内就绪即返回。
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}
	driverCfg, err := parseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(driverCfg)
	if err != nil {
		return nil, fmt.Errorf("创建 MySQL 连接器失败: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(positive(cfg.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(positive(cfg.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(positiveDuration(cfg.ConnMaxLifetime, defaultConnMaxLifetime))
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			logger.L().Warn("MySQL 尚未就绪", slog.Int("attempt", attempt), slog.String("addr", driverCfg.Addr), slog.Any("error", pingErr))
		}
		return struct{}{}, pingErr
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(positiveDuration(cfg.PingWait, defaultPingWait)))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL %s: %w", driverCfg.Addr, err)
	}
	return db, nil
}

// parseDSN 校验 DSN；未指定字符集时使用 utf8mb4_unicode_ci，时间统一按 UTC 处理。
func parseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 MySQL DSN 失败: %w", err)
	}
	if !strings.Contains(dsn, "charset=") && !strings.Contains(dsn, "collation=") {
		cfg.Collation = "utf8mb4_unicode_ci"
	}
	cfg.Loc = time.UTC
	return cfg, nil
}

// IsDuplicateKey 判断错误是否由唯一约束冲突引起，例如同一房间重复创建钱包。
func IsDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return stdErrors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func positiveDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
