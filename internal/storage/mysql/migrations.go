package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"Agentica/deploy/migrations"
	"Agentica/pkg/logger"
)

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`

// Migrate 按版本顺序执行尚未应用的内嵌迁移脚本，返回本次应用的版本。
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	scripts, err := migrations.Embedded()
	if err != nil {
		return nil, err
	}
	return apply(ctx, db, scripts)
}

// Pending 返回尚未应用的内嵌迁移版本。
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	scripts, err := migrations.Embedded()
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, s := range scripts {
		if _, ok := applied[s.Version]; !ok {
			pending = append(pending, s.Version)
		}
	}
	return pending, nil
}

func apply(ctx context.Context, db *sql.DB, scripts []migrations.Script) ([]string, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, s := range scripts {
		if _, ok := applied[s.Version]; ok {
			continue
		}
		if err := withTx(ctx, db, func(tx *sql.Tx) error {
			for _, stmt := range s.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("执行迁移 %s 失败: %w", s.Name, err)
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, s.Version, time.Now().Unix())
			if err != nil {
				return fmt.Errorf("记录迁移版本 %s 失败: %w", s.Version, err)
			}
			return nil
		}); err != nil {
			return done, err
		}
		logger.L().Info("已应用数据库迁移", slog.String("version", s.Version), slog.String("file", s.Name))
		done = append(done, s.Version)
	}
	return done, nil
}

// appliedVersions 确保版本表存在并读取已应用的版本集合。
func appliedVersions(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		out[v] = struct{}{}
	}
	return out, rows.Err()
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}
