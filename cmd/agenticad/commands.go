package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"Agentica/internal/storage/mysql"
	"Agentica/pkg/logger"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP API 与对账器",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行内置的 MySQL 迁移",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Storage.Driver != "mysql" {
				return fmt.Errorf("migrate 需要 storage.driver=mysql，当前为 %s", cfg.Storage.Driver)
			}
			db, err := openMySQL(cmd.Context(), cfg.Storage.MySQL)
			if err != nil {
				return err
			}
			defer db.Close()

			if dryRun {
				pending, err := mysql.Pending(cmd.Context(), db)
				if err != nil {
					return err
				}
				for _, version := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "待应用迁移 %s\n", version)
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "数据库已是最新版本")
				}
				return nil
			}

			applied, err := mysql.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "数据库已是最新版本")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "已应用迁移 %s\n", version)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只列出待应用的迁移")
	return cmd
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "对悬挂的建房意图执行一次对账",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "扫描 %d 个意图\n", summary.Scanned)
			for decision, count := range summary.Decisions {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", decision, count)
			}
			return nil
		},
	}
}

// runServe 并发运行 API 与对账器，任一组件退出即整体退出。
func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.L().Info("agenticad 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("failure_policy", cfg.Saga.FailurePolicy),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(gctx)
	})
	g.Go(func() error {
		return a.reconciler.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.L().Info("agenticad 已退出")
	return nil
}
