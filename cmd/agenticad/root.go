package main

import (
	"os"

	"github.com/spf13/cobra"

	"Agentica/internal/config"
	"Agentica/pkg/logger"
)

// configEnv 在未传入 --config 时提供配置文件路径。
const configEnv = "AGENTICA_CONFIG"

type rootOptions struct {
	configPath string
}

// newRootCommand 构造命令树，未指定子命令时等同于 serve。
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "agenticad",
		Short:         "Agentica platform daemon",
		Long:          "agenticad serves the Agentica HTTP API and reconciles unfinished room creations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv(configEnv), "配置文件路径 (YAML/JSON)，默认读取 "+configEnv)

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newReconcileCommand(opts),
	)
	return root
}

// load 读取配置并初始化日志。
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     cfg.Server.ServiceName,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
