package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"Agentica/internal/agent"
	agentrest "Agentica/internal/agentruntime/rest"
	"Agentica/internal/api"
	"Agentica/internal/auth"
	"Agentica/internal/config"
	"Agentica/internal/dispatch"
	"Agentica/internal/intent"
	"Agentica/internal/ledger"
	"Agentica/internal/llm"
	"Agentica/internal/llm/openai"
	"Agentica/internal/lock"
	"Agentica/internal/observability/alerting"
	"Agentica/internal/room"
	"Agentica/internal/storage/mysql"
	"Agentica/internal/storage/redis"
	"Agentica/internal/wallet"
	walletrest "Agentica/internal/walletservice/rest"
	"Agentica/internal/web3"
	"Agentica/internal/web3/provider"
	"Agentica/pkg/logger"
)

// stores 汇总各领域的持久化实现。
type stores struct {
	db      *sql.DB
	wallets wallet.Store
	ledger  ledger.Store
	agents  agent.Store
	rooms   room.Store
	intents intent.Store
}

// openStores 按 storage.driver 选择内存或 MySQL 存储。
func openStores(ctx context.Context, cfg config.StorageConfig) (*stores, error) {
	switch cfg.Driver {
	case "", "memory":
		return &stores{
			wallets: wallet.NewMemoryStore(),
			ledger:  ledger.NewMemoryStore(),
			agents:  agent.NewMemoryStore(),
			rooms:   room.NewMemoryStore(),
			intents: intent.NewMemoryStore(),
		}, nil
	case "mysql":
		db, err := openMySQL(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		if cfg.MySQL.AutoMigrate {
			applied, err := mysql.Migrate(ctx, db)
			if err != nil {
				_ = db.Close()
				return nil, err
			}
			if len(applied) > 0 {
				logger.L().Info("数据库迁移完成", slog.Any("versions", applied))
			}
		}
		return &stores{
			db:      db,
			wallets: wallet.NewMySQLStore(db),
			ledger:  ledger.NewMySQLStore(db),
			agents:  agent.NewMySQLStore(db),
			rooms:   room.NewMySQLStore(db),
			intents: intent.NewMySQLStore(db),
		}, nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	return mysql.Open(ctx, mysql.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
	})
}

func (s *stores) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// app 持有装配完成的服务组件。
type app struct {
	cfg        *config.Config
	stores     *stores
	chains     *provider.Registry
	server     *api.Server
	reconciler *intent.Reconciler
	queue      intent.Queue
	closers    []func() error
}

// buildApp 装配全部组件。外部服务未配置时对应接口返回 503，而不是拒绝启动。
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.stores, err = openStores(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.stores.Close)

	runtime := agentrest.NewClient(agentrest.Config{
		BaseURL:    cfg.AgentRuntime.BaseURL,
		BaseURLEnv: cfg.AgentRuntime.BaseURLEnv,
		Timeout:    cfg.AgentRuntime.Timeout(),
	})

	history := ledger.New(a.stores.ledger)
	agents := agent.NewService(a.stores.agents, runtime,
		agent.WithCallTimeout(cfg.AgentRuntime.Timeout()),
	)

	if a.chains, err = provider.NewRegistry(ctx, cfg.Web3); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.chains.Close(); return nil })

	table, err := web3.LoadTokenTable(cfg.Web3.TokensFile)
	if err != nil {
		return nil, err
	}
	tokens, err := web3.NewTokenRegistry(table)
	if err != nil {
		return nil, err
	}

	locker, err := a.buildLocker(ctx)
	if err != nil {
		return nil, err
	}

	policy, err := intent.ParsePolicy(cfg.Saga.FailurePolicy)
	if err != nil {
		return nil, err
	}

	deps := api.Dependencies{
		History: history,
		Agents:  agents,
		Auth:    auth.NewService(cfg.Auth),
	}

	var (
		provisioner room.WalletProvisioner
		remover     intent.WalletRemover
	)
	walletClient, err := walletrest.NewClient(walletrest.Config{
		BaseURL:             cfg.WalletService.BaseURL,
		APIKey:              cfg.WalletService.ResolveAPIKey(),
		WalletSecret:        cfg.WalletService.ResolveWalletSecret(),
		Timeout:             cfg.WalletService.Timeout(),
		ConfirmationTimeout: cfg.WalletService.ConfirmationTimeout(),
		PollInterval:        cfg.WalletService.PollInterval(),
	})
	if err != nil {
		logger.L().Warn("钱包服务未配置，钱包相关接口不可用", slog.Any("error", err))
	} else {
		resolver := wallet.NewResolver(a.stores.wallets, walletClient,
			wallet.WithNetwork(cfg.WalletService.Network),
			wallet.WithCallTimeout(cfg.WalletService.Timeout()),
		)
		provisioner, remover = resolver, resolver
		deps.Wallets = resolver
		deps.Dispatcher = dispatch.New(history, resolver, walletClient,
			dispatch.WithTokenRegistry(tokens),
			dispatch.WithChains(a.chains),
			dispatch.WithRoomLock(locker, cfg.Dispatch.LockTTL()),
			dispatch.WithCallTimeout(cfg.WalletService.Timeout()),
			dispatch.WithConfirmationTimeout(cfg.WalletService.ConfirmationTimeout()),
			dispatch.WithApprovalMultiplier(cfg.WalletService.ApprovalMultiplier),
			dispatch.WithDefaultSlippage(cfg.WalletService.DefaultSlippageBasisPoints),
			dispatch.WithSwapsEnabled(cfg.WalletService.SwapsEnabled),
		)
	}

	compensator := intent.NewCompensator(runtime, remover, cfg.AgentRuntime.Timeout())
	roomOpts := []room.Option{
		room.WithHistory(history),
		room.WithFailurePolicy(policy, compensator),
		room.WithCallTimeout(cfg.AgentRuntime.Timeout()),
	}
	if cfg.Saga.IntentLog {
		roomOpts = append(roomOpts, room.WithJournal(intent.NewJournal(a.stores.intents, nil)))
	}
	strategy := room.NewStrategyGenerator(buildLLM(cfg.LLM))
	deps.Rooms = room.NewService(a.stores.rooms, strategy, provisioner, runtime, agents, roomOpts...)

	if a.reconciler, err = a.buildReconciler(ctx, compensator, policy); err != nil {
		return nil, err
	}

	var serverOpts []api.Option
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, api.WithMetricsPath(cfg.Metrics.Path))
	}
	a.server = api.NewServer(cfg.Server, deps, serverOpts...)
	return a, nil
}

// buildLocker 按 dispatch.room_lock 选择房间锁。
func (a *app) buildLocker(ctx context.Context) (lock.Locker, error) {
	switch a.cfg.Dispatch.RoomLock {
	case "memory":
		return lock.NewMemory(), nil
	case "redis":
		client, err := redis.Open(ctx, redis.Config{
			Address:  a.cfg.Dispatch.Redis.Address,
			Password: a.cfg.Dispatch.Redis.Password,
			DB:       a.cfg.Dispatch.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return lock.NewRedis(client, a.cfg.Dispatch.Redis.KeyPrefix), nil
	default:
		return lock.Noop{}, nil
	}
}

// buildReconciler 创建对账器及其队列与告警通道。
func (a *app) buildReconciler(ctx context.Context, compensator *intent.Compensator, policy intent.Policy) (*intent.Reconciler, error) {
	queue, err := intent.NewQueue(ctx, a.cfg.Queue)
	if err != nil {
		return nil, err
	}
	a.queue = queue
	a.closers = append(a.closers, queue.Close)

	alerts, err := alerting.FromConfig(a.cfg.Alerting)
	if err != nil {
		return nil, err
	}
	return intent.NewReconciler(a.stores.intents, compensator,
		intent.WithPolicy(policy),
		intent.WithQueue(queue),
		intent.WithAlertDispatcher(alerts),
		intent.WithSchedule(a.cfg.Saga.ReconcileInterval(), a.cfg.Saga.StaleAfter(), a.cfg.Saga.ReconcileBatchSize),
		intent.WithWorkerCount(a.cfg.Queue.Workers),
		intent.WithRoomLookup(room.Lookup(a.stores.rooms)),
	), nil
}

// buildLLM 创建策略生成使用的大模型客户端，未配置时返回 nil。
func buildLLM(cfg config.LLMConfig) llm.Client {
	if cfg.Provider != "openai" {
		logger.L().Warn("未知的大模型 provider，策略生成不可用", slog.String("provider", cfg.Provider))
		return nil
	}
	client, err := openai.NewClient(openai.Config{
		APIKey:      cfg.OpenAI.ResolveAPIKey(),
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.Timeout(),
	})
	if err != nil {
		logger.L().Warn("OpenAI 未配置，策略生成不可用", slog.Any("error", err))
		return nil
	}
	return client
}

// Close 逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("释放资源失败", slog.Any("error", err))
		}
	}
	a.closers = nil
}
