package bootstrap

import (
	"context"
	"fmt"
	"time"

	"data-explorer-be/internal/config"
	"data-explorer-be/internal/controller"
	"data-explorer-be/internal/handler"
	"data-explorer-be/internal/observability"
	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/internal/repository/implementation"
	"data-explorer-be/internal/repository/memory"
	redisRepo "data-explorer-be/internal/repository/redis"
	"data-explorer-be/internal/service"
	"data-explorer-be/internal/websocket"
	"data-explorer-be/pkg/ai/agent"
	"data-explorer-be/pkg/database"
	"data-explorer-be/pkg/events"
	"data-explorer-be/pkg/llm/factory"
	pktNats "data-explorer-be/pkg/nats"
	"data-explorer-be/pkg/report"
	"data-explorer-be/pkg/sandbox"
	"data-explorer-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// IdlePurger removes sessions that have not been written since cutoff.
type IdlePurger interface {
	PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

type Container struct {
	// Controllers
	DatasetController controller.IDatasetController
	QueryController   controller.IQueryController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	Purger          IdlePurger

	// WebSockets
	SessionStreamHandler *handler.SessionStreamHandler
	WebSocketHub         *websocket.Hub

	Metrics *observability.Metrics
	Logger  logger.ILogger

	closers []func()
}

// Close releases broker and database connections in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	metrics := observability.NewMetrics()
	c := &Container{Metrics: metrics, Logger: sysLogger}

	// 2. Redis, shared by the redis session driver and the websocket fan-out
	rdb := newRedisClient(cfg, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// 3. Session storage
	sessions, err := c.newSessionStore(cfg, rdb)
	if err != nil {
		return nil, err
	}

	// 4. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })
	publisherService := service.NewPublisherService(cfg.Events.Topic, pubSub)

	var forward events.Publisher
	if cfg.Events.Broker == "nats" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS Publisher, events stay in process", map[string]interface{}{"error": err.Error()})
		} else {
			forward = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// 5. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/session_stream.log")
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Events.Topic, c.WebSocketHub, forward, sysLogger)

	// 6. LLM and sandbox
	llmProvider, err := factory.NewLLMProvider(factory.ProviderConfig{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.LLMBaseURL(),
		APIKey:   cfg.APIKeyFor(cfg.Ai.LLMProvider),
		Timeout:  cfg.Ai.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "Using LLM Provider", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.Timeout = cfg.Agent.SandboxTimeout
	sandboxCfg.MaxResultRows = cfg.Agent.SandboxMaxResultRows
	sandboxCfg.MaxValueBytes = cfg.Agent.SandboxMaxValueBytes
	sandboxCfg.MaxDatabaseBytes = int64(cfg.Agent.SandboxMaxDatabaseMB) << 20
	executor := sandbox.NewSQLite(sandboxCfg)

	explorerAgent := agent.New(llmProvider, executor,
		agent.WithMaxAttempts(cfg.Agent.MaxAttempts),
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithInsightRows(cfg.Agent.InsightRows),
		agent.WithModelTimeout(cfg.Ai.LLMTimeout),
		agent.WithLogger(sysLogger.Zap()),
		agent.WithMetrics(metrics),
		agent.WithObserver(service.NewTransitionObserver(publisherService, sysLogger)),
	)

	// 7. Services
	explorerService := service.NewExplorerService(
		sessions,
		explorerAgent,
		report.NewGenerator(llmProvider, cfg.Ai.LLMTimeout),
		publisherService,
		metrics,
		sysLogger,
	)

	// 8. Controllers
	c.DatasetController = controller.NewDatasetController(explorerService)
	c.QueryController = controller.NewQueryController(explorerService)
	c.SessionStreamHandler = handler.NewSessionStreamHandler(sessions, c.WebSocketHub, cfg.Keys.JWTSecret, wsLogger)

	return c, nil
}

func (c *Container) newSessionStore(cfg *config.Config, rdb *redis.Client) (store.SessionStore, error) {
	switch cfg.Session.Driver {
	case "memory", "":
		return memory.NewSessionRepository(cfg.Session.TTL), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("session driver redis requires REDIS_URL")
		}
		return redisRepo.NewSessionRepository(rdb, cfg.Session.TTL), nil
	case "postgres":
		gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to GORM DB: %w", err)
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			c.closers = append(c.closers, func() { _ = sqlDB.Close() })
		}
		repo := implementation.NewExplorerSessionRepository(gormDB)
		c.Purger = repo
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported session driver: %s", cfg.Session.Driver)
	}
}

// newRedisClient returns nil when Redis is not configured or not reachable;
// the hub then runs single-instance.
func newRedisClient(cfg *config.Config, log logger.ILogger) *redis.Client {
	if cfg.App.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}
