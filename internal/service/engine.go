package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/aggregator"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/catalog"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/database"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/mqtt"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/rabbitmq"
	rediscommon "github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/redis"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/config"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/consumer"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/lifecycle"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/notifier"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/publisher"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/realtime"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/repository"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/router"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EngineService KDS路由与实时同步引擎
type EngineService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	rmqClient   *rabbitmq.Client
	mqttClient  *mqtt.Client

	catalog       *catalog.Catalog
	tracker       *lifecycle.Tracker
	router        *router.Router
	routingRepo   *repository.RoutingRepository
	bus           *realtime.RedisBus
	session       *realtime.Session
	aggregator    *aggregator.TableAggregator
	viewPublisher *publisher.ViewPublisher
	orderConsumer *consumer.OrderConsumer
	notifier      *notifier.WebhookNotifier
}

// NewEngineService 创建引擎服务
func NewEngineService(cfg *config.Config, logger *zap.Logger) (*EngineService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化 Redis（事件总线 + 视图缓存）
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化 RabbitMQ（订单摄入）
	rmqClient, err := rabbitmq.Dial(&cfg.Rabbit)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	// 初始化 MQTT（可选的视图推送）
	var mqttClient *mqtt.Client
	if cfg.Engine.MQTTEnabled {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
	}

	// 加载工位目录
	var cat *catalog.Catalog
	if cfg.Engine.StationsFile != "" {
		cat, err = catalog.LoadFromFile(cfg.Engine.StationsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load station catalog: %w", err)
		}
	} else {
		cat = catalog.Default()
	}

	tracker := lifecycle.NewTracker(cat)
	stationRouter := router.NewRouter(cat, logger)
	routingRepo := repository.NewRoutingRepository(db, cat, logger)
	bus := realtime.NewRedisBus(redisClient, logger)
	alerter := notifier.NewWebhookNotifier(cfg.Engine.OperatorWebhookURL, logger)

	// 引擎自己的全量同步会话（驱动聚合视图）
	session := realtime.NewSession(routingRepo, bus, logger, realtime.Options{
		FetchTimeout: time.Duration(cfg.Engine.FetchTimeout) * time.Second,
		PollInterval: time.Duration(cfg.Engine.PollInterval) * time.Second,
		Backoff: realtime.Backoff{
			Initial:     time.Duration(cfg.Engine.BackoffInitialMs) * time.Millisecond,
			Max:         time.Duration(cfg.Engine.BackoffMaxSecs) * time.Second,
			MaxAttempts: cfg.Engine.BackoffMaxAttempts,
		},
	})

	tableAggregator := aggregator.NewTableAggregator(tracker)

	var push publisher.PushClient
	if mqttClient != nil {
		push = mqttClient
	}
	viewPublisher := publisher.NewViewPublisher(
		publisher.NewRedisKVStore(redisClient),
		push,
		logger,
		cfg.MQTT.QoS,
		time.Duration(cfg.Engine.AggregationInterval)*time.Second*10,
	)

	orderConsumer := consumer.NewOrderConsumer(
		rmqClient,
		stationRouter,
		routingRepo,
		bus,
		alerter,
		logger,
		cfg.Rabbit.Queue,
		cfg.Engine.Prefetch,
	)

	return &EngineService{
		config:        cfg,
		logger:        logger,
		db:            db,
		redisClient:   redisClient,
		rmqClient:     rmqClient,
		mqttClient:    mqttClient,
		catalog:       cat,
		tracker:       tracker,
		router:        stationRouter,
		routingRepo:   routingRepo,
		bus:           bus,
		session:       session,
		aggregator:    tableAggregator,
		viewPublisher: viewPublisher,
		orderConsumer: orderConsumer,
		notifier:      alerter,
	}, nil
}

// NewSession 为一块显示屏创建独立同步会话
// 每个会话独占自己的缓存/补丁集/状态机，跨会话只经由总线和存储
func (s *EngineService) NewSession(stationID string) *realtime.Session {
	return realtime.NewSession(s.routingRepo, s.bus, s.logger, realtime.Options{
		StationID:    stationID,
		FetchTimeout: time.Duration(s.config.Engine.FetchTimeout) * time.Second,
		PollInterval: time.Duration(s.config.Engine.PollInterval) * time.Second,
		Backoff: realtime.Backoff{
			Initial:     time.Duration(s.config.Engine.BackoffInitialMs) * time.Millisecond,
			Max:         time.Duration(s.config.Engine.BackoffMaxSecs) * time.Second,
			MaxAttempts: s.config.Engine.BackoffMaxAttempts,
		},
	})
}

// Start 启动服务（阻塞运行聚合循环）
func (s *EngineService) Start(ctx context.Context) error {
	s.logger.Info("Starting KDS engine",
		zap.Int("station_count", len(s.catalog.Stations())),
		zap.Bool("mqtt_enabled", s.config.Engine.MQTTEnabled),
	)

	// 订单摄入
	go func() {
		if err := s.orderConsumer.Start(ctx); err != nil {
			s.logger.Error("Order consumer stopped", zap.Error(err))
		}
	}()

	// 引擎会话的连接生命周期
	go func() {
		if err := s.session.Run(ctx); err != nil {
			if errors.Is(err, realtime.ErrConnectionLost) {
				// 终态：上报后等待人工介入，不再自动恢复
				s.notifier.ConnectionLost(ctx, "engine", err.Error())
			}
			s.logger.Error("Engine session stopped", zap.Error(err))
		}
	}()

	return s.runAggregationLoop(ctx)
}

// runAggregationLoop 聚合循环：每个tick用同一个now重算全部派生视图
func (s *EngineService) runAggregationLoop(ctx context.Context) error {
	interval := time.Duration(s.config.Engine.AggregationInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting aggregation loop",
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.aggregateAndPublish(ctx); err != nil {
				s.logger.Error("Failed to publish view snapshot", zap.Error(err))
			}
		}
	}
}

// aggregateAndPublish 执行一次聚合并分发视图
func (s *EngineService) aggregateAndPublish(ctx context.Context) error {
	entries := s.session.Entries()
	now := time.Now()

	groups := s.aggregator.Group(entries, now)

	stations := make(map[string][]models.EntryView)
	for _, station := range s.catalog.Stations() {
		if !station.IsActive {
			continue
		}
		views := s.aggregator.StationView(entries, station.ID, now)
		if len(views) > 0 {
			stations[station.ID] = views
		}
	}

	return s.viewPublisher.PublishSnapshot(ctx, &publisher.ViewSnapshot{
		Tables:      groups,
		Stations:    stations,
		GeneratedAt: now,
	})
}

// Stop 停止服务
func (s *EngineService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping KDS engine")

	s.session.Close()

	if s.rmqClient != nil {
		s.rmqClient.Close()
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("KDS engine stopped")
	return nil
}
