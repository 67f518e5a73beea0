package container

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/api"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/database"
	"github.com/rithindattag/Annotara/internal/fanout"
	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/metrics"
	"github.com/rithindattag/Annotara/internal/repository"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/storage"
	"github.com/rithindattag/Annotara/internal/suggestion"
	"github.com/rithindattag/Annotara/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// metricsInterval 任务状态指标的采集周期
const metricsInterval = 30 * time.Second

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、推送、AI 服务和业务服务
type Container struct {
	cfg    *config.Config
	logger logrus.FieldLogger

	db        *gorm.DB
	store     repository.Store
	hub       *websocket.Hub
	fanout    *fanout.Fanout
	relay     *fanout.NATSRelay
	engine    *lifecycle.Engine
	collector *metrics.Collector

	authenticator auth.Authenticator
	taskSvc       service.TaskService
	querySvc      service.QueryService
	suggestionSvc service.SuggestionService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件,任一步失败时释放已创建的资源
func NewContainer(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (ctr *Container, err error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Container{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	c.db, err = database.ConnectWithRetry(ctx, cfg.Database, 3, time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = database.Migrate(c.db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	c.store = repository.NewStore(c.db)

	// 2. 初始化推送: hub 负责本地连接,fanout 负责异步投递
	c.hub = websocket.NewHub()
	go c.hub.Run()
	c.fanout = fanout.New(cfg.Fanout.QueueSize, logger, c.hub)

	// 3. 配置了 NATS 时在实例之间转发快照
	if cfg.Fanout.NATSURL != "" {
		c.relay, err = fanout.NewNATSRelay(fanout.NATSConfig{
			URL:     cfg.Fanout.NATSURL,
			Subject: cfg.Fanout.NATSSubject,
			Name:    "annotara",
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize nats relay: %w", err)
		}
		if err = c.relay.Attach(c.fanout); err != nil {
			return nil, fmt.Errorf("failed to attach nats relay: %w", err)
		}
	}
	c.fanout.Start()

	// 4. 初始化状态机
	c.engine = lifecycle.NewEngine(c.store, c.fanout, logger)

	// 5. 初始化对象存储和 AI 服务
	uploader, provider, err := newAWSClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	adapter := suggestion.NewAdapter(provider, cfg.AI.Timeout, logger)

	// 6. 初始化认证器
	c.authenticator, err = auth.NewAuthenticator(cfg.Auth.Mode, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	// 7. 初始化业务服务
	tasks := c.store.Tasks()
	auditSvc := service.NewAuditLogService(repository.NewAuditLogRepository(c.db))
	c.taskSvc = service.NewTaskService(c.engine, tasks, uploader, c.fanout, auditSvc, logger)
	c.querySvc = service.NewQueryService(tasks, c.store.Annotations(), c.store.History())
	c.suggestionSvc = service.NewSuggestionService(tasks, adapter, logger)

	// 8. 启动指标收集
	c.collector = metrics.NewCollector(c.db, tasks, metricsInterval, logger)
	c.collector.Start()

	logger.WithFields(logrus.Fields{
		"driver":      cfg.Database.Driver,
		"auth":        cfg.Auth.Mode,
		"ai_provider": provider.Name(),
		"uploads":     uploader != nil,
		"nats":        c.relay != nil,
	}).Info("Container initialized")
	return c, nil
}

// newAWSClients 根据配置创建上传器和 AI 供应商
// 未配置 bucket 时上传器为 nil,上传接口返回 503
func newAWSClients(ctx context.Context, cfg *config.Config) (storage.Uploader, suggestion.Provider, error) {
	if cfg.Storage.Bucket == "" && cfg.AI.Provider != "rekognition" {
		return nil, suggestion.NewMockProvider(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var uploader storage.Uploader
	if cfg.Storage.Bucket != "" {
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Storage.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
				o.UsePathStyle = true
			}
		})
		s3Uploader, err := storage.NewS3Uploader(client, storage.S3Config{
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize s3 uploader: %w", err)
		}
		uploader = s3Uploader
	}

	if cfg.AI.Provider != "rekognition" {
		return uploader, suggestion.NewMockProvider(), nil
	}
	provider, err := suggestion.NewRekognitionProvider(rekognition.NewFromConfig(awsCfg), suggestion.RekognitionConfig{
		Bucket:        cfg.Storage.Bucket,
		MinConfidence: float32(cfg.AI.MinConfidence),
		MaxLabels:     cfg.AI.MaxLabels,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize rekognition provider: %w", err)
	}
	return uploader, provider, nil
}

// Router 构建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	var checkers []api.HealthChecker
	if c.relay != nil {
		checkers = append(checkers, c.relay)
	}
	return api.SetupRoutes(api.RouterDeps{
		Config:            c.cfg,
		Logger:            c.logger,
		DB:                c.db,
		Hub:               c.hub,
		Authenticator:     c.authenticator,
		TaskService:       c.taskSvc,
		QueryService:      c.querySvc,
		SuggestionService: c.suggestionSvc,
		HealthCheckers:    checkers,
	})
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Engine 获取状态机
func (c *Container) Engine() *lifecycle.Engine {
	return c.engine
}

// Hub 获取推送连接管理器
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

func (c *Container) TaskService() service.TaskService {
	return c.taskSvc
}

func (c *Container) QueryService() service.QueryService {
	return c.querySvc
}

func (c *Container) SuggestionService() service.SuggestionService {
	return c.suggestionSvc
}

// Close 按依赖的逆序释放资源
func (c *Container) Close() {
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.relay != nil {
		c.relay.Close()
	}
	if c.fanout != nil {
		c.fanout.Stop()
	}
	if c.hub != nil {
		c.hub.Stop()
	}
	if c.db != nil {
		if err := database.Close(c.db); err != nil {
			c.logger.WithError(err).Warn("Failed to close database")
		}
	}
}
