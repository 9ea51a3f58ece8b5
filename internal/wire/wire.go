package wire

import (
	"Zalor/internal/api"
	"Zalor/internal/api/config"
	"Zalor/internal/api/handler"
	"Zalor/internal/job"
	"Zalor/internal/pkg/cron"
	"Zalor/internal/pkg/kafka"
	"Zalor/internal/pkg/minio"
	"Zalor/internal/pkg/mongo"
	pkgredis "Zalor/internal/pkg/redis"
	"Zalor/internal/realtime"
	"Zalor/internal/repository"
	"Zalor/internal/service"
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	Hub          *realtime.Hub
	Fanout       *realtime.RedisFanout
	Dispatcher   *realtime.Dispatcher
	Presence     *realtime.Presence
	WsHandler    *handler.WsHandler
	CronMgr      *cron.Manager
	KafkaManager *kafka.ConsumerManager
}

func BuildApplication(ctx context.Context, db *gorm.DB, mongoDB *mongodriver.Database, rdb *redis.Client, cfg *config.Config) (*ApplicationContainer, error) {
	imCfg := cfg.IM

	userRepo := repository.NewUserRepo(db)
	groupRepo := repository.NewGroupRepo(db)
	messageRepo := mongo.NewMessageRepo(mongoDB)
	if err := messageRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	// 单机直接投递本地 Hub，配置了 Redis 时经频道广播到所有实例
	hub := realtime.NewHub()
	var transport realtime.Transport = hub
	var fanout *realtime.RedisFanout
	if rdb != nil {
		fanout = realtime.NewRedisFanout(rdb, hub)
		transport = fanout
	}
	dispatcher := realtime.NewDispatcher(transport, imCfg.DispatchWorkers, imCfg.DispatchQueueSize)
	presence := realtime.NewPresence(userRepo, dispatcher, imCfg.PresenceRefCount)

	senders := service.NewSenderDirectory(userRepo, pkgredis.NewCache())
	messageService := service.NewMessageService(
		messageRepo,
		userRepo,
		groupRepo,
		senders,
		minio.NewStorage(),
		dispatcher,
		service.UploadPolicy{MaxSize: imCfg.MaxUploadSize},
	)

	wsHandler := handler.NewWsHandler(hub, presence, imCfg.AllowedOrigins, imCfg.SendBuffer)
	handlers := &api.HandlersGroup{
		MessageHandler: handler.NewMessageHandler(messageService, imCfg.StagingDir, imCfg.MaxUploadSize),
		WsHandler:      wsHandler,
	}
	router := api.SetupRouter(handlers, imCfg.AllowedOrigins)

	stagingTTL := time.Duration(imCfg.StagingTTLMinutes) * time.Minute
	cronMgr := cron.NewCronManager(job.NewStagingCleanJob(imCfg.StagingDir, stagingTTL))

	var kafkaMgr *kafka.ConsumerManager
	if cfg.Kafka.Enable {
		var err error
		kafkaMgr, err = kafka.NewConsumerManager(cfg, senders)
		if err != nil {
			return nil, err
		}
	}

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		Hub:          hub,
		Fanout:       fanout,
		Dispatcher:   dispatcher,
		Presence:     presence,
		WsHandler:    wsHandler,
		CronMgr:      cronMgr,
		KafkaManager: kafkaMgr,
	}, nil
}
