package main

import (
	"Zalor/internal/api/config"
	"Zalor/internal/pkg/cron"
	"Zalor/internal/pkg/database"
	"Zalor/internal/pkg/logger"
	"Zalor/internal/pkg/minio"
	"Zalor/internal/pkg/mongo"
	"Zalor/internal/pkg/redis"
	"Zalor/internal/pkg/security"
	"Zalor/internal/wire"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// 加载配置
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	// 初始化日志
	logger.InitLogger()

	must("init jwt", security.Init(cfg.JWT.Secret, cfg.JWT.ExpireHours))

	// MySQL：用户资料、在线状态、群组
	dbCfg := cfg.DB
	db, err := database.NewGormDB(&dbCfg)
	must("create database connection", err)
	defer func() {
		_ = database.Close(db)
	}()

	// Redis：发送者缓存、Token 黑名单、跨实例广播
	must("create redis connection", redis.InitRedis(cfg.Redis))
	defer func() {
		_ = redis.Close()
	}()

	// Mongo：消息存储
	mongoDB, err := mongo.InitMongo(cfg.Mongo)
	must("create mongo connection", err)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		_ = mongo.Close(closeCtx, mongoDB)
	}()

	// MinIO：消息附件
	must("initialize MinIO", minio.Init())
	must("create staging dir", os.MkdirAll(cfg.IM.StagingDir, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 依赖注入
	app, err := wire.BuildApplication(ctx, db, mongoDB, redis.GetRdbClient(), cfg)
	must("create application", err)

	g, ctx := errgroup.WithContext(ctx)

	// 定时任务
	must("start cron jobs", cron.InitCron(app.CronMgr))
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Cron Jobs stopping...")
		app.CronMgr.Stop()
		return nil
	})

	// Kafka 消费者
	if app.KafkaManager != nil {
		g.Go(func() error {
			log.Info("Kafka Consumers starting...")
			return app.KafkaManager.Start(ctx)
		})
	}

	// 跨实例广播订阅
	if app.Fanout != nil {
		g.Go(func() error {
			return app.Fanout.Run(ctx)
		})
	}

	// HTTP 服务器
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info("HTTP Server starting...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 优雅退出
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case sig := <-quit:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		}
		shutdown(srv, app)
		return nil
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("App exited with error", "err", err)
	}
	log.Info("App exited successfully.")
}

// shutdown 先停止接收请求，再关闭 WS 连接并等待下线处理，最后停止广播
func shutdown(srv *http.Server, app *wire.ApplicationContainer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP Server shutdown failed", "err", err)
	}
	app.Hub.Close()
	app.WsHandler.Wait(ctx)
	app.Dispatcher.Close()
	app.Presence.Reset()
}

func must(step string, err error) {
	if err != nil {
		log.Error("Fatal error: failed to "+step, "err", err)
		panic(err)
	}
}
