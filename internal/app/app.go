package app

import (
	"context"
	"fmt"

	"forward_bot/internal/api"
	"forward_bot/internal/config"
	"forward_bot/internal/logger"
	"forward_bot/internal/mongo"
	"forward_bot/internal/telegram"
	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/repository"

	botapi "github.com/go-telegram/bot"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB     *mongo.Client
	TelegramBot *telegram.Bot
	APIServer   *api.Server
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	// 初始化 MongoDB
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	db := mongoClient.Database()
	configRepo := repository.NewBotConfigRepository(db)
	progressRepo := repository.NewForwardProgressRepository(db)
	ledgerRepo := repository.NewForwardedMessageRepository(db)

	// 初始化数据库索引
	if err := ledgerRepo.EnsureIndexes(context.Background()); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	engineCfg := forward.Config{
		BatchSize:         cfg.Forward.BatchSize,
		Concurrency:       cfg.Forward.Concurrency,
		BatchDelay:        cfg.Forward.BatchDelay,
		MaxRunDuration:    cfg.Forward.MaxRunDuration,
		MaxRetries:        cfg.Forward.MaxRetries,
		DefaultRetryAfter: cfg.Forward.DefaultRetryAfter,
		SingleCopyRate:    cfg.Forward.SingleCopyRate,
	}

	// 初始化 Telegram Bot；复制客户端和控制器依赖底层 bot 实例
	telegramBot, err := telegram.InitFromConfig(cfg, func(b *botapi.Bot) *forward.Controller {
		copier := forward.NewTelegramCopier(b)
		engine := forward.NewEngine(copier, ledgerRepo, progressRepo, engineCfg)
		return forward.NewController(configRepo, progressRepo, ledgerRepo, copier, engine, cfg.Forward.BatchSize)
	})
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Telegram bot failed: %w", err)
	}
	app.TelegramBot = telegramBot

	// 初始化 HTTP API（地址为空表示关闭）
	if cfg.APIListenAddr != "" {
		app.APIServer = api.NewServer(cfg.APIListenAddr, telegramBot.Controller())
	}

	return app, nil
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.APIServer != nil {
		if err := a.APIServer.Shutdown(ctx); err != nil {
			logger.L().Warnf("API server shutdown failed: %v", err)
		}
	}
	if a.TelegramBot != nil {
		if err := a.TelegramBot.Stop(ctx); err != nil {
			logger.L().Warnf("Telegram bot stop failed: %v", err)
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
