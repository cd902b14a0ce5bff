package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"forward_bot/internal/app"
	"forward_bot/internal/config"
	"forward_bot/internal/logger"
)

func main() {
	// 初始化logger
	logger.Init()

	// 加载 .env（不存在时直接用环境变量）
	if err := godotenv.Load(); err != nil {
		logger.L().Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bot 轮询循环
	go application.TelegramBot.Start(ctx)

	// HTTP API
	if application.APIServer != nil {
		go func() {
			if err := application.APIServer.Run(); err != nil {
				logger.L().Errorf("API server error: %v", err)
			}
		}()
	}

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.L().Infof("Received signal %v, shutting down...", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("Shutdown error: %v", err)
	}

	logger.L().Info("Bye")
}
