package telegram

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/config"
	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// Config Telegram Bot 配置
type Config struct {
	Token    string  // Bot Token
	OwnerIDs []int64 // Owner 用户 IDs
	Debug    bool    // 是否开启调试模式
}

// Bot Telegram Bot 服务
type Bot struct {
	bot        *bot.Bot
	controller *forward.Controller
	ownerIDs   []int64
	workerPool *WorkerPool
	startTime  time.Time
}

// New 创建 Telegram Bot 实例
// 复制客户端需要底层 bot 实例，控制器通过工厂函数延后构造
func New(cfg Config, buildController func(*bot.Bot) *forward.Controller) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	opts := []bot.Option{}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	telegramBot := &Bot{
		bot:        b,
		controller: buildController(b),
		ownerIDs:   cfg.OwnerIDs,
		workerPool: NewWorkerPool(4, 64),
		startTime:  time.Now(),
	}

	telegramBot.registerHandlers()

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot
func InitFromConfig(cfg *config.Config, buildController func(*bot.Bot) *forward.Controller) (*Bot, error) {
	return New(Config{
		Token:    cfg.TelegramToken,
		OwnerIDs: cfg.BotOwnerIDs,
	}, buildController)
}

// Controller 返回转发控制器（HTTP API 与 Bot 共用同一实例）
func (b *Bot) Controller() *forward.Controller {
	return b.controller
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
func (b *Bot) Start(ctx context.Context) {
	logger.L().Info("Starting Telegram bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
}

// Stop 停止 Bot 并关闭工作池
// 轮询循环本身通过 context 取消来退出
func (b *Bot) Stop(ctx context.Context) error {
	logger.L().Info("Stopping Telegram bot...")
	b.workerPool.Shutdown()
	return nil
}

// asyncHandler 把 handler 包装为经由工作池异步执行
func (b *Bot) asyncHandler(handler bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		b.workerPool.Submit(HandlerTask{
			Ctx:         ctx,
			BotInstance: botInstance,
			Update:      update,
			Handler:     handler,
		})
	}
}
