package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// registerHandlers 注册所有命令处理器（异步执行）
func (b *Bot) registerHandlers() {
	// 普通命令 - 异步执行
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact,
		b.asyncHandler(b.handleStart))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/ping", bot.MatchTypeExact,
		b.asyncHandler(b.handlePing))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/progress", bot.MatchTypeExact,
		b.asyncHandler(b.handleProgress))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact,
		b.asyncHandler(b.handleStatus))

	// 变更状态的命令（仅 Owner） - 异步执行
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/setconfig", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleSetConfig)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/forward", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleForward)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/resume", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleResume)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stop", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleStop)))

	// 源频道新消息的实时转发
	b.bot.RegisterHandlerMatchFunc(
		func(update *botModels.Update) bool { return update.ChannelPost != nil },
		b.asyncHandler(b.handleChannelPost))

	logger.L().Debug("All handlers registered with async execution")
}

// handleStart 处理 /start 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		"🤖 <b>Telegram Forwarder Bot</b>\n\n"+
			"Commands:\n"+
			"/setconfig [source] [dest] - Set channels\n"+
			"/forward [start] [end] - Forward messages\n"+
			"/resume - Resume forwarding\n"+
			"/stop - Stop forwarding\n"+
			"/progress - Check progress\n"+
			"/status - Check bot status")
}

// handlePing 处理 /ping 命令
func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	stats := b.workerPool.Stats()
	text := fmt.Sprintf("🏓 Pong!\n⏱ Uptime: %s\n🛠 Workers: %d, queue %d/%d",
		formatDuration(time.Since(b.startTime)), stats.Workers, stats.QueueLength, stats.QueueCapacity)
	b.sendMessage(ctx, update.Message.Chat.ID, text)
}

// handleSetConfig 处理 /setconfig 命令
func (b *Bot) handleSetConfig(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 3 {
		b.sendErrorMessage(ctx, chatID,
			"Usage: /setconfig [source_channel] [dest_channel]\nExample: /setconfig -1001234567890 -1009876543210")
		return
	}

	source, dest := parts[1], parts[2]
	if err := b.controller.SetConfig(ctx, source, dest); err != nil {
		logger.L().Errorf("Failed to save bot config: %v", err)
		b.sendErrorMessage(ctx, chatID, "Failed to save config, please try again")
		return
	}

	b.sendSuccessMessage(ctx, chatID,
		fmt.Sprintf("Config saved!\n\n📤 Source: %s\n📥 Destination: %s", source, dest))
}

// handleForward 处理 /forward 命令，启动批量转发任务
func (b *Bot) handleForward(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 3 {
		b.sendErrorMessage(ctx, chatID,
			"Usage: /forward [start_id] [end_id]\nExample: /forward 1 1000")
		return
	}

	startID, err1 := strconv.Atoi(parts[1])
	endID, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || startID > endID {
		b.sendErrorMessage(ctx, chatID, "Invalid message IDs")
		return
	}

	watcher := newProgressWatcher(botInstance, chatID)
	if _, err := b.controller.Start(ctx, startID, endID, watcher.Notify); err != nil {
		b.sendErrorMessage(ctx, chatID, startErrorText(err))
		return
	}

	b.sendMessage(ctx, chatID,
		fmt.Sprintf("🚀 Starting forward: %d to %d\n⚠️ Use /resume if it stops.", startID, endID))
}

// handleResume 处理 /resume 命令
func (b *Bot) handleResume(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	watcher := newProgressWatcher(botInstance, chatID)
	progress, err := b.controller.Resume(ctx, watcher.Notify)
	if err != nil {
		b.sendErrorMessage(ctx, chatID, startErrorText(err))
		return
	}

	b.sendMessage(ctx, chatID,
		fmt.Sprintf("▶️ Resuming from message %d", progress.NextResumeID()))
}

// handleStop 处理 /stop 命令
func (b *Bot) handleStop(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if err := b.controller.Stop(ctx); err != nil {
		logger.L().Errorf("Failed to request stop: %v", err)
		b.sendErrorMessage(ctx, chatID, "Failed to request stop, please try again")
		return
	}

	b.sendMessage(ctx, chatID, "⏹️ Stop requested. Will stop after current batch.")
}

// handleProgress 处理 /progress 命令
func (b *Bot) handleProgress(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	progress, err := b.controller.Progress(ctx)
	if err != nil {
		logger.L().Errorf("Failed to load progress: %v", err)
		b.sendErrorMessage(ctx, chatID, "Failed to load progress, please try again")
		return
	}
	if progress == nil {
		b.sendMessage(ctx, chatID, "📊 No forwarding data")
		return
	}

	b.sendMessage(ctx, chatID, FormatProgress(progress))
}

// handleStatus 处理 /status 命令
func (b *Bot) handleStatus(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	cfg, _, err := b.controller.Status(ctx)
	if err != nil {
		logger.L().Errorf("Failed to load status: %v", err)
		b.sendErrorMessage(ctx, chatID, "Failed to load status, please try again")
		return
	}
	if cfg == nil {
		b.sendMessage(ctx, chatID, "⚙️ Bot not configured. Use /setconfig")
		return
	}

	b.sendMessage(ctx, chatID,
		fmt.Sprintf("✅ <b>Bot Status</b>\n\n📤 Source: %s\n📥 Dest: %s", cfg.SourceChannel, cfg.DestChannel))
}

// handleChannelPost 源频道新消息的实时转发
// 与批量路径共用复制客户端和去重账本，相当于一个单元素批次
func (b *Bot) handleChannelPost(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	post := update.ChannelPost
	if post == nil || !hasMedia(post) {
		return
	}

	cfg, err := b.controller.Config(ctx)
	if err != nil || cfg == nil {
		return
	}
	if !chatMatches(post.Chat, cfg.SourceChannel) {
		logger.L().Debugf("Channel post from %d does not match configured source %s, skipping",
			post.Chat.ID, cfg.SourceChannel)
		return
	}

	if err := b.controller.ForwardNew(ctx, post.ID); err != nil {
		logger.L().Errorf("Failed to auto-forward message %d: %v", post.ID, err)
	}
}

// hasMedia 判断消息是否携带媒体（与原始部署一致，纯文本频道消息不自动转发）
func hasMedia(msg *botModels.Message) bool {
	return len(msg.Photo) > 0 ||
		msg.Video != nil ||
		msg.Document != nil ||
		msg.Audio != nil ||
		msg.Voice != nil ||
		msg.Animation != nil
}

// chatMatches 判断频道是否为配置的源频道（数字 ID 或 @username）
func chatMatches(chat botModels.Chat, configured string) bool {
	if strconv.FormatInt(chat.ID, 10) == configured {
		return true
	}
	if chat.Username != "" && "@"+chat.Username == configured {
		return true
	}
	return false
}

// startErrorText 把控制器错误映射为用户可读的提示
func startErrorText(err error) string {
	switch {
	case errors.Is(err, forward.ErrNotConfigured):
		return "Please set config first with /setconfig"
	case errors.Is(err, forward.ErrJobActive):
		return "A forwarding job is already active. Use /stop or wait for it to finish."
	case errors.Is(err, forward.ErrNoActiveJob):
		return "No active forwarding to resume"
	case errors.Is(err, forward.ErrInvalidRange):
		return "Invalid message IDs"
	default:
		logger.L().Errorf("Forward command failed: %v", err)
		return "Something went wrong, please try again"
	}
}
