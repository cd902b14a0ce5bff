package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"
)

// progressWatcher 把引擎的进度快照渲染成一条不断编辑的状态消息
// 所有失败只记日志：观察者出错绝不能影响转发循环
type progressWatcher struct {
	bot    *bot.Bot
	chatID int64

	mu          sync.Mutex
	messageID   int
	lastEdit    time.Time
	minInterval time.Duration
}

func newProgressWatcher(b *bot.Bot, chatID int64) *progressWatcher {
	return &progressWatcher{
		bot:         b,
		chatID:      chatID,
		minInterval: 3 * time.Second,
	}
}

// Notify 实现 forward.Notifier
// 中间快照按 minInterval 节流，终态（完成/挂起）总是推送
func (w *progressWatcher) Notify(progress *models.ForwardProgress) {
	terminal := !progress.IsActive || progress.StopRequested

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if !terminal && now.Sub(w.lastEdit) < w.minInterval {
		return
	}
	w.lastEdit = now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := FormatProgress(progress)

	if w.messageID == 0 {
		msg, err := w.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    w.chatID,
			Text:      text,
			ParseMode: botModels.ParseModeHTML,
		})
		if err != nil {
			logger.L().Warnf("Failed to send progress message to chat %d: %v", w.chatID, err)
		} else {
			w.messageID = msg.ID
		}
	} else {
		_, err := w.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    w.chatID,
			MessageID: w.messageID,
			Text:      text,
			ParseMode: botModels.ParseModeHTML,
		})
		if err != nil {
			// 内容未变化时 Telegram 也会报错，降级为 debug
			logger.L().Debugf("Failed to edit progress message %d in chat %d: %v", w.messageID, w.chatID, err)
		}
	}

	if !progress.IsActive {
		summary := fmt.Sprintf(
			"✅ <b>Forwarding Complete!</b>\n\n✅ Success: %d\n❌ Failed: %d\n⏭️ Skipped: %d",
			progress.SuccessCount, progress.FailedCount, progress.SkippedCount,
		)
		if _, err := w.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    w.chatID,
			Text:      summary,
			ParseMode: botModels.ParseModeHTML,
		}); err != nil {
			logger.L().Warnf("Failed to send completion summary to chat %d: %v", w.chatID, err)
		}
	}
}

// FormatProgress 渲染进度文本，/progress 命令与状态消息共用
func FormatProgress(p *models.ForwardProgress) string {
	percent := 0
	if p.TotalCount > 0 {
		percent = p.SuccessCount * 100 / p.TotalCount
	}

	status := "✅ Complete"
	if p.IsActive {
		if p.StopRequested {
			status = "⏸️ Stopping"
		} else {
			status = "🔄 Running"
		}
	}

	return fmt.Sprintf(
		"📊 <b>Progress</b> %s\n\n"+
			"✅ Success: %d / %d (%d%%)\n"+
			"❌ Failed: %d\n"+
			"⏭️ Skipped: %d\n"+
			"⚡ Rate limits: %d\n"+
			"🚀 Speed: %d msgs/min\n"+
			"📦 Batch: %d / %d",
		status,
		p.SuccessCount, p.TotalCount, percent,
		p.FailedCount,
		p.SkippedCount,
		p.RateLimitHits,
		p.Speed,
		p.CurrentBatch, p.TotalBatches,
	)
}
