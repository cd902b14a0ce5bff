package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"forward_bot/internal/logger"
)

// RequireOwner 中间件：仅允许配置的 Owner 执行
// 未配置 BOT_OWNER_IDS 时不做限制（单人部署的默认形态）
func (b *Bot) RequireOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if len(b.ownerIDs) == 0 {
			next(ctx, botInstance, update)
			return
		}

		userID := update.Message.From.ID
		for _, ownerID := range b.ownerIDs {
			if ownerID == userID {
				next(ctx, botInstance, update)
				return
			}
		}

		logger.L().Warnf("Non-owner user %d attempted to use owner command", userID)
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "This command is restricted to the bot owner")
	}
}
