package forward

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
)

// CopyResult 远程复制调用的结构化结果
// 引擎根据它决定重试、降级还是计失败，不在这里做任何重试
type CopyResult struct {
	OK          bool
	RateLimited bool          // 429
	RetryAfter  time.Duration // 429 响应携带的建议等待时间（可能为 0）
	Missing     bool          // 源消息已删除/不存在
	Description string
}

// Copier 远程消息复制客户端
type Copier interface {
	// CopyBatch 批量复制，ids 非空且最多 100 个
	CopyBatch(ctx context.Context, source, dest string, ids []int) CopyResult

	// CopyOne 单条复制（批量失败后的降级路径，以及实时转发）
	CopyOne(ctx context.Context, source, dest string, id int) CopyResult
}

// TelegramCopier 基于 Bot API copyMessages/copyMessage 的实现
type TelegramCopier struct {
	bot *bot.Bot
}

// NewTelegramCopier 创建复制客户端
func NewTelegramCopier(b *bot.Bot) *TelegramCopier {
	return &TelegramCopier{bot: b}
}

// CopyBatch 调用 copyMessages 批量复制
func (c *TelegramCopier) CopyBatch(ctx context.Context, source, dest string, ids []int) CopyResult {
	_, err := c.bot.CopyMessages(ctx, &bot.CopyMessagesParams{
		ChatID:     chatRef(dest),
		FromChatID: chatRef(source),
		MessageIDs: ids,
	})
	return classifyCopyError(err)
}

// CopyOne 调用 copyMessage 复制单条消息
func (c *TelegramCopier) CopyOne(ctx context.Context, source, dest string, id int) CopyResult {
	_, err := c.bot.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     chatRef(dest),
		FromChatID: chatRef(source),
		MessageID:  id,
	})
	return classifyCopyError(err)
}

// chatRef 把字符串频道标识转成 Bot API 接受的 chat_id
// 数字字符串转 int64，"@username" 原样传递
func chatRef(channel string) any {
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id
	}
	return channel
}

// missingMessagePhrases Bot API 描述源消息不存在的已知文案
// 文案是自由文本，Telegram 改动措辞时需要同步更新
var missingMessagePhrases = []string{
	"message to copy not found",
	"message to forward not found",
	"message_id_invalid",
	"message identifier is not specified",
	"no messages to forward",
}

// classifyCopyError 把 Bot API 错误归类为结构化结果
func classifyCopyError(err error) CopyResult {
	if err == nil {
		return CopyResult{OK: true}
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return CopyResult{
			RateLimited: true,
			RetryAfter:  time.Duration(tooMany.RetryAfter) * time.Second,
			Description: tooMany.Message,
		}
	}

	desc := err.Error()
	lower := strings.ToLower(desc)
	for _, phrase := range missingMessagePhrases {
		if strings.Contains(lower, phrase) {
			return CopyResult{Missing: true, Description: desc}
		}
	}

	return CopyResult{Description: desc}
}
