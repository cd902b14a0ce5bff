package repository

import (
	"context"

	"forward_bot/internal/telegram/models"
)

// BotConfigRepository 频道对配置数据访问接口
type BotConfigRepository interface {
	// Load 读取当前配置，不存在时返回 nil
	Load(ctx context.Context) (*models.BotConfig, error)

	// Save 保存配置（upsert 单例记录）
	Save(ctx context.Context, source, dest string) error
}

// ForwardProgressRepository 转发进度数据访问接口
// 读写都针对同一条单例记录；除 stop_requested 外引擎是唯一写入方
type ForwardProgressRepository interface {
	// Load 读取当前进度，不存在时返回 nil
	Load(ctx context.Context) (*models.ForwardProgress, error)

	// Save 整体覆盖进度快照（不触碰 stop_requested），刷新 last_updated_at
	Save(ctx context.Context, progress *models.ForwardProgress) error

	// IsStopRequested 读取协作式停止标记
	IsStopRequested(ctx context.Context) (bool, error)

	// RequestStop 只设置 stop_requested=true，不改动其他字段
	RequestStop(ctx context.Context) error

	// ClearStopRequest 清除停止标记（恢复转发时调用）
	ClearStopRequest(ctx context.Context) error
}

// ForwardedMessageRepository 已转发消息去重账本接口
type ForwardedMessageRepository interface {
	// AlreadyCopied 返回 ids 中已有记录的消息 ID 集合（单次最多 100 个）
	AlreadyCopied(ctx context.Context, source, dest string, ids []int) (map[int]struct{}, error)

	// RecordCopied 追加转发记录；重复插入同一条记录不报错
	RecordCopied(ctx context.Context, source, dest string, ids []int) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
