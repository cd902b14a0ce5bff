package models

import "time"

// BotConfig 频道对配置（单条记录，id 固定为 "current"）
// 频道标识保存为字符串：数字 ID（如 "-1001234567890"）或 "@username"
type BotConfig struct {
	ID            string    `bson:"_id" json:"-"`
	SourceChannel string    `bson:"source_channel" json:"sourceChannel"`
	DestChannel   string    `bson:"dest_channel" json:"destChannel"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updatedAt"`
}

// CurrentConfigID 单例配置记录的固定主键
const CurrentConfigID = "current"
