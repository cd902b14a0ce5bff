package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ForwardedMessage 已转发消息记录（去重账本）
// (source_channel, dest_channel, source_message_id) 唯一；存在即表示该消息已复制，永不重发
type ForwardedMessage struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	SourceChannel   string             `bson:"source_channel"`
	DestChannel     string             `bson:"dest_channel"`
	SourceMessageID int                `bson:"source_message_id"`
	CreatedAt       time.Time          `bson:"created_at"`
}
