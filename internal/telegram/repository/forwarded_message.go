package repository

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type forwardedMessageRepository struct {
	collection *mongo.Collection
}

// NewForwardedMessageRepository 创建去重账本仓储实例
func NewForwardedMessageRepository(db *mongo.Database) ForwardedMessageRepository {
	return &forwardedMessageRepository{
		collection: db.Collection("forwarded_messages"),
	}
}

// AlreadyCopied 查询 ids 中已转发过的消息 ID
func (r *forwardedMessageRepository) AlreadyCopied(ctx context.Context, source, dest string, ids []int) (map[int]struct{}, error) {
	if len(ids) == 0 {
		return map[int]struct{}{}, nil
	}

	filter := bson.M{
		"source_channel":    source,
		"dest_channel":      dest,
		"source_message_id": bson.M{"$in": ids},
	}

	opts := options.Find().SetProjection(bson.M{"source_message_id": 1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query forwarded messages: %w", err)
	}
	defer cursor.Close(ctx)

	var records []struct {
		SourceMessageID int `bson:"source_message_id"`
	}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode forwarded messages: %w", err)
	}

	copied := make(map[int]struct{}, len(records))
	for _, record := range records {
		copied[record.SourceMessageID] = struct{}{}
	}
	return copied, nil
}

// RecordCopied 追加转发记录
// 使用无序批量插入并吞掉唯一键冲突，崩溃后重放同一批次不会报错也不会重复计数
func (r *forwardedMessageRepository) RecordCopied(ctx context.Context, source, dest string, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(ids))
	for i, id := range ids {
		docs[i] = &models.ForwardedMessage{
			SourceChannel:   source,
			DestChannel:     dest,
			SourceMessageID: id,
			CreatedAt:       now,
		}
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to record forwarded messages: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *forwardedMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 复合唯一索引：同一频道对的同一条消息只记录一次
		{
			Keys: bson.D{
				{Key: "source_channel", Value: 1},
				{Key: "dest_channel", Value: 1},
				{Key: "source_message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for forwarded_messages: %w", err)
	}
	return nil
}
