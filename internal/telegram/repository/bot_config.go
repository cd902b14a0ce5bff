package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type botConfigRepository struct {
	collection *mongo.Collection
}

// NewBotConfigRepository 创建配置仓储实例
func NewBotConfigRepository(db *mongo.Database) BotConfigRepository {
	return &botConfigRepository{
		collection: db.Collection("bot_config"),
	}
}

// Load 读取当前频道对配置
func (r *botConfigRepository) Load(ctx context.Context) (*models.BotConfig, error) {
	var cfg models.BotConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": models.CurrentConfigID}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}
	return &cfg, nil
}

// Save 保存频道对配置
func (r *botConfigRepository) Save(ctx context.Context, source, dest string) error {
	update := bson.M{
		"$set": bson.M{
			"source_channel": source,
			"dest_channel":   dest,
			"updated_at":     time.Now().UTC(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": models.CurrentConfigID}, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save bot config: %w", err)
	}
	return nil
}
