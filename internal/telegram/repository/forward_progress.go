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

type forwardProgressRepository struct {
	collection *mongo.Collection
}

// NewForwardProgressRepository 创建进度仓储实例
func NewForwardProgressRepository(db *mongo.Database) ForwardProgressRepository {
	return &forwardProgressRepository{
		collection: db.Collection("forwarding_progress"),
	}
}

// Load 读取当前进度记录
func (r *forwardProgressRepository) Load(ctx context.Context) (*models.ForwardProgress, error) {
	var progress models.ForwardProgress
	err := r.collection.FindOne(ctx, bson.M{"_id": models.CurrentProgressID}).Decode(&progress)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load forward progress: %w", err)
	}
	return &progress, nil
}

// Save 整体覆盖进度快照
// 刻意不写 stop_requested：该字段由外部取消方独立设置，
// 批次间的快照写入不能把并发到达的停止请求冲掉
func (r *forwardProgressRepository) Save(ctx context.Context, progress *models.ForwardProgress) error {
	update := bson.M{
		"$set": bson.M{
			"source_channel":  progress.SourceChannel,
			"dest_channel":    progress.DestChannel,
			"start_id":        progress.StartID,
			"end_id":          progress.EndID,
			"batch_size":      progress.BatchSize,
			"current_batch":   progress.CurrentBatch,
			"total_batches":   progress.TotalBatches,
			"success_count":   progress.SuccessCount,
			"failed_count":    progress.FailedCount,
			"skipped_count":   progress.SkippedCount,
			"total_count":     progress.TotalCount,
			"rate_limit_hits": progress.RateLimitHits,
			"is_active":       progress.IsActive,
			"speed":           progress.Speed,
			"started_at":      progress.StartedAt,
			"last_updated_at": time.Now().UTC(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": models.CurrentProgressID}, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save forward progress: %w", err)
	}
	return nil
}

// IsStopRequested 读取协作式停止标记
func (r *forwardProgressRepository) IsStopRequested(ctx context.Context) (bool, error) {
	var result struct {
		StopRequested bool `bson:"stop_requested"`
	}

	opts := options.FindOne().SetProjection(bson.M{"stop_requested": 1})
	err := r.collection.FindOne(ctx, bson.M{"_id": models.CurrentProgressID}, opts).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read stop flag: %w", err)
	}
	return result.StopRequested, nil
}

// RequestStop 设置停止标记
func (r *forwardProgressRepository) RequestStop(ctx context.Context) error {
	return r.setStopFlag(ctx, true)
}

// ClearStopRequest 清除停止标记
func (r *forwardProgressRepository) ClearStopRequest(ctx context.Context) error {
	return r.setStopFlag(ctx, false)
}

func (r *forwardProgressRepository) setStopFlag(ctx context.Context, value bool) error {
	update := bson.M{"$set": bson.M{"stop_requested": value}}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": models.CurrentProgressID}, update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set stop flag to %v: %w", value, err)
	}
	return nil
}
