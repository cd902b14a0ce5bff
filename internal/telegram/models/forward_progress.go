package models

import "time"

// ForwardProgress 当前转发任务的进度记录（单条，id 固定为 "current"）
// 每处理完一批就整体覆盖一次，不保留历史任务
type ForwardProgress struct {
	ID            string    `bson:"_id" json:"-"`
	SourceChannel string    `bson:"source_channel" json:"sourceChannel"`
	DestChannel   string    `bson:"dest_channel" json:"destChannel"`
	StartID       int       `bson:"start_id" json:"startId"`
	EndID         int       `bson:"end_id" json:"endId"`
	BatchSize     int       `bson:"batch_size" json:"batchSize"` // 随任务持久化，恢复时沿用，避免配置变更破坏游标算术
	CurrentBatch  int       `bson:"current_batch" json:"currentBatch"`
	TotalBatches  int       `bson:"total_batches" json:"totalBatches"`
	SuccessCount  int       `bson:"success_count" json:"successCount"`
	FailedCount   int       `bson:"failed_count" json:"failedCount"`
	SkippedCount  int       `bson:"skipped_count" json:"skippedCount"`
	TotalCount    int       `bson:"total_count" json:"totalCount"`
	RateLimitHits int       `bson:"rate_limit_hits" json:"rateLimitHits"`
	IsActive      bool      `bson:"is_active" json:"isActive"`
	StopRequested bool      `bson:"stop_requested" json:"stopRequested"`
	Speed         int       `bson:"speed" json:"speed"` // 成功条数/分钟，按任务开始时间计算
	StartedAt     time.Time `bson:"started_at" json:"startedAt"`
	LastUpdatedAt time.Time `bson:"last_updated_at" json:"lastUpdatedAt"`
}

// CurrentProgressID 单例进度记录的固定主键
const CurrentProgressID = "current"

// NextResumeID 计算恢复转发时的下一个消息 ID
// 用已完成批次数 × 批大小重建游标，而不是直接存 current_id
func (p *ForwardProgress) NextResumeID() int {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return p.StartID + p.CurrentBatch*batchSize
}

// Resumable 判断记录是否包含恢复转发所需的全部字段
func (p *ForwardProgress) Resumable() bool {
	return p.IsActive && p.SourceChannel != "" && p.DestChannel != "" && p.EndID > 0
}
