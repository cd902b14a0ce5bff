package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"
	"forward_bot/internal/telegram/repository"
)

var (
	// ErrNotConfigured 尚未设置频道对
	ErrNotConfigured = errors.New("bot is not configured")
	// ErrJobActive 已有转发任务在运行
	ErrJobActive = errors.New("a forwarding job is already active")
	// ErrNoActiveJob 没有可恢复的转发任务
	ErrNoActiveJob = errors.New("no active forwarding job to resume")
	// ErrInvalidRange 消息 ID 区间不合法
	ErrInvalidRange = errors.New("invalid message ID range")
)

// Runner 引擎抽象，便于控制器单测
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Controller 任务触发与恢复控制器
// 同一部署同一时刻只允许一个任务：进程内用 running 标记挡并发触发，
// 跨进程靠进度记录的 is_active 字段
type Controller struct {
	configRepo   repository.BotConfigRepository
	progressRepo repository.ForwardProgressRepository
	ledger       repository.ForwardedMessageRepository
	copier       Copier
	engine       Runner
	batchSize    int

	mu      sync.Mutex
	running bool
}

// NewController 创建控制器
func NewController(
	configRepo repository.BotConfigRepository,
	progressRepo repository.ForwardProgressRepository,
	ledger repository.ForwardedMessageRepository,
	copier Copier,
	engine Runner,
	batchSize int,
) *Controller {
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &Controller{
		configRepo:   configRepo,
		progressRepo: progressRepo,
		ledger:       ledger,
		copier:       copier,
		engine:       engine,
		batchSize:    batchSize,
	}
}

// SetConfig 保存频道对配置
func (c *Controller) SetConfig(ctx context.Context, source, dest string) error {
	if source == "" || dest == "" {
		return fmt.Errorf("source and dest channels cannot be empty")
	}
	return c.configRepo.Save(ctx, source, dest)
}

// Config 读取频道对配置，未配置时返回 nil
func (c *Controller) Config(ctx context.Context) (*models.BotConfig, error) {
	return c.configRepo.Load(ctx)
}

// Start 启动新的批量转发任务
// startID > endID 的空区间是合法任务，立即完成；已有活跃任务时拒绝
func (c *Controller) Start(ctx context.Context, startID, endID int, notify Notifier) (*models.ForwardProgress, error) {
	if startID < 1 || endID < 1 {
		return nil, ErrInvalidRange
	}

	cfg, err := c.configRepo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.progressRepo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if c.running || (prev != nil && prev.IsActive) {
		return nil, ErrJobActive
	}

	totalCount := endID - startID + 1
	if totalCount < 0 {
		totalCount = 0
	}

	record := &models.ForwardProgress{
		ID:            models.CurrentProgressID,
		SourceChannel: cfg.SourceChannel,
		DestChannel:   cfg.DestChannel,
		StartID:       startID,
		EndID:         endID,
		BatchSize:     c.batchSize,
		TotalBatches:  totalBatchCount(startID, endID, c.batchSize),
		TotalCount:    totalCount,
		IsActive:      true,
		StartedAt:     time.Now().UTC(),
	}

	if err := c.progressRepo.Save(ctx, record); err != nil {
		return nil, err
	}
	if err := c.progressRepo.ClearStopRequest(ctx); err != nil {
		return nil, err
	}

	c.running = true
	go c.runJob(Request{
		Source:  cfg.SourceChannel,
		Dest:    cfg.DestChannel,
		StartID: startID,
		EndID:   endID,
		Notify:  notify,
	})

	return record, nil
}

// Resume 从持久化游标恢复被中断的任务
func (c *Controller) Resume(ctx context.Context, notify Notifier) (*models.ForwardProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil, ErrJobActive
	}

	req, progress, err := c.buildResumeRequest(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.progressRepo.ClearStopRequest(ctx); err != nil {
		return nil, err
	}

	req.Notify = notify
	c.running = true
	go c.runJob(*req)

	return progress, nil
}

// Stop 请求协作式停止；不等待引擎真正观察到标记
func (c *Controller) Stop(ctx context.Context) error {
	return c.progressRepo.RequestStop(ctx)
}

// Progress 返回最近一次持久化的进度快照
func (c *Controller) Progress(ctx context.Context) (*models.ForwardProgress, error) {
	return c.progressRepo.Load(ctx)
}

// Status 返回配置与进度，供 /status 命令和 API 使用
func (c *Controller) Status(ctx context.Context) (*models.BotConfig, *models.ForwardProgress, error) {
	cfg, err := c.configRepo.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	progress, err := c.progressRepo.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cfg, progress, nil
}

// ForwardNew 实时转发源频道新到的单条消息
// 与批量路径共用账本：先查重，复制成功后记账
func (c *Controller) ForwardNew(ctx context.Context, messageID int) error {
	cfg, err := c.configRepo.Load(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotConfigured
	}

	already, err := c.ledger.AlreadyCopied(ctx, cfg.SourceChannel, cfg.DestChannel, []int{messageID})
	if err != nil {
		return err
	}
	if _, ok := already[messageID]; ok {
		return nil
	}

	result := c.copier.CopyOne(ctx, cfg.SourceChannel, cfg.DestChannel, messageID)
	switch {
	case result.OK:
		return c.ledger.RecordCopied(ctx, cfg.SourceChannel, cfg.DestChannel, []int{messageID})
	case result.Missing:
		// 消息在复制前被删除，不算错误
		return nil
	default:
		return fmt.Errorf("failed to copy message %d: %s", messageID, result.Description)
	}
}

// buildResumeRequest 从进度记录重算恢复起点
// 下一个未处理的 ID = start_id + current_batch × batch_size（使用记录里的批大小）
func (c *Controller) buildResumeRequest(ctx context.Context) (*Request, *models.ForwardProgress, error) {
	progress, err := c.progressRepo.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if progress == nil || !progress.Resumable() {
		return nil, nil, ErrNoActiveJob
	}

	return &Request{
		Source:  progress.SourceChannel,
		Dest:    progress.DestChannel,
		StartID: progress.NextResumeID(),
		EndID:   progress.EndID,
		Resume:  true,
	}, progress, nil
}

// runJob 后台执行引擎；时间预算用尽时自我恢复，续跑持久化的游标
func (c *Controller) runJob(req Request) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	ctx := context.Background()
	notify := req.Notify

	for {
		result, err := c.engine.Run(ctx, req)
		if err != nil {
			logger.L().Errorf("Bulk forward run aborted: %v", err)
			return
		}

		if result.NeedsResume && result.Reason == ReasonBudgetExhausted {
			next, _, err := c.buildResumeRequest(ctx)
			if err != nil {
				logger.L().Errorf("Self-resume failed: %v", err)
				return
			}
			logger.L().Infof("Run budget exhausted, self-resuming from message %d", next.StartID)
			next.Notify = notify
			req = *next
			continue
		}

		return
	}
}
