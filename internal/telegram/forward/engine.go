package forward

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"
)

// Ledger 去重账本：引擎只需要查询和追加
type Ledger interface {
	AlreadyCopied(ctx context.Context, source, dest string, ids []int) (map[int]struct{}, error)
	RecordCopied(ctx context.Context, source, dest string, ids []int) error
}

// ProgressStore 进度存储：引擎只读写单例进度记录和停止标记
type ProgressStore interface {
	Load(ctx context.Context) (*models.ForwardProgress, error)
	Save(ctx context.Context, progress *models.ForwardProgress) error
	IsStopRequested(ctx context.Context) (bool, error)
}

// Notifier 进度回调（编辑状态消息等）
// 尽力而为：回调内的 panic 和错误都不会中断引擎循环
type Notifier func(progress *models.ForwardProgress)

// StopReason 运行挂起的原因
type StopReason string

const (
	// ReasonStopRequested 外部通过停止标记请求挂起
	ReasonStopRequested StopReason = "stop_requested"
	// ReasonBudgetExhausted 本次运行的时间预算用尽，需要新一轮调用续跑
	ReasonBudgetExhausted StopReason = "budget_exhausted"
)

// Config 引擎调优参数
type Config struct {
	BatchSize         int           // 每批消息数（上限 100，copyMessages 的硬限制）
	Concurrency       int           // 每轮并行派发的批次数，1 = 串行
	BatchDelay        time.Duration // 批次间延迟
	MaxRunDuration    time.Duration // 单次运行时间预算，0 = 不限制
	MaxRetries        int           // 单批次 429 重试上限
	DefaultRetryAfter time.Duration // 429 未携带 retry_after 时的等待时间
	SingleCopyRate    int           // 逐条补发速率（条/秒）
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 || c.BatchSize > 100 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 60 * time.Second
	}
	if c.SingleCopyRate <= 0 {
		c.SingleCopyRate = 20
	}
	return c
}

// Request 一次引擎运行的输入
type Request struct {
	Source  string
	Dest    string
	StartID int // 本次运行的起始消息 ID（恢复时已由控制器重算）
	EndID   int
	Resume  bool
	Notify  Notifier
}

// Result 一次引擎运行的汇总
type Result struct {
	Success       int
	Failed        int
	Skipped       int
	RateLimitHits int
	Batches       int
	NeedsResume   bool
	Reason        StopReason
}

// Engine 批量转发状态机
// 自身不持有任何无法从进度存储重建的权威状态，进程崩溃后可直接恢复
type Engine struct {
	copier Copier
	ledger Ledger
	store  ProgressStore
	cfg    Config

	// 注入时钟与睡眠，测试用
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine 创建转发引擎
func NewEngine(copier Copier, ledger Ledger, store ProgressStore, cfg Config) *Engine {
	return &Engine{
		copier: copier,
		ledger: ledger,
		store:  store,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// runState 单次运行的可变状态
type runState struct {
	source, dest string
	jobStartID   int // 任务最初的起始 ID（非恢复起点），持久化用
	endID        int
	batchSize    int
	totalBatches int
	batchNum     int
	success      int
	failed       int
	skipped      int
	rateHits     int
	startedAt    time.Time
}

func (st *runState) apply(out batchOutcome) {
	st.success += out.success
	st.failed += out.failed
	st.skipped += out.skipped
	st.rateHits += out.rateHits
}

type batchOutcome struct {
	success  int
	failed   int
	skipped  int
	rateHits int
}

// Run 执行一次批量转发
// 自然完成、外部停止或时间预算用尽时返回；基础设施故障返回错误，
// 游标已持久化，可通过恢复续跑
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.New().String()

	st := &runState{
		source:     req.Source,
		dest:       req.Dest,
		jobStartID: req.StartID,
		endID:      req.EndID,
		batchSize:  e.cfg.BatchSize,
		startedAt:  e.now(),
	}

	if req.Resume {
		prev, err := e.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load progress for resume: %w", err)
		}
		if prev != nil {
			st.success = prev.SuccessCount
			st.failed = prev.FailedCount
			st.skipped = prev.SkippedCount
			st.rateHits = prev.RateLimitHits
			st.batchNum = prev.CurrentBatch
			if prev.BatchSize > 0 {
				// 沿用任务持久化的批大小，配置变更不能破坏游标算术
				st.batchSize = prev.BatchSize
			}
			if prev.StartID > 0 {
				st.jobStartID = prev.StartID
			}
			if !prev.StartedAt.IsZero() {
				// 速度/ETA 按整个任务的起点计算，跨越暂停区间
				st.startedAt = prev.StartedAt
			}
		}
	}

	st.totalBatches = totalBatchCount(st.jobStartID, st.endID, st.batchSize)

	logger.L().Infof("Bulk forward run started: run_id=%s source=%s dest=%s range=[%d,%d] batch_size=%d concurrency=%d resume=%v",
		runID, st.source, st.dest, req.StartID, st.endID, st.batchSize, e.cfg.Concurrency, req.Resume)

	limiter := NewRateLimiter(e.cfg.SingleCopyRate)
	defer limiter.Close()

	runStart := e.now()
	currentID := req.StartID

	for currentID <= st.endID {
		// 停止检查只在批次边界做，正在进行的远程调用总是跑完
		stopped, err := e.store.IsStopRequested(ctx)
		if err != nil {
			logger.L().Warnf("Failed to read stop flag, assuming not stopped: run_id=%s err=%v", runID, err)
		}
		if stopped {
			return e.suspend(ctx, st, req.Notify, ReasonStopRequested, runID)
		}

		if e.cfg.MaxRunDuration > 0 && e.now().Sub(runStart) >= e.cfg.MaxRunDuration {
			return e.suspend(ctx, st, req.Notify, ReasonBudgetExhausted, runID)
		}

		// 组装本轮的连续批次窗口（串行模式下恰好一批）
		batches := make([][]int, 0, e.cfg.Concurrency)
		for len(batches) < e.cfg.Concurrency && currentID <= st.endID {
			batchEnd := currentID + st.batchSize - 1
			if batchEnd > st.endID {
				batchEnd = st.endID
			}
			ids := make([]int, 0, batchEnd-currentID+1)
			for id := currentID; id <= batchEnd; id++ {
				ids = append(ids, id)
			}
			batches = append(batches, ids)
			currentID = batchEnd + 1
		}

		if err := e.processWindow(ctx, st, batches, limiter, runID); err != nil {
			e.persist(ctx, st, currentID <= st.endID, req.Notify, runID)
			return nil, fmt.Errorf("bulk forward run %s aborted: %w", runID, err)
		}

		st.batchNum += len(batches)
		e.persist(ctx, st, currentID <= st.endID, req.Notify, runID)

		if e.cfg.BatchDelay > 0 && currentID <= st.endID {
			if err := e.sleep(ctx, e.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}
	}

	// 自然完成（空区间也走这里：零批次，计数全零）
	e.persist(ctx, st, false, req.Notify, runID)

	logger.L().Infof("Bulk forward run completed: run_id=%s success=%d failed=%d skipped=%d rate_limit_hits=%d batches=%d",
		runID, st.success, st.failed, st.skipped, st.rateHits, st.batchNum)

	return e.result(st, false, ""), nil
}

// processWindow 处理一轮批次窗口，计数合并到运行状态
func (e *Engine) processWindow(ctx context.Context, st *runState, batches [][]int, limiter *RateLimiter, runID string) error {
	if len(batches) == 1 {
		out, err := e.processBatch(ctx, st.source, st.dest, batches[0], limiter, runID)
		st.apply(out)
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, ids := range batches {
		wg.Add(1)
		go func(ids []int) {
			defer wg.Done()

			out, err := e.processBatch(ctx, st.source, st.dest, ids, limiter, runID)

			mu.Lock()
			defer mu.Unlock()
			st.apply(out)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}(ids)
	}

	wg.Wait()
	return firstErr
}

// processBatch 处理单个批次：去重查询、批量复制、限流重试与逐条降级
func (e *Engine) processBatch(ctx context.Context, source, dest string, ids []int, limiter *RateLimiter, runID string) (batchOutcome, error) {
	var out batchOutcome

	already, err := e.ledger.AlreadyCopied(ctx, source, dest, ids)
	if err != nil {
		return out, err
	}

	toForward := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := already[id]; !ok {
			toForward = append(toForward, id)
		}
	}
	out.skipped += len(ids) - len(toForward)

	if len(toForward) == 0 {
		return out, nil
	}

	attempts := 0
	for {
		result := e.copier.CopyBatch(ctx, source, dest, toForward)

		switch {
		case result.OK:
			out.success += len(toForward)
			if err := e.ledger.RecordCopied(ctx, source, dest, toForward); err != nil {
				return out, err
			}
			return out, nil

		case result.RateLimited:
			out.rateHits++
			attempts++
			if attempts >= e.cfg.MaxRetries {
				logger.L().Warnf("Rate limit retries exhausted, counting batch as failed: run_id=%s attempts=%d batch_len=%d",
					runID, attempts, len(toForward))
				out.failed += len(toForward)
				return out, nil
			}
			wait := result.RetryAfter
			if wait <= 0 {
				wait = e.cfg.DefaultRetryAfter
			}
			logger.L().Infof("Rate limited, waiting before retry: run_id=%s wait=%s attempt=%d/%d",
				runID, wait, attempts, e.cfg.MaxRetries)
			if err := e.sleep(ctx, wait); err != nil {
				return out, err
			}

		case result.Missing:
			// 个别已删除的消息会让整批调用被拒，逐条补发拯救其余消息
			logger.L().Infof("Batch copy rejected, falling back to single copies: run_id=%s batch_len=%d desc=%q",
				runID, len(toForward), result.Description)
			fallback, err := e.copyOneByOne(ctx, source, dest, toForward, limiter, runID)
			out.success += fallback.success
			out.failed += fallback.failed
			out.skipped += fallback.skipped
			out.rateHits += fallback.rateHits
			return out, err

		default:
			// 非限流、非缺失的拒绝视为不可重试，整批计失败，循环继续
			logger.L().Errorf("Batch copy failed: run_id=%s batch_len=%d desc=%q", runID, len(toForward), result.Description)
			out.failed += len(toForward)
			return out, nil
		}
	}
}

// copyOneByOne 逐条补发降级路径
// 成功计 success，源消息缺失计 skipped（已删除的消息不算转发失败），其余计 failed
func (e *Engine) copyOneByOne(ctx context.Context, source, dest string, ids []int, limiter *RateLimiter, runID string) (batchOutcome, error) {
	var out batchOutcome
	copied := make([]int, 0, len(ids))

	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return out, e.recordFallback(ctx, source, dest, copied, err)
		}

		result := e.copier.CopyOne(ctx, source, dest, id)
		switch {
		case result.OK:
			out.success++
			copied = append(copied, id)
		case result.Missing:
			out.skipped++
		default:
			if result.RateLimited {
				out.rateHits++
			}
			out.failed++
			logger.L().Debugf("Single copy failed: run_id=%s message_id=%d desc=%q", runID, id, result.Description)
		}
	}

	return out, e.recordFallback(ctx, source, dest, copied, nil)
}

// recordFallback 把逐条补发中已成功的 ID 写入账本，再返回原始错误
func (e *Engine) recordFallback(ctx context.Context, source, dest string, copied []int, cause error) error {
	if len(copied) > 0 {
		if err := e.ledger.RecordCopied(ctx, source, dest, copied); err != nil {
			return err
		}
	}
	return cause
}

// suspend 协作式挂起：落盘当前计数，通知观察者，返回需恢复的结果
func (e *Engine) suspend(ctx context.Context, st *runState, notify Notifier, reason StopReason, runID string) (*Result, error) {
	snap := e.snapshot(st, true)
	snap.StopRequested = reason == ReasonStopRequested

	if err := e.store.Save(ctx, snap); err != nil {
		logger.L().Errorf("Failed to persist suspension snapshot: run_id=%s err=%v", runID, err)
	}
	e.safeNotify(notify, snap, runID)

	logger.L().Infof("Bulk forward run suspended: run_id=%s reason=%s batch=%d/%d", runID, reason, st.batchNum, st.totalBatches)
	return e.result(st, true, reason), nil
}

// persist 落盘进度快照并通知观察者；每批之后都会调用，崩溃最多丢一批进度
func (e *Engine) persist(ctx context.Context, st *runState, active bool, notify Notifier, runID string) {
	snap := e.snapshot(st, active)
	if err := e.store.Save(ctx, snap); err != nil {
		logger.L().Errorf("Failed to save progress snapshot: run_id=%s err=%v", runID, err)
	}
	e.safeNotify(notify, snap, runID)
}

func (e *Engine) snapshot(st *runState, active bool) *models.ForwardProgress {
	totalCount := st.endID - st.jobStartID + 1
	if totalCount < 0 {
		totalCount = 0
	}

	speed := 0
	if active {
		speed = e.speed(st)
	}

	return &models.ForwardProgress{
		ID:            models.CurrentProgressID,
		SourceChannel: st.source,
		DestChannel:   st.dest,
		StartID:       st.jobStartID,
		EndID:         st.endID,
		BatchSize:     st.batchSize,
		CurrentBatch:  st.batchNum,
		TotalBatches:  st.totalBatches,
		SuccessCount:  st.success,
		FailedCount:   st.failed,
		SkippedCount:  st.skipped,
		TotalCount:    totalCount,
		RateLimitHits: st.rateHits,
		IsActive:      active,
		Speed:         speed,
		StartedAt:     st.startedAt,
		LastUpdatedAt: e.now(),
	}
}

// speed 成功条数/分钟，分母下限防零除
func (e *Engine) speed(st *runState) int {
	minutes := e.now().Sub(st.startedAt).Minutes()
	if minutes < 0.001 {
		minutes = 0.001
	}
	return int(math.Round(float64(st.success) / minutes))
}

func (e *Engine) result(st *runState, needsResume bool, reason StopReason) *Result {
	return &Result{
		Success:       st.success,
		Failed:        st.failed,
		Skipped:       st.skipped,
		RateLimitHits: st.rateHits,
		Batches:       st.batchNum,
		NeedsResume:   needsResume,
		Reason:        reason,
	}
}

// safeNotify 观察者回调的 panic 与错误都不允许打断引擎循环
func (e *Engine) safeNotify(notify Notifier, snap *models.ForwardProgress, runID string) {
	if notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorf("Progress notifier panicked: run_id=%s err=%v", runID, r)
		}
	}()
	notify(snap)
}

func totalBatchCount(startID, endID, batchSize int) int {
	total := endID - startID + 1
	if total <= 0 {
		return 0
	}
	return (total + batchSize - 1) / batchSize
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
