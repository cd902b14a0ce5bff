package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string  // Telegram Bot API Token
	BotOwnerIDs   []int64 // Bot管理员ID列表
	MongoURI      string  // MongoDB连接URI
	MongoDBName   string  // MongoDB数据库名称
	APIListenAddr string  // HTTP API 监听地址（空字符串表示关闭 API）
	Forward       ForwardConfig
}

// ForwardConfig 批量转发引擎配置
type ForwardConfig struct {
	BatchSize         int           // 每批消息数量（Telegram copyMessages 上限 100）
	Concurrency       int           // 并行批次数量（1 = 串行，默认）
	BatchDelay        time.Duration // 批次之间的延迟（降低限流风险）
	MaxRunDuration    time.Duration // 单次运行的时间预算（0 = 不限制）
	MaxRetries        int           // 单批次 429 重试上限
	DefaultRetryAfter time.Duration // 429 响应缺少 retry_after 时的等待时间
	SingleCopyRate    int           // 逐条补发时的速率（条/秒）
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "forward_bot"
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		APIListenAddr: ":8080",
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}

	if addr, ok := os.LookupEnv("API_LISTEN_ADDR"); ok {
		cfg.APIListenAddr = strings.TrimSpace(addr)
	}

	// 解析BOT_OWNER_IDS
	ownerIDsStr := os.Getenv("BOT_OWNER_IDS")
	if ownerIDsStr != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	forwardCfg, err := loadForwardConfig()
	if err != nil {
		return nil, err
	}
	cfg.Forward = forwardCfg

	return cfg, nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func loadForwardConfig() (ForwardConfig, error) {
	cfg := ForwardConfig{
		BatchSize:         100,
		Concurrency:       1,
		BatchDelay:        0,
		MaxRunDuration:    0,
		MaxRetries:        5,
		DefaultRetryAfter: 60 * time.Second,
		SingleCopyRate:    20,
	}

	batchSize, err := intEnv("BATCH_SIZE", cfg.BatchSize)
	if err != nil {
		return ForwardConfig{}, err
	}
	if batchSize < 1 || batchSize > 100 {
		return ForwardConfig{}, fmt.Errorf("BATCH_SIZE must be between 1 and 100, got %d", batchSize)
	}
	cfg.BatchSize = batchSize

	concurrency, err := intEnv("FORWARD_CONCURRENCY", cfg.Concurrency)
	if err != nil {
		return ForwardConfig{}, err
	}
	if concurrency < 1 {
		return ForwardConfig{}, fmt.Errorf("FORWARD_CONCURRENCY must be >= 1, got %d", concurrency)
	}
	cfg.Concurrency = concurrency

	delaySeconds, err := intEnv("BATCH_DELAY_SECONDS", 0)
	if err != nil {
		return ForwardConfig{}, err
	}
	if delaySeconds < 0 {
		return ForwardConfig{}, fmt.Errorf("BATCH_DELAY_SECONDS must be >= 0, got %d", delaySeconds)
	}
	cfg.BatchDelay = time.Duration(delaySeconds) * time.Second

	runMinutes, err := intEnv("MAX_RUN_MINUTES", 0)
	if err != nil {
		return ForwardConfig{}, err
	}
	if runMinutes < 0 {
		return ForwardConfig{}, fmt.Errorf("MAX_RUN_MINUTES must be >= 0, got %d", runMinutes)
	}
	cfg.MaxRunDuration = time.Duration(runMinutes) * time.Minute

	maxRetries, err := intEnv("MAX_RETRIES", cfg.MaxRetries)
	if err != nil {
		return ForwardConfig{}, err
	}
	if maxRetries < 1 {
		return ForwardConfig{}, fmt.Errorf("MAX_RETRIES must be >= 1, got %d", maxRetries)
	}
	cfg.MaxRetries = maxRetries

	retryAfterSeconds, err := intEnv("RETRY_AFTER_SECONDS", 60)
	if err != nil {
		return ForwardConfig{}, err
	}
	if retryAfterSeconds < 1 {
		return ForwardConfig{}, fmt.Errorf("RETRY_AFTER_SECONDS must be >= 1, got %d", retryAfterSeconds)
	}
	cfg.DefaultRetryAfter = time.Duration(retryAfterSeconds) * time.Second

	singleRate, err := intEnv("SINGLE_COPY_RATE", cfg.SingleCopyRate)
	if err != nil {
		return ForwardConfig{}, err
	}
	if singleRate < 1 {
		return ForwardConfig{}, fmt.Errorf("SINGLE_COPY_RATE must be >= 1, got %d", singleRate)
	}
	cfg.SingleCopyRate = singleRate

	return cfg, nil
}

// intEnv 解析整数环境变量，未设置时返回默认值
func intEnv(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return value, nil
}
