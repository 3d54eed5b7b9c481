package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	OSS        OSSConfig        `mapstructure:"oss"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Rewards    RewardsConfig    `mapstructure:"rewards"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	AccessKeySecret string        `mapstructure:"access_key_secret"`
	BucketName      string        `mapstructure:"bucket_name"`
	CDNDomain       string        `mapstructure:"cdn_domain"`
	SignedURLExpire time.Duration `mapstructure:"signed_url_expire"`
}

// QueueConfig 任务队列与 worker 池配置
type QueueConfig struct {
	AnalysisQueue     string        `mapstructure:"analysis_queue"`
	MaxWorkers        int           `mapstructure:"max_workers"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	RateLimit         int           `mapstructure:"rate_limit"`  // 窗口内最多启动的任务数
	RateWindow        time.Duration `mapstructure:"rate_window"` // 限流窗口
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// CapabilityConfig 外部分析服务配置
type CapabilityConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Language      string        `mapstructure:"language"`
	VideoTimeout  time.Duration `mapstructure:"video_timeout"`
	SpeechTimeout time.Duration `mapstructure:"speech_timeout"`
	AudioTimeout  time.Duration `mapstructure:"audio_timeout"`
}

// Total 三个分析调用超时之和
func (c CapabilityConfig) Total() time.Duration {
	return c.VideoTimeout + c.SpeechTimeout + c.AudioTimeout
}

// RewardsConfig 奖励规则配置，为空时使用内置规则
type RewardsConfig struct {
	Rules []RewardRuleConfig `mapstructure:"rules"`
}

type RewardRuleConfig struct {
	ID        string                `mapstructure:"id"`
	Condition RewardConditionConfig `mapstructure:"condition"`
	Reward    RewardGrantConfig     `mapstructure:"reward"`
}

type RewardConditionConfig struct {
	Type   string  `mapstructure:"type"`
	Value  float64 `mapstructure:"value"`
	Metric string  `mapstructure:"metric"`
}

type RewardGrantConfig struct {
	Type string                 `mapstructure:"type"`
	Meta map[string]interface{} `mapstructure:"meta"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("oss.signed_url_expire", time.Hour)

	v.SetDefault("queue.analysis_queue", "analysis")
	v.SetDefault("queue.max_workers", 3)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.initial_backoff", 2*time.Second)
	v.SetDefault("queue.rate_limit", 10)
	v.SetDefault("queue.rate_window", time.Minute)
	v.SetDefault("queue.job_timeout", 5*time.Minute)
	v.SetDefault("queue.visibility_timeout", 10*time.Minute)
	v.SetDefault("queue.poll_timeout", 5*time.Second)

	v.SetDefault("capability.base_url", "http://localhost:8000")
	v.SetDefault("capability.language", "en")
	v.SetDefault("capability.video_timeout", 120*time.Second)
	v.SetDefault("capability.speech_timeout", 60*time.Second)
	v.SetDefault("capability.audio_timeout", 60*time.Second)
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验超时之间的约束：队列可见性超时 > 单任务超时 + 限流窗口，单任务超时 > 三个分析调用超时之和。
// 租约在 Pop 时建立，worker 之后还可能等待一个限流窗口才开始执行
func (c *Config) Validate() error {
	if c.Queue.MaxWorkers <= 0 {
		return fmt.Errorf("queue.max_workers must be positive, got %d", c.Queue.MaxWorkers)
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be positive, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.RateLimit <= 0 || c.Queue.RateWindow <= 0 {
		return fmt.Errorf("queue.rate_limit and queue.rate_window must be positive")
	}
	if c.Queue.JobTimeout <= c.Capability.Total() {
		return fmt.Errorf("queue.job_timeout (%s) must exceed the sum of capability timeouts (%s)",
			c.Queue.JobTimeout, c.Capability.Total())
	}
	if c.Queue.VisibilityTimeout <= c.Queue.JobTimeout+c.Queue.RateWindow {
		return fmt.Errorf("queue.visibility_timeout (%s) must exceed queue.job_timeout plus queue.rate_window (%s)",
			c.Queue.VisibilityTimeout, c.Queue.JobTimeout+c.Queue.RateWindow)
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be mysql or sqlite, got %q", c.Database.Driver)
	}
	return nil
}
