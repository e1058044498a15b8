package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".agentguild/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"agentguild/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type SupervisorEnv struct {
	// RuntimeCommand is split with shell quoting rules; the supervisor appends
	// --agent-id, --port and --config.
	RuntimeCommand    string        `envconfig:"RUNTIME_COMMAND" default:"agentguild-runtime"`
	RuntimeDir        string        `envconfig:"RUNTIME_DIR" default:".agentguild/runtime"`
	PortMin           int           `envconfig:"RUNTIME_PORT_MIN" default:"41000"`
	PortMax           int           `envconfig:"RUNTIME_PORT_MAX" default:"41999"`
	StartTimeout      time.Duration `envconfig:"RUNTIME_START_TIMEOUT" default:"30s"`
	StopGracePeriod   time.Duration `envconfig:"RUNTIME_STOP_GRACE_PERIOD" default:"10s"`
	HealthTimeout     time.Duration `envconfig:"RUNTIME_HEALTH_TIMEOUT" default:"2s"`
	ReapInterval      time.Duration `envconfig:"RUNTIME_REAP_INTERVAL" default:"5s"`
	MaxHealthFailures int           `envconfig:"RUNTIME_MAX_HEALTH_FAILURES" default:"3"`
}

type SchedulerEnv struct {
	TickInterval          time.Duration `envconfig:"SCHEDULER_TICK_INTERVAL" default:"15s"`
	MaxConcurrentPerAgent int           `envconfig:"SCHEDULER_MAX_CONCURRENT_PER_AGENT" default:"2"`
	Timezone              string        `envconfig:"SCHEDULER_TIMEZONE" default:"Local"`
	LockTTL               time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"30s"`
}

type EventEnv struct {
	// StoreType is "memory" or "sqlite".
	StoreType        string `envconfig:"EVENT_STORE_TYPE" default:"memory"`
	SQLitePath       string `envconfig:"EVENT_SQLITE_PATH" default:".agentguild/events.db"`
	RingCapacity     int    `envconfig:"EVENT_RING_CAPACITY" default:"10000"`
	SubscriberBuffer int    `envconfig:"EVENT_SUBSCRIBER_BUFFER" default:"256"`
}

// RedisEnv enables the distributed task lease and the event stream mirror.
// Both stay off while URL is empty.
type RedisEnv struct {
	URL        string `envconfig:"REDIS_URL"`
	StreamKey  string `envconfig:"REDIS_EVENT_STREAM" default:"agentguild:events"`
	StreamMax  int64  `envconfig:"REDIS_EVENT_STREAM_MAXLEN" default:"100000"`
	LockPrefix string `envconfig:"REDIS_LOCK_PREFIX" default:"agentguild:task-lock:"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	SupervisorEnv
	SchedulerEnv
	EventEnv
	RedisEnv
	VAPIDEnv
}

const namespace = "AGENTGUILD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if env.PortMin <= 0 || env.PortMax < env.PortMin {
		return nil, fmt.Errorf("invalid runtime port range %d-%d", env.PortMin, env.PortMax)
	}
	if env.MaxConcurrentPerAgent < 1 {
		return nil, fmt.Errorf("SCHEDULER_MAX_CONCURRENT_PER_AGENT must be at least 1")
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

// Location resolves the scheduler timezone, falling back to time.Local.
func (e *SchedulerEnv) Location() *time.Location {
	if e.Timezone == "" || e.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		slog.Warn("unknown scheduler timezone, using local", "timezone", e.Timezone, "error", err)
		return time.Local
	}
	return loc
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func SupervisorEnvFromEnv(env *Env) *SupervisorEnv {
	return &env.SupervisorEnv
}

func SchedulerEnvFromEnv(env *Env) *SchedulerEnv {
	return &env.SchedulerEnv
}

func EventEnvFromEnv(env *Env) *EventEnv {
	return &env.EventEnv
}

func RedisEnvFromEnv(env *Env) *RedisEnv {
	return &env.RedisEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
