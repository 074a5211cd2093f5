package config

import (
	"errors"
	"strings"
	"time"
)

// StoreKind selects the job store backend.
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreRedis  StoreKind = "redis"
)

// StoreConfig selects and configures the job store.
type StoreConfig struct {
	Kind  StoreKind   `env:"JOB_STORE" envDefault:"memory"`
	Redis RedisConfig `envPrefix:"REDIS_"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string        `env:"URI"                  envDefault:"localhost:6379"`
	Password           string        `env:"PASSWORD"             envDefault:""`
	DB                 int           `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string      `env:"SENTINEL_NODES"`
	SentinelMasterName string        `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string        `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool          `env:"USE_SENTINEL"         envDefault:"false"`
	KeyPrefix          string        `env:"KEY_PREFIX"           envDefault:"idea-evaluator:job:"`
	JobTTL             time.Duration `env:"JOB_TTL"              envDefault:"168h"`
}

// Sanitize normalises store values.
func (c *StoreConfig) Sanitize() {
	c.Kind = StoreKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	if c.Kind == "" {
		c.Kind = StoreMemory
	}
	c.Redis.URI = strings.TrimSpace(c.Redis.URI)
	if c.Redis.JobTTL < 0 {
		c.Redis.JobTTL = 0
	}
}

// Validate reports unusable store settings.
func (c *StoreConfig) Validate() error {
	switch c.Kind {
	case StoreMemory:
		return nil
	case StoreRedis:
		if c.Redis.UseSentinel && len(c.Redis.SentinelNodes) == 0 {
			return errors.New("REDIS_SENTINEL_NODES is required when REDIS_USE_SENTINEL is set")
		}
		if !c.Redis.UseSentinel && c.Redis.URI == "" {
			return errors.New("REDIS_URI is required")
		}
		return nil
	default:
		return errors.New("JOB_STORE must be memory or redis")
	}
}
