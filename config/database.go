package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"smelt"`
	Password string `env:"PASSWORD"                envDefault:"smelt"`
	Name     string `env:"NAME"                    envDefault:"smelt"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration. Redis backs the per-job broadcast
// channels and the prompt cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// CacheConfig contains prompt cache configuration (Redis-based).
type CacheConfig struct {
	// PromptTTL is the TTL for cached prompt bodies.
	PromptTTL time.Duration `env:"CACHE_PROMPT_TTL" envDefault:"30m"`
}
