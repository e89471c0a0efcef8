package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// details on available environment variables:
//   - database.go: PostgreSQL, Redis, and cache configuration
//   - llm.go: external generation/transcription provider configuration
//   - pipeline.go: job pipeline and audio preparation configuration
//   - observability.go: metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed guardrails).
	IsDev bool `env:"DEV" envDefault:"false"`

	// CredentialsEncryptionKey encrypts user-saved provider API keys at rest.
	// Must be 32 bytes when set; optional for development.
	CredentialsEncryptionKey string `env:"CREDENTIALS_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// External provider configuration
	LLM LLMConfig `envPrefix:"LLM_"`

	// Pipeline configuration
	Pipeline PipelineConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LLM.Sanitize()
	c.Pipeline.Sanitize()
	c.Observability.Sanitize()
}
