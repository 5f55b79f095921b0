package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AuthMode          string
	OIDCIssuerURL     string
	OIDCAudience      string
	OIDCJWKSURL       string
	OIDCClockSkewSecs int

	AdminAPIKey string

	AgentBaseURL string

	CanaryLambdaPerHour  float64
	CanaryMinIntervalMs  int
	CanaryTimeoutMs      int
	CircuitBreakerFloor  int
	GatingBundlePath     string
	SemanticJudgeEnabled bool

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		AuthMode:               os.Getenv("AUTH_MODE"),
		OIDCIssuerURL:          os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:           os.Getenv("OIDC_AUDIENCE"),
		OIDCJWKSURL:            os.Getenv("OIDC_JWKS_URL"),
		OIDCClockSkewSecs:      envIntDefault("OIDC_CLOCK_SKEW_SECONDS", 60),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		AgentBaseURL:           os.Getenv("AGENT_BASE_URL"),
		CanaryLambdaPerHour:    envFloatDefault("CANARY_LAMBDA_PER_HOUR", 0.2),
		CanaryMinIntervalMs:    envIntDefault("CANARY_MIN_INTERVAL_MS", 60000),
		CanaryTimeoutMs:        envIntDefault("CANARY_TIMEOUT_MS", 30000),
		CircuitBreakerFloor:    envIntDefault("CIRCUIT_BREAKER_FLOOR", 100),
		GatingBundlePath:       envDefault("GATING_BUNDLE_PATH", "policy/bundles/reference_v0"),
		SemanticJudgeEnabled:   envBoolDefault("SEMANTIC_JUDGE_ENABLED", false),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) CanaryMinInterval() time.Duration {
	if c.CanaryMinIntervalMs <= 0 {
		return 0
	}
	return time.Duration(c.CanaryMinIntervalMs) * time.Millisecond
}

func (c Config) CanaryTimeout() time.Duration {
	if c.CanaryTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.CanaryTimeoutMs) * time.Millisecond
}
