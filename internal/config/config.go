package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"content-api/internal/domain"
)

// LimiterConfig representa os parâmetros de um limiter de classe de rota
type LimiterConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort string
	GinMode    string

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Counter Store Configuration
	StoreType     string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Rate Limiting Configuration (uma entrada por classe de rota)
	APILimiter     LimiterConfig
	AuthLimiter    LimiterConfig
	UploadLimiter  LimiterConfig
	PaymentLimiter LimiterConfig

	// Política de admissão: false = soft (apenas headers), true = rejeita com 429
	RateLimitEnforce bool

	// Caminhos isentos de rate limiting (prefixos de assets estáticos)
	ExemptPrefixes []string

	// DDoS Guard Configuration
	BanThreshold  int
	BanDuration   time.Duration
	SweepInterval time.Duration
	BlockedIPs    []string
	MinUserAgent  int

	// Worker Configuration
	ImageMaxWidth int
	ImageQuality  int

	// Scheduled Maintenance Configuration
	DatabaseURL     string
	QuotaResetCron  string
	QuotaResetValue int
}

// Load carrega as configurações do .env e das variáveis de ambiente
func Load() (*Config, error) {
	// Carrega o arquivo .env se existir
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	cfg := &Config{
		ServerPort: getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:    getEnvWithDefault("GIN_MODE", "debug"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),

		StoreType:     getEnvWithDefault("STORE_TYPE", "redis"),
		RedisHost:     getEnvWithDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvWithDefault("REDIS_PASSWORD", ""),

		ExemptPrefixes: splitCSV(getEnvWithDefault("RATE_LIMIT_EXEMPT_PREFIXES", "/static")),
		BlockedIPs:     splitCSV(getEnvWithDefault("DDOS_BLOCKED_IPS", "")),

		DatabaseURL:    getEnvWithDefault("DATABASE_URL", ""),
		QuotaResetCron: getEnvWithDefault("QUOTA_RESET_CRON", "0 3 * * *"),
	}

	var err error

	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if cfg.APILimiter, err = loadLimiter("API", domain.ScopeAPI, 60); err != nil {
		return nil, err
	}
	if cfg.AuthLimiter, err = loadLimiter("AUTH", domain.ScopeAuth, 20); err != nil {
		return nil, err
	}
	if cfg.UploadLimiter, err = loadLimiter("UPLOAD", domain.ScopeUpload, 10); err != nil {
		return nil, err
	}
	if cfg.PaymentLimiter, err = loadLimiter("PAYMENT", domain.ScopePayment, 30); err != nil {
		return nil, err
	}

	cfg.RateLimitEnforce = getEnvBool("RATE_LIMIT_ENFORCE", false)

	if cfg.BanThreshold, err = getEnvInt("DDOS_BAN_THRESHOLD", 500); err != nil {
		return nil, err
	}

	banSeconds, err := getEnvInt("DDOS_BAN_DURATION_SECONDS", 1800)
	if err != nil {
		return nil, err
	}
	cfg.BanDuration = time.Duration(banSeconds) * time.Second

	sweepSeconds, err := getEnvInt("DDOS_SWEEP_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval = time.Duration(sweepSeconds) * time.Second

	if cfg.MinUserAgent, err = getEnvInt("DDOS_MIN_USER_AGENT_LENGTH", 10); err != nil {
		return nil, err
	}

	if cfg.ImageMaxWidth, err = getEnvInt("IMAGE_MAX_WIDTH", 1200); err != nil {
		return nil, err
	}
	if cfg.ImageQuality, err = getEnvInt("IMAGE_QUALITY", 80); err != nil {
		return nil, err
	}

	if cfg.QuotaResetValue, err = getEnvInt("QUOTA_RESET_VALUE", 10); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadLimiter carrega a configuração de um limiter a partir do prefixo de env
func loadLimiter(envPrefix string, scope domain.Scope, defaultMax int) (LimiterConfig, error) {
	maxRequests, err := getEnvInt("RATE_LIMIT_"+envPrefix+"_MAX", defaultMax)
	if err != nil {
		return LimiterConfig{}, err
	}

	windowSeconds, err := getEnvInt("RATE_LIMIT_"+envPrefix+"_WINDOW_SECONDS", 60)
	if err != nil {
		return LimiterConfig{}, err
	}

	return LimiterConfig{
		MaxRequests: maxRequests,
		Window:      time.Duration(windowSeconds) * time.Second,
		KeyPrefix:   string(scope),
	}, nil
}

// validate valida se as configurações são válidas
func (c *Config) validate() error {
	storeType := strings.ToLower(c.StoreType)
	if storeType != "redis" && storeType != "memory" {
		return fmt.Errorf("STORE_TYPE must be redis or memory, got: %s", c.StoreType)
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	for _, limiter := range []LimiterConfig{c.APILimiter, c.AuthLimiter, c.UploadLimiter, c.PaymentLimiter} {
		if limiter.MaxRequests <= 0 {
			return fmt.Errorf("rate limit max for %q must be greater than 0", limiter.KeyPrefix)
		}
		if limiter.Window <= 0 {
			return fmt.Errorf("rate limit window for %q must be greater than 0", limiter.KeyPrefix)
		}
	}

	if c.BanThreshold <= 0 {
		return fmt.Errorf("DDOS_BAN_THRESHOLD must be greater than 0")
	}

	if c.BanDuration <= 0 {
		return fmt.Errorf("DDOS_BAN_DURATION_SECONDS must be greater than 0")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("DDOS_SWEEP_INTERVAL_SECONDS must be greater than 0")
	}

	if c.MinUserAgent <= 0 {
		return fmt.Errorf("DDOS_MIN_USER_AGENT_LENGTH must be greater than 0")
	}

	if c.ImageQuality <= 0 || c.ImageQuality > 100 {
		return fmt.Errorf("IMAGE_QUALITY must be between 1 and 100")
	}

	if c.QuotaResetValue < 0 {
		return fmt.Errorf("QUOTA_RESET_VALUE must not be negative")
	}

	return nil
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retorna o valor inteiro de uma variável de ambiente
func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}

// getEnvBool retorna o valor booleano de uma variável de ambiente
func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// splitCSV separa uma lista de valores delimitados por vírgula
func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
