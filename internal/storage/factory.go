package storage

import (
	"fmt"
	"strings"

	"content-api/internal/domain"
)

// StoreType define os tipos de counter store disponíveis
type StoreType string

const (
	RedisStoreType  StoreType = "redis"
	MemoryStoreType StoreType = "memory"
)

// RedisConfig contém configurações específicas do Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	Database int
}

// StoreConfig contém configurações para criação do counter store
type StoreConfig struct {
	Type        StoreType
	RedisConfig *RedisConfig
}

// NewCounterStore cria o counter store conforme a configuração.
//
// Quando o tipo é redis e a conexão falha na inicialização, o sistema degrada
// para o store em memória em vez de abortar: a política é fail-open, com rate
// limiting por processo até o Redis voltar.
func NewCounterStore(config *StoreConfig, logger domain.Logger) (domain.CounterStore, error) {
	if config == nil {
		return nil, fmt.Errorf("store config cannot be nil")
	}

	switch StoreType(strings.ToLower(string(config.Type))) {
	case RedisStoreType:
		return newRedisWithFallback(config.RedisConfig, logger)
	case MemoryStoreType:
		return NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// newRedisWithFallback monta o Redis encadeado com o fallback em memória
func newRedisWithFallback(config *RedisConfig, logger domain.Logger) (domain.CounterStore, error) {
	if err := validateRedisConfig(config); err != nil {
		return nil, err
	}

	memory := NewMemoryStore(logger)

	redis, err := NewRedisStore(config.Host, config.Port, config.Password, config.Database, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("Redis unreachable at startup, degrading to in-process counter store", map[string]interface{}{
				"host":  config.Host,
				"port":  config.Port,
				"error": err.Error(),
			})
		}
		return memory, nil
	}

	return NewFallbackStore(redis, memory, logger), nil
}

// validateRedisConfig valida configuração do Redis
func validateRedisConfig(config *RedisConfig) error {
	if config == nil {
		return fmt.Errorf("redis config cannot be nil")
	}

	if config.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}

	if config.Port == "" {
		return fmt.Errorf("redis port cannot be empty")
	}

	if config.Database < 0 || config.Database > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got: %d", config.Database)
	}

	return nil
}
