package storage

import (
	"context"
	"fmt"
	"time"

	"content-api/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisStore implementa a interface domain.CounterStore usando Redis.
// É o único ponto de coordenação entre os processos da aplicação: o INCR
// do Redis garante a atomicidade dos incrementos entre instâncias.
type RedisStore struct {
	client redis.Cmdable
	logger domain.Logger
}

// NewRedisStore cria uma nova instância do RedisStore
func NewRedisStore(host, port, password string, db int, logger domain.Logger) (*RedisStore, error) {
	// Configura cliente Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		// Configurações de performance
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	// Testa a conexão
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"host": host,
			"port": port,
			"db":   db,
		})
	}

	return &RedisStore{
		client: rdb,
		logger: logger,
	}, nil
}

// Get recupera o valor de um contador
func (r *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	start := time.Now()

	value, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			r.logOperation("GET", key, true, time.Since(start), nil)
			return 0, false, nil
		}
		r.logOperation("GET", key, false, time.Since(start), err)
		return 0, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	r.logOperation("GET", key, true, time.Since(start), nil)
	return value, true, nil
}

// Set grava o valor com TTL fixo da janela
func (r *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	start := time.Now()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logOperation("SET", key, false, time.Since(start), err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	r.logOperation("SET", key, true, time.Since(start), nil)
	return nil
}

// Increment incrementa atomicamente o contador e retorna o novo valor.
// Não toca no TTL: a janela fica congelada até expirar.
func (r *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	start := time.Now()

	value, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.logOperation("INCR", key, false, time.Since(start), err)
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}

	r.logOperation("INCR", key, true, time.Since(start), nil)
	return value, nil
}

// TTL retorna o tempo restante de uma chave
func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	start := time.Now()

	remaining, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		r.logOperation("TTL", key, false, time.Since(start), err)
		return 0, false, fmt.Errorf("failed to get ttl for key %s: %w", key, err)
	}

	r.logOperation("TTL", key, true, time.Since(start), nil)

	// Valores negativos indicam chave inexistente (-2) ou sem expiração (-1)
	if remaining < 0 {
		return 0, false, nil
	}

	return remaining, true, nil
}

// Keys lista as chaves existentes com o prefixo informado
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()

	var keys []string
	var cursor uint64

	for {
		batch, next, err := r.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			r.logOperation("SCAN", prefix, false, time.Since(start), err)
			return nil, fmt.Errorf("failed to scan prefix %s: %w", prefix, err)
		}

		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logOperation("SCAN", prefix, true, time.Since(start), nil)
	return keys, nil
}

// DeleteByPrefix remove todas as chaves com o prefixo e retorna quantas
func (r *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	start := time.Now()

	keys, err := r.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		r.logOperation("DEL", prefix, false, time.Since(start), err)
		return 0, fmt.Errorf("failed to delete prefix %s: %w", prefix, err)
	}

	r.logOperation("DEL", prefix, true, time.Since(start), nil)
	return int(deleted), nil
}

// Health verifica se o storage está saudável
func (r *RedisStore) Health(ctx context.Context) error {
	start := time.Now()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logOperation("HEALTH", "ping", false, time.Since(start), err)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.logOperation("HEALTH", "ping", true, time.Since(start), nil)
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStore) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		if err := client.Close(); err != nil {
			if r.logger != nil {
				r.logger.Error("Failed to close Redis connection", err, nil)
			}
			return err
		}
		if r.logger != nil {
			r.logger.Info("Redis connection closed", nil)
		}
	}
	return nil
}

// logOperation registra operações de storage
func (r *RedisStore) logOperation(operation, key string, success bool, latency time.Duration, err error) {
	if r.logger == nil {
		return
	}

	fields := map[string]interface{}{
		"operation":  operation,
		"key":        key,
		"latency_ms": latency.Seconds() * 1000,
	}

	if success {
		r.logger.Debug("Storage operation completed", fields)
	} else {
		r.logger.Error("Storage operation failed", err, fields)
	}
}
