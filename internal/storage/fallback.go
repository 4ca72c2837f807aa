package storage

import (
	"context"
	"sync"
	"time"

	"content-api/internal/domain"
)

// FallbackStore encadeia um store primário (Redis) e um de contingência
// (memória). Quando o primário falha, a operação é repetida no fallback para
// que os chamadores nunca enxerguem a indisponibilidade; um health checker em
// segundo plano decide quando voltar ao primário.
type FallbackStore struct {
	primary  domain.CounterStore
	fallback domain.CounterStore
	logger   domain.Logger

	// Rastreamento de saúde do primário
	primaryHealthy bool
	failureCount   int
	recoveryCount  int
	mutex          sync.RWMutex

	healthInterval    time.Duration
	failureThreshold  int
	recoveryThreshold int

	stopHealthCheck chan struct{}
	stopOnce        sync.Once
}

// NewFallbackStore cria um novo FallbackStore e inicia o health checker
func NewFallbackStore(primary, fallback domain.CounterStore, logger domain.Logger) *FallbackStore {
	fs := &FallbackStore{
		primary:           primary,
		fallback:          fallback,
		logger:            logger,
		primaryHealthy:    true,
		healthInterval:    30 * time.Second,
		failureThreshold:  3,
		recoveryThreshold: 3,
		stopHealthCheck:   make(chan struct{}),
	}

	go fs.healthLoop()

	return fs
}

// active retorna o store que deve atender a próxima operação
func (fs *FallbackStore) active() domain.CounterStore {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	if fs.primaryHealthy {
		return fs.primary
	}
	return fs.fallback
}

// usingPrimary informa se o primário está ativo no momento
func (fs *FallbackStore) usingPrimary() bool {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()
	return fs.primaryHealthy
}

// recordFailure contabiliza uma falha do primário observada em chamada direta
func (fs *FallbackStore) recordFailure(err error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	fs.failureCount++
	fs.recoveryCount = 0

	if fs.primaryHealthy && fs.failureCount >= fs.failureThreshold {
		fs.primaryHealthy = false
		if fs.logger != nil {
			fs.logger.Warn("Primary counter store marked unhealthy, degrading to in-process store", map[string]interface{}{
				"failures": fs.failureCount,
				"error":    err.Error(),
			})
		}
	}
}

// healthLoop verifica o primário periodicamente e o reabilita quando estável
func (fs *FallbackStore) healthLoop() {
	ticker := time.NewTicker(fs.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fs.checkHealth()
		case <-fs.stopHealthCheck:
			return
		}
	}
}

// checkHealth executa um ping no primário e atualiza o estado de saúde
func (fs *FallbackStore) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := fs.primary.Health(ctx)

	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if err != nil {
		fs.failureCount++
		fs.recoveryCount = 0

		if fs.primaryHealthy && fs.failureCount >= fs.failureThreshold {
			fs.primaryHealthy = false
			if fs.logger != nil {
				fs.logger.Warn("Primary counter store marked unhealthy", map[string]interface{}{
					"failures": fs.failureCount,
				})
			}
		}
		return
	}

	fs.failureCount = 0
	fs.recoveryCount++

	if !fs.primaryHealthy && fs.recoveryCount >= fs.recoveryThreshold {
		fs.primaryHealthy = true
		if fs.logger != nil {
			fs.logger.Info("Primary counter store recovered", map[string]interface{}{
				"successful_checks": fs.recoveryCount,
			})
		}
	}
}

// Get recupera o valor de um contador
func (fs *FallbackStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if fs.usingPrimary() {
		value, ok, err := fs.primary.Get(ctx, key)
		if err == nil {
			return value, ok, nil
		}
		fs.recordFailure(err)
	}
	return fs.fallback.Get(ctx, key)
}

// Set grava o valor com TTL
func (fs *FallbackStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if fs.usingPrimary() {
		err := fs.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		fs.recordFailure(err)
	}
	return fs.fallback.Set(ctx, key, value, ttl)
}

// Increment incrementa o contador e retorna o novo valor
func (fs *FallbackStore) Increment(ctx context.Context, key string) (int64, error) {
	if fs.usingPrimary() {
		value, err := fs.primary.Increment(ctx, key)
		if err == nil {
			return value, nil
		}
		fs.recordFailure(err)
	}
	return fs.fallback.Increment(ctx, key)
}

// TTL retorna o tempo restante de uma chave
func (fs *FallbackStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if fs.usingPrimary() {
		remaining, ok, err := fs.primary.TTL(ctx, key)
		if err == nil {
			return remaining, ok, nil
		}
		fs.recordFailure(err)
	}
	return fs.fallback.TTL(ctx, key)
}

// Keys lista as chaves existentes com o prefixo informado
func (fs *FallbackStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if fs.usingPrimary() {
		keys, err := fs.primary.Keys(ctx, prefix)
		if err == nil {
			return keys, nil
		}
		fs.recordFailure(err)
	}
	return fs.fallback.Keys(ctx, prefix)
}

// DeleteByPrefix remove todas as chaves com o prefixo e retorna quantas
func (fs *FallbackStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if fs.usingPrimary() {
		count, err := fs.primary.DeleteByPrefix(ctx, prefix)
		if err == nil {
			return count, nil
		}
		fs.recordFailure(err)
	}
	return fs.fallback.DeleteByPrefix(ctx, prefix)
}

// Health reporta a saúde do store ativo
func (fs *FallbackStore) Health(ctx context.Context) error {
	return fs.active().Health(ctx)
}

// Close encerra o health checker e os dois stores
func (fs *FallbackStore) Close() error {
	fs.stopOnce.Do(func() {
		close(fs.stopHealthCheck)
	})

	var firstErr error
	if err := fs.primary.Close(); err != nil {
		firstErr = err
	}
	if err := fs.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Info retorna o estado atual do fallback para observabilidade
func (fs *FallbackStore) Info() map[string]interface{} {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	activeStore := "primary"
	if !fs.primaryHealthy {
		activeStore = "fallback"
	}

	return map[string]interface{}{
		"active_store":    activeStore,
		"primary_healthy": fs.primaryHealthy,
		"failure_count":   fs.failureCount,
		"recovery_count":  fs.recoveryCount,
	}
}
