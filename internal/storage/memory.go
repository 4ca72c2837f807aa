package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"content-api/internal/domain"
)

// entry guarda o valor e a expiração de uma chave em memória
type entry struct {
	value     int64
	expiresAt time.Time // zero = sem expiração
}

// expired informa se a entrada já passou do TTL
func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implementa a interface domain.CounterStore em memória.
// Usado como fallback quando o Redis está inacessível: a semântica é a mesma,
// mas a atomicidade vale apenas dentro do processo, degradando o sistema para
// rate limiting por processo.
type MemoryStore struct {
	data   map[string]entry
	mutex  sync.Mutex
	logger domain.Logger

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore cria uma nova instância do MemoryStore
func NewMemoryStore(logger domain.Logger) *MemoryStore {
	store := &MemoryStore{
		data:        make(map[string]entry),
		logger:      logger,
		stopJanitor: make(chan struct{}),
	}

	// Remove entradas expiradas periodicamente
	go store.janitor()

	if logger != nil {
		logger.Info("Memory store initialized", nil)
	}

	return store
}

// Get recupera o valor de um contador; entradas expiradas são tratadas
// como ausentes, nunca retornando valor velho
func (m *MemoryStore) Get(ctx context.Context, key string) (int64, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, exists := m.data[key]
	if !exists || e.expired(time.Now()) {
		return 0, false, nil
	}

	return e.value, true, nil
}

// Set grava o valor com TTL fixo da janela
func (m *MemoryStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.data[key] = e

	return nil
}

// Increment incrementa o contador e retorna o novo valor. Chave ausente ou
// expirada é recriada sem TTL, espelhando o comportamento do INCR do Redis.
func (m *MemoryStore) Increment(ctx context.Context, key string) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, exists := m.data[key]
	if !exists || e.expired(time.Now()) {
		e = entry{}
	}

	e.value++
	m.data[key] = e

	return e.value, nil
}

// TTL retorna o tempo restante de uma chave
func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	e, exists := m.data[key]
	if !exists || e.expired(now) || e.expiresAt.IsZero() {
		return 0, false, nil
	}

	return e.expiresAt.Sub(now), true, nil
}

// Keys lista as chaves existentes com o prefixo informado
func (m *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	var keys []string
	for key, e := range m.data {
		if strings.HasPrefix(key, prefix) && !e.expired(now) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// DeleteByPrefix remove todas as chaves com o prefixo e retorna quantas
func (m *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	deleted := 0
	for key, e := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
			if !e.expired(now) {
				deleted++
			}
		}
	}

	return deleted, nil
}

// Health verifica se o storage está saudável (sempre saudável em memória)
func (m *MemoryStore) Health(ctx context.Context) error {
	m.mutex.Lock()
	size := len(m.data)
	m.mutex.Unlock()

	if m.logger != nil {
		m.logger.Debug("Memory store health check", map[string]interface{}{
			"entries": size,
		})
	}

	return nil
}

// Close encerra o janitor e limpa os dados
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopJanitor)
	})

	m.mutex.Lock()
	m.data = make(map[string]entry)
	m.mutex.Unlock()

	if m.logger != nil {
		m.logger.Info("Memory store closed", nil)
	}
	return nil
}

// Info retorna o estado do store em memória para observabilidade
func (m *MemoryStore) Info() map[string]interface{} {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return map[string]interface{}{
		"entries": len(m.data),
		"type":    "memory",
	}
}

// janitor remove entradas expiradas periodicamente
func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stopJanitor:
			return
		}
	}
}

// removeExpired remove as entradas cujo TTL já passou
func (m *MemoryStore) removeExpired() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			removed++
		}
	}

	if removed > 0 && m.logger != nil {
		m.logger.Debug("Memory store cleanup completed", map[string]interface{}{
			"removed": removed,
		})
	}
}
