package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCounterStore_Memory(t *testing.T) {
	store, err := NewCounterStore(&StoreConfig{Type: MemoryStoreType}, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &MemoryStore{}, store)
}

func TestNewCounterStore_NilConfig(t *testing.T) {
	_, err := NewCounterStore(nil, nil)
	assert.Error(t, err)
}

func TestNewCounterStore_UnsupportedType(t *testing.T) {
	_, err := NewCounterStore(&StoreConfig{Type: "etcd"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")
}

func TestNewCounterStore_RedisUnreachableDegradesToMemory(t *testing.T) {
	// Porta 1 em loopback recusa conexão imediatamente; a política é
	// degradar para memória em vez de abortar a inicialização
	store, err := NewCounterStore(&StoreConfig{
		Type: RedisStoreType,
		RedisConfig: &RedisConfig{
			Host: "127.0.0.1",
			Port: "1",
		},
	}, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &MemoryStore{}, store)
}

func TestNewCounterStore_InvalidRedisConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *RedisConfig
	}{
		{name: "nil redis config", config: nil},
		{name: "empty host", config: &RedisConfig{Port: "6379"}},
		{name: "empty port", config: &RedisConfig{Host: "localhost"}},
		{name: "database out of range", config: &RedisConfig{Host: "localhost", Port: "6379", Database: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCounterStore(&StoreConfig{
				Type:        RedisStoreType,
				RedisConfig: tt.config,
			}, nil)
			assert.Error(t, err)
		})
	}
}
