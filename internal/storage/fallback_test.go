package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore simula um counter store inacessível: toda operação falha
type brokenStore struct{}

var errUnreachable = errors.New("connection refused")

func (b *brokenStore) Get(ctx context.Context, key string) (int64, bool, error) {
	return 0, false, errUnreachable
}

func (b *brokenStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return errUnreachable
}

func (b *brokenStore) Increment(ctx context.Context, key string) (int64, error) {
	return 0, errUnreachable
}

func (b *brokenStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	return 0, false, errUnreachable
}

func (b *brokenStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, errUnreachable
}

func (b *brokenStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	return 0, errUnreachable
}

func (b *brokenStore) Health(ctx context.Context) error { return errUnreachable }

func (b *brokenStore) Close() error { return nil }

func TestFallbackStore_DelegatesToFallbackOnPrimaryError(t *testing.T) {
	memory := NewMemoryStore(nil)
	fs := NewFallbackStore(&brokenStore{}, memory, nil)
	defer fs.Close()
	ctx := context.Background()

	// Primário falha, mas o chamador nunca enxerga a indisponibilidade
	err := fs.Set(ctx, "api:1.2.3.4", 1, time.Minute)
	require.NoError(t, err)

	value, ok, err := fs.Get(ctx, "api:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), value)

	count, err := fs.Increment(ctx, "api:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestFallbackStore_MarksPrimaryUnhealthyAfterThreshold(t *testing.T) {
	memory := NewMemoryStore(nil)
	fs := NewFallbackStore(&brokenStore{}, memory, nil)
	defer fs.Close()
	ctx := context.Background()

	// Três falhas diretas atingem o threshold padrão
	for i := 0; i < 3; i++ {
		_, _, err := fs.Get(ctx, "api:x")
		require.NoError(t, err)
	}

	info := fs.Info()
	assert.Equal(t, "fallback", info["active_store"])
	assert.Equal(t, false, info["primary_healthy"])
}

func TestFallbackStore_HealthyPrimaryServesCalls(t *testing.T) {
	primary := NewMemoryStore(nil)
	fallback := NewMemoryStore(nil)
	fs := NewFallbackStore(primary, fallback, nil)
	defer fs.Close()
	ctx := context.Background()

	require.NoError(t, fs.Set(ctx, "api:1.2.3.4", 7, time.Minute))

	// O valor deve estar no primário, não no fallback
	value, ok, err := primary.Get(ctx, "api:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), value)

	_, ok, err = fallback.Get(ctx, "api:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
}
