package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRedis simula o cliente Redis
type MockRedis struct {
	mock.Mock
}

func (m *MockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *MockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *MockRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedis) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	args := m.Called(ctx, pattern)
	return args.Get(0).(*redis.StringSliceCmd)
}

func (m *MockRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedis) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	args := m.Called(ctx, key, field)
	return args.Get(0).(*redis.StringCmd)
}

func (m *MockRedis) HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringStringMapCmd)
}

func (m *MockRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	args := m.Called(ctx, key, fields)
	return args.Get(0).(*redis.IntCmd)
}

var errRedisDown = errors.New("connection refused")

func TestCacheGetHit(t *testing.T) {
	// Arrange
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Get", ctx, "branch:b1").
		Return(redis.NewStringResult(`{"id":"b1","name":"Central"}`, nil))

	// Act
	var branch Branch
	hit := cache.Get(ctx, "branch:b1", &branch)

	// Assert
	assert.True(t, hit)
	assert.Equal(t, "b1", branch.ID)
	assert.Equal(t, "Central", branch.Name)
	mockRedis.AssertExpectations(t)
}

func TestCacheGetMiss(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Get", ctx, "branch:missing").
		Return(redis.NewStringResult("", redis.Nil))

	var branch Branch
	assert.False(t, cache.Get(ctx, "branch:missing", &branch))
}

// Falhas do Redis nunca chegam ao chamador: get vira miss
func TestCacheGetFailOpen(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Get", ctx, "branch:b1").
		Return(redis.NewStringResult("", errRedisDown))

	var branch Branch
	assert.False(t, cache.Get(ctx, "branch:b1", &branch))
}

// Valor corrompido no cache também vira miss
func TestCacheGetCorruptValue(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Get", ctx, "branch:b1").
		Return(redis.NewStringResult("not-json", nil))

	var branch Branch
	assert.False(t, cache.Get(ctx, "branch:b1", &branch))
}

// Falhas de escrita são engolidas: Set nunca retorna nem entra em pânico
func TestCacheSetFailOpen(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Set", ctx, "branch:b1", mock.Anything, listingCacheTTL).
		Return(redis.NewStatusResult("", errRedisDown))

	assert.NotPanics(t, func() {
		cache.Set(ctx, "branch:b1", Branch{ID: "b1"}, listingCacheTTL)
	})
	mockRedis.AssertExpectations(t)
}

func TestCacheSetDefaultTTL(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Set", ctx, "categories:all", mock.Anything, defaultCacheTTL).
		Return(redis.NewStatusResult("OK", nil))

	cache.Set(ctx, "categories:all", []Category{}, 0)
	mockRedis.AssertExpectations(t)
}

func TestCacheDeleteFailOpen(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Del", ctx, []string{"branch:b1"}).
		Return(redis.NewIntResult(0, errRedisDown))

	assert.NotPanics(t, func() {
		cache.Delete(ctx, "branch:b1")
	})
}

func TestCacheDeleteByPattern(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Keys", ctx, "product:*").
		Return(redis.NewStringSliceResult([]string{"product:p1:b1", "product:p2:b1"}, nil))
	mockRedis.On("Del", ctx, []string{"product:p1:b1", "product:p2:b1"}).
		Return(redis.NewIntResult(2, nil))

	cache.DeleteByPattern(ctx, "product:*")
	mockRedis.AssertExpectations(t)
}

// Sem chaves casando com o padrão, nenhum DEL é emitido
func TestCacheDeleteByPatternNoMatches(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Keys", ctx, "promotions:*").
		Return(redis.NewStringSliceResult([]string{}, nil))

	cache.DeleteByPattern(ctx, "promotions:*")
	mockRedis.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
}

func TestCacheDeleteByPatternFailOpen(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Keys", ctx, "product:*").
		Return(redis.NewStringSliceResult(nil, errRedisDown))

	assert.NotPanics(t, func() {
		cache.DeleteByPattern(ctx, "product:*")
	})
	mockRedis.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
}

func TestCacheExists(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Exists", ctx, []string{"branches:all"}).
		Return(redis.NewIntResult(1, nil))

	assert.True(t, cache.Exists(ctx, "branches:all"))
}

func TestCacheExistsFailOpen(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("Exists", ctx, []string{"branches:all"}).
		Return(redis.NewIntResult(0, errRedisDown))

	assert.False(t, cache.Exists(ctx, "branches:all"))
}

func TestCacheHashRoundTrip(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("HSet", ctx, "session:s1", mock.Anything).
		Return(redis.NewIntResult(1, nil))
	mockRedis.On("HGet", ctx, "session:s1", "cart").
		Return(redis.NewStringResult(`{"id":"b1"}`, nil))

	cache.HSet(ctx, "session:s1", "cart", Branch{ID: "b1"})

	var branch Branch
	assert.True(t, cache.HGet(ctx, "session:s1", "cart", &branch))
	assert.Equal(t, "b1", branch.ID)
}

func TestCacheHashFailOpen(t *testing.T) {
	mockRedis := new(MockRedis)
	cache := NewRedisCacheStore(mockRedis)
	ctx := context.Background()

	mockRedis.On("HGet", ctx, "session:s1", "cart").
		Return(redis.NewStringResult("", errRedisDown))
	mockRedis.On("HGetAll", ctx, "session:s1").
		Return(redis.NewStringStringMapResult(nil, errRedisDown))
	mockRedis.On("HDel", ctx, "session:s1", []string{"cart"}).
		Return(redis.NewIntResult(0, errRedisDown))

	var branch Branch
	assert.False(t, cache.HGet(ctx, "session:s1", "cart", &branch))
	assert.Empty(t, cache.HGetAll(ctx, "session:s1"))
	assert.NotPanics(t, func() {
		cache.HDel(ctx, "session:s1", "cart")
	})
}
