package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// defaultCacheTTL é o TTL aplicado quando o chamador não informa um
const defaultCacheTTL = time.Hour

// CacheStore define a interface de cache usada pelos use cases.
// Todas as operações são fail-open: uma falha no Redis é logada e tratada
// como miss (leituras) ou no-op (escritas), nunca propagada ao chamador.
type CacheStore interface {
	// Get desserializa o valor em dest e retorna true em caso de hit
	Get(ctx context.Context, key string, dest interface{}) bool

	// Set serializa o valor como JSON e grava com expiração
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)

	// Delete remove chaves individuais
	Delete(ctx context.Context, keys ...string)

	// DeleteByPattern remove todas as chaves que casam com o glob (ex: "product:*")
	DeleteByPattern(ctx context.Context, pattern string)

	// Exists verifica se a chave está presente
	Exists(ctx context.Context, key string) bool

	// Operações de hash, com a mesma semântica JSON-por-campo
	HSet(ctx context.Context, key, field string, value interface{})
	HGet(ctx context.Context, key, field string, dest interface{}) bool
	HGetAll(ctx context.Context, key string) map[string]string
	HDel(ctx context.Context, key string, fields ...string)
}

// redisCommands é o subconjunto de comandos do go-redis usado pelo cache
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// RedisCacheStore implementa CacheStore usando Redis
type RedisCacheStore struct {
	client redisCommands
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewRedisCacheStore cria uma nova instância de RedisCacheStore
func NewRedisCacheStore(client redisCommands) *RedisCacheStore {
	meter := otel.Meter("backend-cache")
	hits, _ := meter.Int64Counter("cache.hits")
	misses, _ := meter.Int64Counter("cache.misses")

	return &RedisCacheStore{
		client: client,
		hits:   hits,
		misses: misses,
	}
}

// Get busca e desserializa uma chave; qualquer erro vira miss
func (s *RedisCacheStore) Get(ctx context.Context, key string, dest interface{}) bool {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		s.misses.Add(ctx, 1, metric.WithAttributes(keyPrefixAttr(key)))
		return false
	}
	if err != nil {
		log.Printf("⚠️ cache get failed for %s: %v", key, err)
		s.misses.Add(ctx, 1, metric.WithAttributes(keyPrefixAttr(key)))
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		log.Printf("⚠️ cache unmarshal failed for %s: %v", key, err)
		return false
	}

	s.hits.Add(ctx, 1, metric.WithAttributes(keyPrefixAttr(key)))
	return true
}

// Set grava uma chave com TTL; falhas são apenas logadas
func (s *RedisCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("⚠️ cache marshal failed for %s: %v", key, err)
		return
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("⚠️ cache set failed for %s: %v", key, err)
	}
}

// Delete remove chaves individuais
func (s *RedisCacheStore) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("⚠️ cache delete failed for %v: %v", keys, err)
	}
}

// DeleteByPattern enumera e remove as chaves que casam com o padrão
func (s *RedisCacheStore) DeleteByPattern(ctx context.Context, pattern string) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		log.Printf("⚠️ cache keys scan failed for %s: %v", pattern, err)
		return
	}
	if len(keys) == 0 {
		return
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("⚠️ cache invalidation failed for %s: %v", pattern, err)
	}
}

// Exists verifica a presença de uma chave; erros contam como ausente
func (s *RedisCacheStore) Exists(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("⚠️ cache exists failed for %s: %v", key, err)
		return false
	}
	return n > 0
}

// HSet grava um campo JSON dentro de um hash
func (s *RedisCacheStore) HSet(ctx context.Context, key, field string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("⚠️ cache marshal failed for %s.%s: %v", key, field, err)
		return
	}

	if err := s.client.HSet(ctx, key, field, data).Err(); err != nil {
		log.Printf("⚠️ cache hset failed for %s.%s: %v", key, field, err)
	}
}

// HGet busca e desserializa um campo de um hash; qualquer erro vira miss
func (s *RedisCacheStore) HGet(ctx context.Context, key, field string, dest interface{}) bool {
	data, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("⚠️ cache hget failed for %s.%s: %v", key, field, err)
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		log.Printf("⚠️ cache unmarshal failed for %s.%s: %v", key, field, err)
		return false
	}
	return true
}

// HGetAll retorna todos os campos de um hash (valores ainda serializados);
// em caso de erro retorna um mapa vazio
func (s *RedisCacheStore) HGetAll(ctx context.Context, key string) map[string]string {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		log.Printf("⚠️ cache hgetall failed for %s: %v", key, err)
		return map[string]string{}
	}
	return fields
}

// HDel remove campos de um hash
func (s *RedisCacheStore) HDel(ctx context.Context, key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	if err := s.client.HDel(ctx, key, fields...).Err(); err != nil {
		log.Printf("⚠️ cache hdel failed for %s: %v", key, err)
	}
}

// keyPrefixAttr extrai o tipo de entidade da chave (parte antes do primeiro ':')
func keyPrefixAttr(key string) attribute.KeyValue {
	prefix := key
	if i := strings.Index(key, ":"); i > 0 {
		prefix = key[:i]
	}
	return attribute.String("cache.entity", prefix)
}
