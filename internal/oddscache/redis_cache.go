package oddscache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

// RedisCache guarda a última cotação por seleção de cada mercado de uma partida
// Client: cliente Redis
// TTL: tempo de expiração dos registros
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisCache cria uma instância de cache Redis com TTL configurável
func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// key gera a chave Redis (hash seleção -> odd) de um mercado
func key(fixtureID string, market domain.MarketType) string {
	return "odds:current:" + fixtureID + ":" + string(market)
}

// SetCurrent grava as odds do mercado e renova o TTL
func (r *RedisCache) SetCurrent(ctx context.Context, fixtureID string, market domain.MarketType, prices map[domain.Selection]float64) error {
	if len(prices) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(prices))
	for sel, odd := range prices {
		values[string(sel)] = strconv.FormatFloat(odd, 'f', -1, 64)
	}
	k := key(fixtureID, market)
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, k, values)
	if r.TTL > 0 {
		pipe.Expire(ctx, k, r.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Current devolve a odd atual de uma seleção; ok=false quando não há cotação
func (r *RedisCache) Current(ctx context.Context, fixtureID string, market domain.MarketType, sel domain.Selection) (float64, bool, error) {
	val, err := r.Client.HGet(ctx, key(fixtureID, market), string(sel)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	odd, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, err
	}
	return odd, true, nil
}

// Market devolve todas as odds atuais de um mercado
func (r *RedisCache) Market(ctx context.Context, fixtureID string, market domain.MarketType) (map[domain.Selection]float64, error) {
	vals, err := r.Client.HGetAll(ctx, key(fixtureID, market)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Selection]float64, len(vals))
	for sel, v := range vals {
		if odd, err := strconv.ParseFloat(v, 64); err == nil {
			out[domain.Selection(sel)] = odd
		}
	}
	return out, nil
}
