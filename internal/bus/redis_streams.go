package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreams implementa Bus sobre Redis Streams
// MaxLen: corte aproximado do stream no XADD (0 = sem limite)
type RedisStreams struct {
	Client *redis.Client
	MaxLen int64
}

func NewRedisStreams(c *redis.Client, maxLen int64) *RedisStreams {
	return &RedisStreams{Client: c, MaxLen: maxLen}
}

func (r *RedisStreams) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}
	if r.MaxLen > 0 {
		args.MaxLen = r.MaxLen
		args.Approx = true
	}
	id, err := r.Client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

func (r *RedisStreams) CreateGroup(ctx context.Context, stream, group string) error {
	// "0": o grupo novo recebe todo o histórico ainda retido no stream
	err := r.Client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", stream, group, err)
	}
	return nil
}

func (r *RedisStreams) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]Message, error) {
	ids := make([]string, 0, len(streams)*2)
	ids = append(ids, streams...)
	for range streams {
		ids = append(ids, ">")
	}
	// go-redis trata Block=0 como bloqueio infinito; -1 omite o BLOCK
	if block <= 0 {
		block = -1
	}
	res, err := r.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  ids,
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", group, err)
	}

	var out []Message
	for _, s := range res {
		out = append(out, toMessages(s.Stream, s.Messages)...)
	}
	return out, nil
}

func (r *RedisStreams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.Client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", stream, err)
	}
	return nil
}

// maxClaimPerPass limita quantas pendentes um único Claim transfere
const maxClaimPerPass = 1000

// Claim percorre a PEL com o cursor do XAUTOCLAIM em páginas de count até o
// fim (cursor "0-0") ou até maxClaimPerPass mensagens
func (r *RedisStreams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Message, error) {
	var out []Message
	start := "0-0"
	for len(out) < maxClaimPerPass {
		msgs, next, err := r.Client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("xautoclaim %s/%s: %w", stream, group, err)
		}
		out = append(out, toMessages(stream, msgs)...)
		if len(msgs) == 0 || next == "" || next == "0-0" {
			break
		}
		start = next
	}
	return out, nil
}

func toMessages(stream string, xs []redis.XMessage) []Message {
	out := make([]Message, 0, len(xs))
	for _, m := range xs {
		out = append(out, Message{ID: m.ID, Stream: stream, Fields: m.Values})
	}
	return out
}
