package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

const (
	packetsKey      = "abx:packets"
	latestKeyPrefix = "abx:latest:"
	sessionsChannel = "abx.sessions"
)

var _ Sink = (*Redis)(nil)

// Redis stores the batch as a list plus a latest-packet snapshot per symbol,
// then announces the session on a pub/sub channel.
type Redis struct {
	logger *zap.Logger
	client RedisClient
	ttl    time.Duration
}

func NewRedis(logger *zap.Logger, client RedisClient, ttl time.Duration) *Redis {
	return &Redis{logger: logger, client: client, ttl: ttl}
}

type sessionSummary struct {
	Packets  int   `json:"packets"`
	FirstSeq int32 `json:"first_seq"`
	LastSeq  int32 `json:"last_seq"`
	Written  int64 `json:"written_at"` // unix micro
}

func (r *Redis) Write(ctx context.Context, packets []models.Packet) error {
	// packets arrive sorted, so the last occurrence of a symbol is its latest
	latest := make(map[string][]byte)
	var order []string

	pipe := r.client.Pipeline()
	pipe.Del(ctx, packetsKey)
	for _, p := range packets {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode packet %d: %w", p.Sequence, err)
		}
		pipe.RPush(ctx, packetsKey, payload)
		if _, ok := latest[p.Symbol]; !ok {
			order = append(order, p.Symbol)
		}
		latest[p.Symbol] = payload
	}
	for _, sym := range order {
		pipe.Set(ctx, latestKeyPrefix+sym, latest[sym], r.ttl)
	}

	summary := sessionSummary{Packets: len(packets), Written: time.Now().UnixMicro()}
	if len(packets) > 0 {
		summary.FirstSeq = packets[0].Sequence
		summary.LastSeq = packets[len(packets)-1].Sequence
	}
	msg, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	pipe.Publish(ctx, sessionsChannel, msg)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	r.logger.Info("Batch stored in Redis", zap.Int("packets", len(packets)), zap.Int("symbols", len(order)))
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
