package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/flalad/chat-room/internal/models"
)

const (
	messagesKey = "chat:messages" // sorted set: member = message JSON, score = seq
	seqKey      = "chat:seq"      // append counter providing the global order
	idIndexKey  = "chat:ids"      // hash: message ID -> seq, for delta cursors
)

// RedisStore persists the message log in Redis. The append counter gives
// the same total order the SQL backends get from their serial column.
type RedisStore struct {
	client    *redis.Client
	mu        sync.Mutex // serializes appends so seq order matches ID order
	retention int
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, retention int) (*RedisStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, retention: retention}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Append stamps the message and stores it under the next sequence number.
func (s *RedisStore) Append(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, messagesKey, redis.Z{Score: float64(seq), Member: string(data)})
	pipe.HSet(ctx, idIndexKey, msg.ID, seq)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	s.trim(ctx)
	return nil
}

// trim drops entries beyond the retention cap. Best-effort; failures here
// never fail the append.
func (s *RedisStore) trim(ctx context.Context) {
	card, err := s.client.ZCard(ctx, messagesKey).Result()
	if err != nil || card <= int64(s.retention) {
		return
	}

	excess := card - int64(s.retention)
	expired, err := s.client.ZRange(ctx, messagesKey, 0, excess-1).Result()
	if err != nil {
		return
	}

	ids := make([]string, 0, len(expired))
	for _, data := range expired {
		var msg models.Message
		if json.Unmarshal([]byte(data), &msg) == nil {
			ids = append(ids, msg.ID)
		}
	}

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByRank(ctx, messagesKey, 0, excess-1)
	if len(ids) > 0 {
		pipe.HDel(ctx, idIndexKey, ids...)
	}
	_, _ = pipe.Exec(ctx)
}

// Recent returns the newest limit messages, oldest first.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	results, err := s.client.ZRange(ctx, messagesKey, int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	return unmarshalMessages(results), nil
}

// Delta returns messages strictly after afterID, oldest first. An unknown
// cursor degrades to Recent.
func (s *RedisStore) Delta(ctx context.Context, afterID string, limit int) ([]models.Message, error) {
	if afterID == "" {
		return s.Recent(ctx, limit)
	}

	seq, err := s.client.HGet(ctx, idIndexKey, afterID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.Recent(ctx, limit)
		}
		return nil, err
	}

	results, err := s.client.ZRangeByScore(ctx, messagesKey, &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%s", seq), // exclusive
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return unmarshalMessages(results), nil
}

// Clear purges all messages and returns the number removed.
func (s *RedisStore) Clear(ctx context.Context) (int64, error) {
	card, err := s.client.ZCard(ctx, messagesKey).Result()
	if err != nil {
		return 0, err
	}
	if err := s.client.Del(ctx, messagesKey, idIndexKey, seqKey).Err(); err != nil {
		return 0, err
	}
	return card, nil
}

func unmarshalMessages(results []string) []models.Message {
	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
