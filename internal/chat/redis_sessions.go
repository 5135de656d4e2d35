package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ensure RedisSessions implements the interface.
var _ Sessions = (*RedisSessions)(nil)

const appendAttempts = 5

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	IdleTTL  time.Duration
}

// RedisSessions keeps each session as a JSON value whose key expires after
// IdleTTL without activity. Capacity is bounded by the server's maxmemory
// policy rather than by this process.
type RedisSessions struct {
	client  *redis.Client
	prefix  string
	idleTTL time.Duration
	now     func() time.Time
}

// NewRedisSessions connects and pings the server.
func NewRedisSessions(cfg RedisConfig) (*RedisSessions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisSessions(client, cfg), nil
}

func newRedisSessions(client *redis.Client, cfg RedisConfig) *RedisSessions {
	if cfg.Prefix == "" {
		cfg.Prefix = "attachmentflow:session:"
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &RedisSessions{client: client, prefix: cfg.Prefix, idleTTL: cfg.IdleTTL, now: time.Now}
}

func (r *RedisSessions) key(id string) string { return r.prefix + id }

func (r *RedisSessions) Create(ctx context.Context) (*Session, error) {
	now := r.now().UTC()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, LastSeen: now}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := r.client.SetNX(ctx, r.key(s.ID), data, r.idleTTL).Err(); err != nil {
		return nil, fmt.Errorf("redis set: %w", err)
	}
	return s, nil
}

func (r *RedisSessions) Get(ctx context.Context, id string) (*Session, error) {
	return r.load(ctx, r.client, id)
}

// Append updates the session under WATCH so concurrent messages for the
// same id do not drop each other's turns.
func (r *RedisSessions) Append(ctx context.Context, id string, turns ...Turn) (*Session, error) {
	key := r.key(id)
	var updated *Session
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, id)
		now := r.now().UTC()
		if errors.Is(err, ErrSessionNotFound) {
			s = &Session{ID: id, CreatedAt: now}
		} else if err != nil {
			return err
		}
		s.Turns = append(s.Turns, turns...)
		s.LastSeen = now
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, r.idleTTL)
			return nil
		})
		if err == nil {
			updated = s
		}
		return err
	}

	for range appendAttempts {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis append: %w", err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("redis append: session %s changed concurrently %d times", id, appendAttempts)
}

func (r *RedisSessions) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (r *RedisSessions) Close() error {
	return r.client.Close()
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisSessions) load(ctx context.Context, c getter, id string) (*Session, error) {
	data, err := c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}
