package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps each namespace in a hash and announces changes on a
// per-namespace pub/sub channel, so tabs served by different instances
// see each other's writes.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

type redisEvent struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "fleetdash:storage"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) hashKey(ns string) string {
	return r.prefix + ":" + ns
}

func (r *Redis) channel(ns string) string {
	return r.prefix + ":" + ns + ":events"
}

func (r *Redis) Get(ctx context.Context, ns, key string) ([]byte, error) {
	v, err := r.rdb.HGet(ctx, r.hashKey(ns), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s/%s: %w", ns, key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, ns, key string, value []byte) error {
	msg, err := json.Marshal(redisEvent{Key: key, Value: value, Origin: OriginFrom(ctx)})
	if err != nil {
		return err
	}
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.hashKey(ns), key, value)
		pipe.Publish(ctx, r.channel(ns), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s/%s: %w", ns, key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, ns, key string) error {
	n, err := r.rdb.HDel(ctx, r.hashKey(ns), key).Result()
	if err != nil {
		return fmt.Errorf("redis hdel %s/%s: %w", ns, key, err)
	}
	if n == 0 {
		return nil
	}
	msg, err := json.Marshal(redisEvent{Key: key, Deleted: true, Origin: OriginFrom(ctx)})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel(ns), msg).Err(); err != nil {
		return fmt.Errorf("redis publish %s/%s: %w", ns, key, err)
	}
	return nil
}

func (r *Redis) Watch(ctx context.Context, ns string) (*Watcher, error) {
	sub := r.rdb.Subscribe(ctx, r.channel(ns))
	// wait for the subscription so no write made after Watch returns is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", ns, err)
	}

	origin := OriginFrom(ctx)
	w := newWatcher(watchBuffer)
	w.stop = func() { _ = sub.Close() }

	go func() {
		defer close(w.events)
		for msg := range sub.Channel() {
			var ev redisEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if origin != "" && ev.Origin == origin {
				continue
			}
			out := Event{Namespace: ns, Key: ev.Key, Origin: ev.Origin}
			if !ev.Deleted {
				out.NewValue = ev.Value
			}
			select {
			case w.events <- out:
			case <-w.done:
				return
			}
		}
	}()
	w.closeOnDone(ctx)
	return w, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
