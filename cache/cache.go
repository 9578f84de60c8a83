package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

// Init connects the feed cache. An empty addr leaves caching disabled; all
// helpers degrade to no-ops on a nil client.
func Init(addr string) {
	if addr == "" {
		return
	}

	Client = redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable, feed cache disabled: %v", err)
		Client = nil
		return
	}

	log.Println("Redis feed cache connected")
}

func FeedKey(page, limit int) string {
	return fmt.Sprintf("feed:%d:%d", page, limit)
}

// GetJSON attempts to get the key and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if Client == nil {
		return false, nil
	}
	s, err := Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if Client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return Client.Set(ctx, key, b, ttl).Err()
}

// InvalidateFeed drops every cached feed page. Called after any post
// mutation; best-effort.
func InvalidateFeed(ctx context.Context) {
	if Client == nil {
		return
	}
	iter := Client.Scan(ctx, 0, "feed:*", 100).Iterator()
	for iter.Next(ctx) {
		_ = Client.Del(ctx, iter.Val()).Err()
	}
	if err := iter.Err(); err != nil {
		log.Printf("Feed cache invalidation error: %v", err)
	}
}
