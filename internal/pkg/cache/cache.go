package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// GetOrSet returns the cached value for key, computing and storing it via
// fn on a miss. Cache failures degrade to calling fn directly.
func GetOrSet(key string, expiration time.Duration, fn func() (string, error)) (string, error) {
	val, err := Get(key)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("Warning: cache read for %s failed: %v", key, err)
	}

	val, err = fn()
	if err != nil {
		return "", err
	}
	if err := Set(key, val, expiration); err != nil {
		log.Printf("Warning: cache write for %s failed: %v", key, err)
	}
	return val, nil
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// DeleteByPattern removes all keys matching the given glob pattern.
func DeleteByPattern(pattern string) error {
	iter := GetClient().Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := GetClient().Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
