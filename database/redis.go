package database

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

var Redis *redis.Client
var Ctx = context.Background()

// InitRedis opens the redis connection used by the rate limiting middleware.
// The application works without redis; callers treat a nil client as "no limit".
func InitRedis() error {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")
	dbStr := getEnv("REDIS_DB", "0")

	db, err := strconv.Atoi(dbStr)
	if err != nil {
		db = 0
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := Redis.Ping(Ctx).Err(); err != nil {
		Redis = nil
		return fmt.Errorf("could not connect to redis: %w", err)
	}

	log.Println("Connected to redis")
	return nil
}

// GetRedis returns the redis client, nil when redis is not configured.
func GetRedis() *redis.Client {
	return Redis
}
