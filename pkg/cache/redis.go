package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-conduct-api/pkg/config"
)

const keyPrefix = "conduct"

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// StateKey is the cache key of a student's projected state for a given day.
func StateKey(studentID string, day time.Time) string {
	return fmt.Sprintf("%s:state:%s:%s", keyPrefix, studentID, day.Format("2006-01-02"))
}

// StudentPattern matches every cached entry of a student.
func StudentPattern(studentID string) string {
	return fmt.Sprintf("%s:state:%s:*", keyPrefix, studentID)
}
