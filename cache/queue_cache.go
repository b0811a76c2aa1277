package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// QueueItem 表示播放队列中的一个项目
type QueueItem struct {
	TrackID     string   `json:"trackId"`
	AlbumID     int64    `json:"albumId"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	PlaybackURL string   `json:"playbackUrl,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	Position    int      `json:"position"` // 在播放队列中的位置
}

// GetQueueKey 根据用户ID生成播放队列的Redis键
func GetQueueKey(userID int64) string {
	return fmt.Sprintf("queue:%d", userID)
}

// ReplaceQueue 用新的有序列表整体替换用户的播放队列
// 播放游标随专辑列表结构变化同步时使用，整体写入保证位置连续
func ReplaceQueue(ctx context.Context, userID int64, items []QueueItem) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	queueKey := GetQueueKey(userID)

	if err := RedisClient.Del(ctx, queueKey).Err(); err != nil {
		return fmt.Errorf("failed to clear queue before replace: %w", err)
	}

	for i, item := range items {
		item.Position = i
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}

		if err := RedisClient.ZAdd(ctx, queueKey, &redis.Z{
			Score:  float64(i),
			Member: itemJSON,
		}).Err(); err != nil {
			return fmt.Errorf("failed to add track to queue: %w", err)
		}
	}

	// 设置播放队列的过期时间
	if len(items) > 0 {
		if err := RedisClient.Expire(ctx, queueKey, 24*time.Hour).Err(); err != nil {
			return fmt.Errorf("failed to set queue expiration: %w", err)
		}
	}

	return nil
}

// GetQueue 获取用户的整个播放队列，按位置升序
func GetQueue(ctx context.Context, userID int64) ([]QueueItem, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	queueKey := GetQueueKey(userID)

	result, err := RedisClient.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return []QueueItem{}, nil
		}
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	var queue []QueueItem
	for _, itemJSON := range result {
		var item QueueItem
		if err := json.Unmarshal([]byte(itemJSON), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
		}
		queue = append(queue, item)
	}

	return queue, nil
}

// ClearQueue 清空用户的播放队列
func ClearQueue(ctx context.Context, userID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	if err := RedisClient.Del(ctx, GetQueueKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	return nil
}
