package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trackvault/model"
)

// TrashEntry 保存被软删除专辑的完整快照，用于撤销
type TrashEntry struct {
	Album     model.Album    `json:"album"`
	Tracks    []*model.Track `json:"tracks"`
	DeletedAt time.Time      `json:"deletedAt"`
}

// GetTrashKey 根据用户ID生成回收站的Redis键
func GetTrashKey(userID int64) string {
	return fmt.Sprintf("trash:%d", userID)
}

// PushTrash 将专辑快照推入回收站，只保留最近的 limit 条
func PushTrash(ctx context.Context, userID int64, entry TrashEntry, limit int) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trash entry: %w", err)
	}

	trashKey := GetTrashKey(userID)
	if err := RedisClient.LPush(ctx, trashKey, entryJSON).Err(); err != nil {
		return fmt.Errorf("failed to push trash entry: %w", err)
	}

	// 最近的在最前，超出上限的最旧快照被丢弃
	if err := RedisClient.LTrim(ctx, trashKey, 0, int64(limit-1)).Err(); err != nil {
		return fmt.Errorf("failed to trim trash: %w", err)
	}

	return nil
}

// ListTrash 返回回收站内容，最近删除的在最前
func ListTrash(ctx context.Context, userID int64) ([]TrashEntry, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	result, err := RedisClient.LRange(ctx, GetTrashKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list trash: %w", err)
	}

	entries := make([]TrashEntry, 0, len(result))
	for _, entryJSON := range result {
		var entry TrashEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trash entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// TakeTrash 按专辑ID从回收站取出一条快照并删除它
func TakeTrash(ctx context.Context, userID, albumID int64) (*TrashEntry, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	trashKey := GetTrashKey(userID)
	result, err := RedisClient.LRange(ctx, trashKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read trash: %w", err)
	}

	for _, entryJSON := range result {
		var entry TrashEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trash entry: %w", err)
		}
		if entry.Album.ID != albumID {
			continue
		}

		if err := RedisClient.LRem(ctx, trashKey, 1, entryJSON).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove trash entry: %w", err)
		}
		return &entry, nil
	}

	return nil, nil
}
