package cache

import (
	"github.com/go-redis/redis/v8"
)

// RedisClient 是全局Redis客户端，由服务启动时注入
var RedisClient *redis.Client

// Use 设置缓存层使用的Redis客户端
func Use(client *redis.Client) {
	RedisClient = client
}
