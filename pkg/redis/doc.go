// Package redis connects to Redis with github.com/redis/go-redis/v9. The
// notification engine uses it for the shared preference cache and the
// realtime publish channel (see pkg/notifications/redisstore).
package redis
