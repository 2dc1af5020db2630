package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces engine cache keys in a shared Redis.
const keyPrefix = "meridian:cache:"

// TagInvalidator drops cached values by tag. Writers register derived keys
// under a tag set; Invalidate deletes the tag's members and the set itself.
// Failures are logged and swallowed: invalidation is advisory, a stale read
// expires with its TTL.
type TagInvalidator struct {
	client *redis.Client
	logger *slog.Logger
}

// NewTagInvalidator constructs a TagInvalidator.
func NewTagInvalidator(client *redis.Client, logger *slog.Logger) *TagInvalidator {
	return &TagInvalidator{client: client, logger: logger}
}

// Register associates a cache key with a tag for later invalidation.
func (t *TagInvalidator) Register(ctx context.Context, tag, key string) error {
	return t.client.SAdd(ctx, keyPrefix+"tag:"+tag, key).Err()
}

// Invalidate removes every key registered under the given tags.
func (t *TagInvalidator) Invalidate(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		setKey := keyPrefix + "tag:" + tag
		keys, err := t.client.SMembers(ctx, setKey).Result()
		if err != nil {
			t.logger.Warn("cache invalidate: read tag", slog.String("tag", tag), slog.Any("error", err))
			continue
		}
		keys = append(keys, setKey)
		if err := t.client.Del(ctx, keys...).Err(); err != nil {
			t.logger.Warn("cache invalidate: delete", slog.String("tag", tag), slog.Any("error", err))
		}
	}
}
