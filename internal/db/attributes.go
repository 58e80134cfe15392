package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/models"
)

var _ models.AttributeSource = (*RedisAttributeStore)(nil)

// RedisAttributeStore keeps the user's custom attributes in a hash of JSON
// encoded values and each tag collection in its own set.
type RedisAttributeStore struct {
	store        *RedisStore
	customUserID string
}

// NewRedisAttributeStore returns the attribute store of customUserID.
func NewRedisAttributeStore(store *RedisStore, customUserID string) *RedisAttributeStore {
	return &RedisAttributeStore{store: store, customUserID: customUserID}
}

func (s *RedisAttributeStore) user() string {
	if s.customUserID == "" {
		return anonymousUser
	}
	return s.customUserID
}

func (s *RedisAttributeStore) attrKey() string { return "attrs:" + s.user() }

func (s *RedisAttributeStore) collectionsKey() string { return "tags:" + s.user() }

func (s *RedisAttributeStore) tagKey(collection string) string {
	return fmt.Sprintf("tags:%s:%s", s.user(), collection)
}

// SetAttributes stores each value JSON encoded. A nil value removes the key.
func (s *RedisAttributeStore) SetAttributes(ctx context.Context, attrs map[string]any) error {
	if !s.store.valid() {
		return ErrNilRedisStore
	}
	pipe := s.store.Client.TxPipeline()
	for k, v := range attrs {
		if v == nil {
			pipe.HDel(ctx, s.attrKey(), k)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode attribute %q: %w", k, err)
		}
		pipe.HSet(ctx, s.attrKey(), k, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set attributes: %w", err)
	}
	return nil
}

// SetAttribute stores one attribute.
func (s *RedisAttributeStore) SetAttribute(ctx context.Context, key string, value any) error {
	return s.SetAttributes(ctx, map[string]any{key: value})
}

// AddTags adds tags to a collection.
func (s *RedisAttributeStore) AddTags(ctx context.Context, collection string, tags ...string) error {
	if !s.store.valid() {
		return ErrNilRedisStore
	}
	if len(tags) == 0 {
		return nil
	}
	members := make([]interface{}, len(tags))
	for i, t := range tags {
		members[i] = t
	}
	pipe := s.store.Client.TxPipeline()
	pipe.SAdd(ctx, s.collectionsKey(), collection)
	pipe.SAdd(ctx, s.tagKey(collection), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add tags: %w", err)
	}
	return nil
}

// RemoveTags removes tags from a collection.
func (s *RedisAttributeStore) RemoveTags(ctx context.Context, collection string, tags ...string) error {
	if !s.store.valid() {
		return ErrNilRedisStore
	}
	if len(tags) == 0 {
		return nil
	}
	members := make([]interface{}, len(tags))
	for i, t := range tags {
		members[i] = t
	}
	return s.store.Client.SRem(ctx, s.tagKey(collection), members...).Err()
}

// UserAttributes loads every attribute and tag collection. Values that do
// not decode are skipped and logged.
func (s *RedisAttributeStore) UserAttributes(ctx context.Context) (models.UserAttributes, error) {
	var out models.UserAttributes
	if !s.store.valid() {
		return out, ErrNilRedisStore
	}

	fields, err := s.store.Client.HGetAll(ctx, s.attrKey()).Result()
	if err != nil {
		return out, fmt.Errorf("load attributes: %w", err)
	}
	out.Attributes = make(map[string]any, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			zap.L().Warn("skipping undecodable user attribute", zap.String("key", k), zap.Error(err))
			continue
		}
		out.Attributes[k] = v
	}

	collections, err := s.store.Client.SMembers(ctx, s.collectionsKey()).Result()
	if err != nil {
		return out, fmt.Errorf("load tag collections: %w", err)
	}
	out.Tags = make(map[string][]string, len(collections))
	if len(collections) == 0 {
		return out, nil
	}
	pipe := s.store.Client.Pipeline()
	commands := make(map[string]*redis.StringSliceCmd, len(collections))
	for _, c := range collections {
		commands[c] = pipe.SMembers(ctx, s.tagKey(c))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return out, fmt.Errorf("load tags: %w", err)
	}
	for c, cmd := range commands {
		out.Tags[c] = cmd.Val()
	}
	return out, nil
}
