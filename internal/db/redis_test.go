package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/inappserve/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:    context.Background(),
	}
	return s, store
}

func TestRedisViewTracker(t *testing.T) {
	s, store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	tracker := NewRedisViewTracker(store, "user-1")
	tracker.now = func() time.Time { return now }

	ev, err := tracker.EventInfo(ctx, "c1", models.EventKindView)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ev.Count)
	assert.Nil(t, ev.LastOccurrence)
	assert.Equal(t, "user-1", ev.CustomUserID)

	for i := 0; i < 3; i++ {
		ev, err := tracker.TrackEvent(ctx, "c1", models.EventKindView)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), ev.Count)
		now = now.Add(time.Hour)
	}
	_, err = tracker.TrackEvent(ctx, "c2", models.EventKindView)
	require.NoError(t, err)

	assert.True(t, s.Exists("views:user-1:c1:view"))
	assert.True(t, s.Exists("views:user-1:log"))

	infos, err := tracker.EventInfos(ctx, []string{"c1", "c2", "c3"}, models.EventKindView)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, int64(3), infos["c1"].Count)
	require.NotNil(t, infos["c1"].LastOccurrence)
	assert.True(t, infos["c1"].LastOccurrence.Equal(time.Date(2024, 6, 7, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1), infos["c2"].Count)
	assert.Equal(t, int64(0), infos["c3"].Count)

	// views at 12:00, 13:00, 14:00 and 15:00
	n, err := tracker.ViewEventCountSince(ctx, time.Date(2024, 6, 7, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisViewTracker_LogRetention(t *testing.T) {
	s, store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	tracker := NewRedisViewTracker(store, "user-1").WithLogRetention(24 * time.Hour)
	tracker.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := tracker.TrackEvent(ctx, "c1", models.EventKindView)
		require.NoError(t, err)
		now = now.Add(12 * time.Hour)
	}
	// views at day 0 12:00, day 1 00:00 and day 1 12:00; the first one is
	// exactly at the cutoff of the last and survives
	members, err := s.ZMembers("views:user-1:log")
	require.NoError(t, err)
	assert.Len(t, members, 3)

	// a view at day 2 01:00 trims everything before day 1 01:00
	now = now.Add(time.Hour)
	_, err = tracker.TrackEvent(ctx, "c1", models.EventKindView)
	require.NoError(t, err)
	members, err = s.ZMembers("views:user-1:log")
	require.NoError(t, err)
	assert.Len(t, members, 2, "views older than the retention period are trimmed")
	assert.Equal(t, 24*time.Hour, s.TTL("views:user-1:log"))

	ev, err := tracker.EventInfo(ctx, "c1", models.EventKindView)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev.Count, "counters are never trimmed")

	assert.Same(t, tracker, tracker.WithLogRetention(0))
	assert.Equal(t, 24*time.Hour, tracker.retention)
}

func TestRedisViewTracker_UsersAreIsolated(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	_, err := NewRedisViewTracker(store, "").TrackEvent(ctx, "c1", models.EventKindView)
	require.NoError(t, err)

	ev, err := NewRedisViewTracker(store, "other").EventInfo(ctx, "c1", models.EventKindView)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ev.Count)
}

func TestRedisViewTracker_NilStore(t *testing.T) {
	tracker := NewRedisViewTracker(nil, "")
	_, err := tracker.TrackEvent(context.Background(), "c1", models.EventKindView)
	assert.ErrorIs(t, err, ErrNilRedisStore)
	_, err = tracker.EventInfos(context.Background(), []string{"c1"}, models.EventKindView)
	assert.ErrorIs(t, err, ErrNilRedisStore)
	_, err = tracker.ViewEventCountSince(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNilRedisStore)
}

func TestRedisAttributeStore(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	attrs := NewRedisAttributeStore(store, "user-1")

	require.NoError(t, attrs.SetAttributes(ctx, map[string]any{"city": "Paris", "age": 31, "vip": true}))
	require.NoError(t, attrs.AddTags(ctx, "interests", "golf", "wine"))
	require.NoError(t, attrs.AddTags(ctx, "brands", "acme"))
	require.NoError(t, attrs.RemoveTags(ctx, "interests", "golf"))
	require.NoError(t, attrs.SetAttribute(ctx, "vip", nil))

	got, err := attrs.UserAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.Attributes["city"])
	assert.Equal(t, float64(31), got.Attributes["age"])
	assert.NotContains(t, got.Attributes, "vip")
	assert.ElementsMatch(t, []string{"wine"}, got.Tags["interests"])
	assert.ElementsMatch(t, []string{"acme"}, got.Tags["brands"])
}

func TestRedisAttributeStore_Empty(t *testing.T) {
	_, store := setupTestRedis(t)
	got, err := NewRedisAttributeStore(store, "").UserAttributes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Attributes)
	assert.Empty(t, got.Tags)

	_, err = NewRedisAttributeStore(nil, "").UserAttributes(context.Background())
	assert.ErrorIs(t, err, ErrNilRedisStore)
}

func TestRedisPayloadCache(t *testing.T) {
	s, store := setupTestRedis(t)
	ctx := context.Background()
	cache := NewRedisPayloadCache(store)

	_, err := cache.Load(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Store(ctx, []byte(`{"campaigns": []}`)))
	raw, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"campaigns": []}`, string(raw))

	require.NoError(t, cache.Delete(ctx))
	assert.False(t, s.Exists(DefaultPayloadKey))
	_, err = cache.Load(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestPostgresPayloadCache(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	pg, err := InitPostgres(dsn, 2, 1, time.Minute, time.Minute)
	require.NoError(t, err)
	defer pg.Close()

	ctx := context.Background()
	cache := NewPostgresPayloadCache(pg, "test-"+time.Now().Format("150405.000"))
	defer func() { _ = cache.Delete(ctx) }()

	_, err = cache.Load(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Store(ctx, []byte(`{"campaigns": [1]}`)))
	require.NoError(t, cache.Store(ctx, []byte(`{"campaigns": [2]}`)))
	raw, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"campaigns": [2]}`, string(raw))
}

func TestPostgres_Nil(t *testing.T) {
	cache := NewPostgresPayloadCache(nil, "")
	assert.Equal(t, DefaultPayloadSlot, cache.Slot)
	_, err := cache.Load(context.Background())
	assert.ErrorIs(t, err, ErrNilPostgres)
	assert.ErrorIs(t, cache.Store(context.Background(), nil), ErrNilPostgres)
}
