package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/patrickwarner/inappserve/internal/models"
)

var _ models.ViewTracker = (*RedisViewTracker)(nil)

const anonymousUser = "anon"

// DefaultViewLogRetention is how long views stay in the view log.
const DefaultViewLogRetention = 90 * 24 * time.Hour

// RedisViewTracker persists counted events in Redis. Each campaign counter is
// a hash with count and last (unix ms) fields; every view is also added to a
// sorted set scored by its time so window counts are a single ZCOUNT. The
// sorted set only keeps the views of the retention period; counters are
// never trimmed.
type RedisViewTracker struct {
	store        *RedisStore
	customUserID string
	retention    time.Duration
	now          func() time.Time
}

// NewRedisViewTracker returns a tracker for customUserID (may be empty).
func NewRedisViewTracker(store *RedisStore, customUserID string) *RedisViewTracker {
	return &RedisViewTracker{
		store:        store,
		customUserID: customUserID,
		retention:    DefaultViewLogRetention,
		now:          time.Now,
	}
}

// WithLogRetention sets how long views are kept in the view log. Time window
// rules longer than d undercount. Non-positive values are ignored.
func (t *RedisViewTracker) WithLogRetention(d time.Duration) *RedisViewTracker {
	if d > 0 {
		t.retention = d
	}
	return t
}

func (t *RedisViewTracker) user() string {
	if t.customUserID == "" {
		return anonymousUser
	}
	return t.customUserID
}

func (t *RedisViewTracker) eventKey(campaignID string, kind models.EventKind) string {
	return fmt.Sprintf("views:%s:%s:%s", t.user(), campaignID, kind)
}

func (t *RedisViewTracker) logKey() string {
	return fmt.Sprintf("views:%s:log", t.user())
}

func (t *RedisViewTracker) TrackEvent(ctx context.Context, campaignID string, kind models.EventKind) (*models.CountedEvent, error) {
	if !t.store.valid() {
		return nil, ErrNilRedisStore
	}
	now := t.now()
	ms := now.UnixMilli()
	key := t.eventKey(campaignID, kind)

	pipe := t.store.Client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "count", 1)
	pipe.HSet(ctx, key, "last", ms)
	if kind == models.EventKindView {
		logKey := t.logKey()
		cutoff := ms - t.retention.Milliseconds()
		pipe.ZAdd(ctx, logKey, redis.Z{Score: float64(ms), Member: uuid.NewString()})
		pipe.ZRemRangeByScore(ctx, logKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, logKey, t.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("track event: %w", err)
	}

	last := time.UnixMilli(ms)
	return &models.CountedEvent{
		CampaignID:     campaignID,
		Kind:           kind,
		CustomUserID:   t.customUserID,
		Count:          incr.Val(),
		LastOccurrence: &last,
	}, nil
}

func (t *RedisViewTracker) EventInfo(ctx context.Context, campaignID string, kind models.EventKind) (models.CountedEvent, error) {
	infos, err := t.EventInfos(ctx, []string{campaignID}, kind)
	if err != nil {
		return t.empty(campaignID, kind), err
	}
	return infos[campaignID], nil
}

// EventInfos reads every counter in one pipeline round trip.
func (t *RedisViewTracker) EventInfos(ctx context.Context, campaignIDs []string, kind models.EventKind) (map[string]models.CountedEvent, error) {
	if !t.store.valid() {
		return nil, ErrNilRedisStore
	}
	out := make(map[string]models.CountedEvent, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return out, nil
	}

	pipe := t.store.Client.Pipeline()
	commands := make(map[string]*redis.MapStringStringCmd, len(campaignIDs))
	for _, id := range campaignIDs {
		commands[id] = pipe.HGetAll(ctx, t.eventKey(id, kind))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline exec failed: %w", err)
	}

	for id, cmd := range commands {
		ev := t.empty(id, kind)
		fields, err := cmd.Result()
		if err == nil {
			ev.Count, _ = strconv.ParseInt(fields["count"], 10, 64)
			if ms, err := strconv.ParseInt(fields["last"], 10, 64); err == nil {
				last := time.UnixMilli(ms)
				ev.LastOccurrence = &last
			}
		}
		out[id] = ev
	}
	return out, nil
}

func (t *RedisViewTracker) ViewEventCountSince(ctx context.Context, since time.Time) (int64, error) {
	if !t.store.valid() {
		return 0, ErrNilRedisStore
	}
	n, err := t.store.Client.ZCount(ctx, t.logKey(), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count views: %w", err)
	}
	return n, nil
}

func (t *RedisViewTracker) empty(campaignID string, kind models.EventKind) models.CountedEvent {
	return models.CountedEvent{CampaignID: campaignID, Kind: kind, CustomUserID: t.customUserID}
}
