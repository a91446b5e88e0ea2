package leaderboard

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/redis"
)

const (
	metaFieldName     = "name"
	metaFieldComment  = "comment"
	metaFieldAttempts = "attempts"
	metaFieldFirstAt  = "first_at"
)

type redisBoard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBoard returns a Board backed by a per-load sorted set plus one
// metadata hash per carrier. Keys expire after ttl so abandoned auctions
// do not accumulate.
func NewRedisBoard(client *redis.Client, ttl time.Duration) Board {
	return &redisBoard{client: client, ttl: ttl}
}

func (b *redisBoard) Upsert(ctx context.Context, loadID uuid.UUID, entry Entry) error {
	raw := b.client.Raw()
	boardKey := b.client.LeaderboardKey(loadID.String())
	metaKey := b.client.LeaderboardMetaKey(loadID.String(), entry.CarrierID.String())

	score, _ := entry.Rate.Float64()
	pipe := raw.TxPipeline()
	pipe.ZAdd(ctx, boardKey, goredis.Z{Score: score, Member: entry.CarrierID.String()})
	pipe.HSet(ctx, metaKey, map[string]any{
		metaFieldName:     entry.CarrierName,
		metaFieldComment:  entry.Comment,
		metaFieldAttempts: entry.Attempts,
		metaFieldFirstAt:  entry.FirstReachedAt.UTC().Format(time.RFC3339Nano),
	})
	if b.ttl > 0 {
		pipe.Expire(ctx, boardKey, b.ttl)
		pipe.Expire(ctx, metaKey, b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "updating leaderboard")
	}
	return nil
}

func (b *redisBoard) Snapshot(ctx context.Context, loadID uuid.UUID) (*Snapshot, error) {
	raw := b.client.Raw()
	boardKey := b.client.LeaderboardKey(loadID.String())

	members, err := raw.ZRangeWithScores(ctx, boardKey, 0, -1).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading leaderboard")
	}
	if len(members) == 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(members))
	for _, member := range members {
		carrierID, err := uuid.Parse(member.Member.(string))
		if err != nil {
			continue
		}
		entry := Entry{
			CarrierID: carrierID,
			Rate:      decimal.NewFromFloat(member.Score),
		}

		metaKey := b.client.LeaderboardMetaKey(loadID.String(), carrierID.String())
		meta, err := raw.HGetAll(ctx, metaKey).Result()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading leaderboard metadata")
		}
		entry.CarrierName = meta[metaFieldName]
		entry.Comment = meta[metaFieldComment]
		if attempts, convErr := strconv.Atoi(meta[metaFieldAttempts]); convErr == nil {
			entry.Attempts = attempts
		}
		if firstAt, parseErr := time.Parse(time.RFC3339Nano, meta[metaFieldFirstAt]); parseErr == nil {
			entry.FirstReachedAt = firstAt
		}
		entries = append(entries, entry)
	}

	sortEntries(entries)
	return &Snapshot{LoadID: loadID, Entries: entries, TakenAt: time.Now().UTC()}, nil
}

func (b *redisBoard) Lowest(ctx context.Context, loadID uuid.UUID) (*Entry, error) {
	snapshot, err := b.Snapshot(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || len(snapshot.Entries) == 0 {
		return nil, nil
	}
	lowest := snapshot.Entries[0]
	return &lowest, nil
}

func (b *redisBoard) Discard(ctx context.Context, loadID uuid.UUID) error {
	raw := b.client.Raw()
	boardKey := b.client.LeaderboardKey(loadID.String())

	members, err := raw.ZRange(ctx, boardKey, 0, -1).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "listing leaderboard members")
	}

	keys := make([]string, 0, len(members)+1)
	keys = append(keys, boardKey)
	for _, member := range members {
		keys = append(keys, b.client.LeaderboardMetaKey(loadID.String(), member))
	}
	if err := raw.Del(ctx, keys...).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "discarding leaderboard")
	}
	return nil
}

// sortEntries orders by rate ascending, then by who reached the rate first,
// and assigns 0-based ranks. ZSET score ties otherwise sort lexically by
// member, which is meaningless here.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Rate.Equal(entries[j].Rate) {
			return entries[i].Rate.LessThan(entries[j].Rate)
		}
		return entries[i].FirstReachedAt.Before(entries[j].FirstReachedAt)
	})
	for i := range entries {
		entries[i].Position = Rank(i)
	}
}
