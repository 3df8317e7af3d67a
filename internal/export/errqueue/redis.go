package errqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goodnatureofminers/blockexport-backend/internal/export/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultEntryTTL bounds how long a failed-block blob survives without being touched.
	DefaultEntryTTL = 24 * time.Hour

	pingTimeout = 5 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Redis keeps the queue in a sorted set scored by height plus one JSON blob per height,
// so retries survive a restart of the exporter.
type Redis struct {
	rdb     redis.Cmdable
	chain   string
	policy  Policy
	ttl     time.Duration
	metrics Metrics
	now     func() time.Time
}

// Dial parses a redis:// URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedis builds the queue of one chain. The blob TTL is raised to outlive the stuck retry interval.
func NewRedis(rdb redis.Cmdable, chain string, policy Policy, ttl time.Duration, metrics Metrics) *Redis {
	policy = policy.withDefaults()
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	if ttl <= policy.StuckInterval {
		ttl = 2 * policy.StuckInterval
	}
	return &Redis{
		rdb:     rdb,
		chain:   chain,
		policy:  policy,
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

func (r *Redis) queueKey() string {
	return fmt.Sprintf("failed_blocks:%s", r.chain)
}

func (r *Redis) entryKey(height uint64) string {
	return fmt.Sprintf("failed_block:%s:%d", r.chain, height)
}

func (r *Redis) Add(ctx context.Context, height uint64, cause error) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("add", err, started)
	}()

	fb, found, err := r.get(ctx, height)
	if err != nil {
		return err
	}
	if found {
		fb.Error = errorText(cause)
	} else {
		fb = r.policy.newEntry(height, cause, r.now())
	}
	return r.put(ctx, fb)
}

func (r *Redis) Due(ctx context.Context) (out []model.FailedBlock, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("due", err, started)
	}()

	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	for _, fb := range all {
		if isDue(fb, now) {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (r *Redis) Fail(ctx context.Context, height uint64, cause error) (fb model.FailedBlock, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("fail", err, started)
	}()

	fb, found, err := r.get(ctx, height)
	if err != nil {
		return model.FailedBlock{}, err
	}
	if !found {
		return model.FailedBlock{}, ErrNotQueued
	}
	fb = r.policy.recordFailure(fb, cause, r.now())
	if err := r.put(ctx, fb); err != nil {
		return model.FailedBlock{}, err
	}
	return fb, nil
}

func (r *Redis) Resolve(ctx context.Context, height uint64) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("resolve", err, started)
	}()

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.queueKey(), strconv.FormatUint(height, 10))
		p.Del(ctx, r.entryKey(height))
		return nil
	})
	if err != nil {
		return fmt.Errorf("resolve failed block %d: %w", height, err)
	}
	return nil
}

func (r *Redis) Heights(ctx context.Context) (out []uint64, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("heights", err, started)
	}()

	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]uint64, 0, len(all))
	for _, fb := range all {
		out = append(out, fb.Height)
	}
	return out, nil
}

func (r *Redis) Stuck(ctx context.Context) (out []model.FailedBlock, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("stuck", err, started)
	}()

	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, fb := range all {
		if fb.Stuck {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (r *Redis) RollbackFrom(ctx context.Context, height uint64) (err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("rollback_from", err, started)
	}()

	lowest := strconv.FormatUint(height, 10)
	members, err := r.rdb.ZRangeByScore(ctx, r.queueKey(), &redis.ZRangeBy{Min: lowest, Max: "+inf"}).Result()
	if err != nil {
		return fmt.Errorf("list failed blocks from %d: %w", height, err)
	}
	if len(members) == 0 {
		return nil
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		h, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue member %q: %w", m, err)
		}
		keys = append(keys, r.entryKey(h))
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRemRangeByScore(ctx, r.queueKey(), lowest, "+inf")
		return nil
	})
	if err != nil {
		return fmt.Errorf("rollback failed blocks from %d: %w", height, err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, height uint64) (model.FailedBlock, bool, error) {
	data, err := r.rdb.Get(ctx, r.entryKey(height)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.FailedBlock{}, false, nil
	}
	if err != nil {
		return model.FailedBlock{}, false, fmt.Errorf("get failed block %d: %w", height, err)
	}
	var fb model.FailedBlock
	if err := json.Unmarshal(data, &fb); err != nil {
		return model.FailedBlock{}, false, fmt.Errorf("decode failed block %d: %w", height, err)
	}
	return fb, true, nil
}

func (r *Redis) put(ctx context.Context, fb model.FailedBlock) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("encode failed block %d: %w", fb.Height, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.entryKey(fb.Height), data, r.ttl)
		p.ZAdd(ctx, r.queueKey(), redis.Z{Score: float64(fb.Height), Member: strconv.FormatUint(fb.Height, 10)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store failed block %d: %w", fb.Height, err)
	}
	return nil
}

// all loads every entry in ascending height order. Members whose blob expired are dropped.
func (r *Redis) all(ctx context.Context) ([]model.FailedBlock, error) {
	members, err := r.rdb.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed blocks: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		h, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid queue member %q: %w", m, err)
		}
		keys[i] = r.entryKey(h)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load failed blocks: %w", err)
	}

	out := make([]model.FailedBlock, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, members[i])
			continue
		}
		var fb model.FailedBlock
		if err := json.Unmarshal([]byte(raw), &fb); err != nil {
			return nil, fmt.Errorf("decode failed block %s: %w", members[i], err)
		}
		out = append(out, fb)
	}
	if len(expired) > 0 {
		if err := r.rdb.ZRem(ctx, r.queueKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("drop expired failed blocks: %w", err)
		}
	}
	return out, nil
}
