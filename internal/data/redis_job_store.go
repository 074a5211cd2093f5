package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

const (
	defaultRedisKeyPrefix   = "idea-evaluator:job:"
	defaultRedisMaxAttempts = 10
	redisScanBatch          = 100
)

// RedisJobStoreOptions configures a RedisJobStore.
type RedisJobStoreOptions struct {
	Client    redis.UniversalClient
	KeyPrefix string
	// TTL expires job records; zero keeps them forever.
	TTL time.Duration
	// MaxAttempts bounds optimistic retries of Update.
	MaxAttempts int
}

// RedisJobStore stores jobs as JSON documents in Redis. Update uses WATCH/MULTI so
// concurrent writers on one job never overwrite each other.
type RedisJobStore struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
}

var _ core.JobRepository = (*RedisJobStore)(nil)

// NewRedisJobStore creates a RedisJobStore.
func NewRedisJobStore(opts RedisJobStoreOptions) *RedisJobStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRedisMaxAttempts
	}
	return &RedisJobStore{
		client:      opts.Client,
		prefix:      prefix,
		ttl:         opts.TTL,
		maxAttempts: attempts,
	}
}

func (s *RedisJobStore) key(id string) string {
	return s.prefix + id
}

// Create stores job unless its id is already taken.
func (s *RedisJobStore) Create(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return ErrJobIDRequired
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.key(job.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("create job %s: %w", job.ID, ErrJobExists)
	}
	return nil
}

// Get loads a job by id.
func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.load(ctx, s.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisJobStore) load(ctx context.Context, c getter, id string) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobNotFound
	}

	raw, err := c.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return decodeJob(id, raw)
}

// decodeJob rejects records whose status this version does not know.
func decodeJob(id string, raw []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if !job.Status.Valid() {
		return nil, fmt.Errorf("decode job %s: unknown status %q", id, job.Status)
	}
	return &job, nil
}

// ListActive scans the key prefix and returns the non-terminal jobs. Keys that
// expire between SCAN and MGET are skipped.
func (s *RedisJobStore) ListActive(ctx context.Context) ([]*model.Job, error) {
	var active []*model.Job
	keys := make([]string, 0, redisScanBatch)

	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis mget: %w", err)
		}
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			job, err := decodeJob(strings.TrimPrefix(keys[i], s.prefix), []byte(raw))
			if err != nil {
				return err
			}
			if !job.Status.Terminal() {
				active = append(active, job)
			}
		}
		keys = keys[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == redisScanBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return active, nil
}

// Update applies mutate inside an optimistic transaction, retrying when another
// writer changed the job between read and write.
func (s *RedisJobStore) Update(ctx context.Context, id string, mutate core.JobMutator) (*model.Job, error) {
	key := s.key(id)
	var updated *model.Job

	txf := func(tx *redis.Tx) error {
		job, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(job); err != nil {
			return err
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.keepTTL())
			return nil
		})
		if err != nil {
			return err
		}
		updated = job
		return nil
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update job %s: %w", id, ErrUpdateConflict)
}

// keepTTL preserves the remaining expiry of the record when a TTL is configured.
func (s *RedisJobStore) keepTTL() time.Duration {
	if s.ttl > 0 {
		return redis.KeepTTL
	}
	return 0
}
