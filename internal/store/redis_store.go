package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Broker, backed by a single Redis instance
// per SPEC_FULL.md's DOMAIN STACK (grounded on yungbote-neurobridge-backend's
// redis_bus.go for client construction, and on the original Python service's
// own use of a bare redis.Redis client). Job records are plain strings
// holding the JSON-serialized Job; queues are native Redis sorted sets.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials the store endpoint named by REDIS_URI (see §6) and
// verifies connectivity with a PING before returning.
func NewRedisStore(ctx context.Context, uri string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid store URI: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) PutJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: marshaling job: %s", ErrInvalidInput, err)
	}
	if err := s.client.Set(ctx, recordKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	return nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: corrupt job record: %s", ErrServiceUnavailable, err)
	}
	return &job, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, bucket Bucket, id string, score int64) error {
	err := s.client.ZAdd(ctx, bucket.key(), redis.Z{Score: float64(score), Member: id}).Err()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	return nil
}

func (s *RedisStore) BlockingPopMin(ctx context.Context, bucket Bucket, timeout int) (string, int64, bool, error) {
	result, err := s.client.BZPopMin(ctx, time.Duration(timeout)*time.Second, bucket.key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	id, ok := result.Member.(string)
	if !ok {
		return "", 0, false, fmt.Errorf("%w: unexpected queue member type", ErrServiceUnavailable)
	}
	return id, int64(result.Score), true, nil
}

func (s *RedisStore) PopMinBatch(ctx context.Context, bucket Bucket, n int) ([]Member, error) {
	if n <= 0 {
		return nil, nil
	}
	results, err := s.client.ZPopMin(ctx, bucket.key(), int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	members := make([]Member, 0, len(results))
	for _, z := range results {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, Member{ID: id, Score: int64(z.Score)})
	}
	return members, nil
}

func (s *RedisStore) Remove(ctx context.Context, bucket Bucket, id string) error {
	if err := s.client.ZRem(ctx, bucket.key(), id).Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	return nil
}

// PopFit implements the "pop-many, pick-one, push-back" composed operation
// of §4.2. It is deliberately not atomic: a concurrent PopFit on the same
// bucket can observe the jobs this call re-enqueues in the window between
// the ZPopMin and the push-back ZAdd calls. A future version could replace
// this with a single Lua script (EVAL) run server-side; that is noted as
// the intended v2 path and is not implemented here.
func (s *RedisStore) PopFit(ctx context.Context, bucket Bucket, n int, cpuCores, memoryGB int) (*Job, error) {
	members, err := s.PopMinBatch(ctx, bucket, n)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	var fit *Job
	var fitIndex = -1
	jobs := make([]*Job, len(members))
	for i, m := range members {
		job, err := s.GetJob(ctx, m.ID)
		if err != nil {
			// A popped id with no record is stale; treat as simply absent
			// from this fit pass rather than failing the whole operation.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		jobs[i] = job
		if fit == nil && job.MemoryRequested <= memoryGB && job.CPUCoresRequested <= cpuCores {
			fit = job
			fitIndex = i
		}
	}

	for i, m := range members {
		if i == fitIndex {
			continue
		}
		if err := s.Enqueue(ctx, bucket, m.ID, m.Score); err != nil {
			return nil, err
		}
	}

	return fit, nil
}

func (s *RedisStore) ListQueued(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "jobservitor:queue:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
		}
		for _, key := range keys {
			ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
			}
			for _, id := range ids {
				job, err := s.GetJob(ctx, id)
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				jobs = append(jobs, job)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return jobs, nil
}

var _ Broker = (*RedisStore)(nil)
