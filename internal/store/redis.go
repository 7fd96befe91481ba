package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/draft"
)

const keyPrefix = "posting:draft:"

func draftKey(id string) string { return keyPrefix + id }
func lockKey(id string) string  { return keyPrefix + id + ":submit" }

// Redis stores each draft as JSON with a sliding TTL: every Save pushes the
// expiry forward, so abandoned drafts disappear on their own. Save is an
// optimistic transaction on the draft key.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (s *Redis) Get(ctx context.Context, id string) (*draft.Draft, error) {
	data, err := s.rdb.Get(ctx, draftKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Unavailable("reading draft", err)
	}
	var d draft.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, apperr.Internal("decoding draft", err)
	}
	return &d, nil
}

func (s *Redis) Save(ctx context.Context, d *draft.Draft) error {
	next := d.Version + 1
	data, err := encode(d, next)
	if err != nil {
		return apperr.Internal("encoding draft", err)
	}
	key := draftKey(d.ID)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, exists, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := checkVersion(stored, exists, d.Version); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		d.Version = next
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), apperr.Is(err, apperr.ErrTypeInternal):
		return err
	}
	return apperr.Unavailable("writing draft", err)
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, bool, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var v struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, false, apperr.Internal("decoding draft", err)
	}
	return v.Version, true, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, draftKey(id), lockKey(id)).Err(); err != nil {
		return apperr.Unavailable("deleting draft", err)
	}
	return nil
}

func (s *Redis) AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(id), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, apperr.Unavailable("acquiring submit lock", err)
	}
	return ok, nil
}

func (s *Redis) ReleaseSubmit(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, lockKey(id)).Err(); err != nil {
		return apperr.Unavailable("releasing submit lock", err)
	}
	return nil
}
