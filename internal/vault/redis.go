package vault

import (
	"context"
	"encoding/json"

	"github.com/AlexZinkM/relay-wallet/internal/model"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vault:entry:"

// RedisStore keeps vault entries in Redis, one key per wallet
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore over an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, walletID string) (model.VaultEntry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+walletID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.VaultEntry{}, ErrNoVaultEntry
		}
		return model.VaultEntry{}, errors.Wrap(err, "failed to get vault entry")
	}

	var entry model.VaultEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.VaultEntry{}, errors.Wrap(err, "failed to unmarshal vault entry")
	}
	return entry, nil
}

func (s *RedisStore) Put(ctx context.Context, walletID string, entry model.VaultEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal vault entry")
	}

	// Sealed entries never expire
	if err := s.client.Set(ctx, redisKeyPrefix+walletID, data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to save vault entry")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, walletID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+walletID).Err(); err != nil {
		return errors.Wrap(err, "failed to delete vault entry")
	}
	return nil
}

func (s *RedisStore) DeleteAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(err, "failed to delete vault entry")
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "failed to scan vault entries")
	}
	return nil
}
