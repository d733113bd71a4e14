package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

const dossierKeyPrefix = "when2meet:dossier:"

// redisDossierCache stores finished dossiers keyed by request fingerprint.
type redisDossierCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (r redisDossierCache) Get(ctx context.Context, key string) (dossier.Dossier, bool, error) {
	val, err := r.client.Get(ctx, dossierKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return dossier.Dossier{}, false, nil
		}
		return dossier.Dossier{}, false, err
	}
	// entries are re-validated so a stale or hand-edited value never escapes
	d, err := dossier.Validate(val)
	if err != nil {
		_ = r.client.Del(ctx, dossierKeyPrefix+key).Err()
		return dossier.Dossier{}, false, nil
	}
	return d.Complete(), true, nil
}

func (r redisDossierCache) Put(ctx context.Context, key string, d dossier.Dossier) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, dossierKeyPrefix+key, data, r.ttl).Err()
}

func (r redisDossierCache) Close() error {
	return r.client.Close()
}

func NewRedisDossierCache(client *redis.Client, ttl time.Duration) *redisDossierCache {
	return &redisDossierCache{
		client: client,
		ttl:    ttl,
	}
}
