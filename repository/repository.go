package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yhlin07/when2meet-mcp-2025/config"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
	"github.com/yhlin07/when2meet-mcp-2025/repository/redis_repository"
)

// DossierCache remembers finished dossiers so repeated requests for the
// same person and notes skip the agent run.
type DossierCache interface {
	Get(ctx context.Context, key string) (dossier.Dossier, bool, error)
	Put(ctx context.Context, key string, d dossier.Dossier) error
	Close() error
}

type RepoType string

const (
	RepoTypeRedis RepoType = "redis"
	RepoTypeNone  RepoType = "none"
)

// NewDossierCache opens the configured cache. A disabled cache is a no-op.
func NewDossierCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (DossierCache, error) {
	t := RepoTypeNone
	if cfg.Enabled {
		t = RepoTypeRedis
	}
	switch t {
	case RepoTypeNone:
		return NopCache{}, nil
	case RepoTypeRedis:
		c, err := redis_repository.Conn(ctx, logger, cfg.Host, cfg.Port, cfg.Password, cfg.DB, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("redis %s:%s: %w", cfg.Host, cfg.Port, err)
		}
		return redis_repository.NewRedisDossierCache(c, cfg.CacheTTL), nil
	}
	return nil, fmt.Errorf("invalid repository type: %s", t)
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (dossier.Dossier, bool, error) {
	return dossier.Dossier{}, false, nil
}

func (NopCache) Put(context.Context, string, dossier.Dossier) error { return nil }

func (NopCache) Close() error { return nil }
