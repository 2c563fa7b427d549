package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Repository reads configuration rows. The engine never writes them;
// administrative tooling owns the table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadRows retrieves all configuration rows.
func (r *Repository) LoadRows(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("settings: scan: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// RowLoader abstracts the persisted rows for the resolver.
type RowLoader interface {
	LoadRows(ctx context.Context) (map[string]string, error)
}

const cacheKey = "ledger:settings:engine"

// Resolver produces Engine snapshots, short-circuiting through redis so
// hot paths do not re-read the table on every unit of work.
type Resolver struct {
	repo  RowLoader
	cache *redis.Client
	ttl   time.Duration
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(repo RowLoader, cache *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl}
}

// Resolve returns the current engine configuration snapshot.
func (r *Resolver) Resolve(ctx context.Context) (Engine, error) {
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var rows map[string]string
			if err := json.Unmarshal(raw, &rows); err == nil {
				if engine, err := FromRows(rows); err == nil {
					return engine, nil
				}
			}
		}
	}
	rows, err := r.repo.LoadRows(ctx)
	if err != nil {
		return Engine{}, err
	}
	engine, err := FromRows(rows)
	if err != nil {
		return Engine{}, err
	}
	if r.cache != nil {
		if raw, err := json.Marshal(rows); err == nil {
			_ = r.cache.Set(ctx, cacheKey, raw, r.ttl).Err()
		}
	}
	return engine, nil
}
