package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// RedisClient is the minimal key-value surface the archive needs. The
// production implementation lives in internal/infra.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	SAdd(ctx context.Context, key string, member string) error
	SRem(ctx context.Context, key string, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

const (
	incidentKeyPrefix  = "sentinel:incident:"
	incidentIndexKey   = "sentinel:incidents"
	incidentChannelKey = "sentinel:incidents:new"
)

// RedisArchive persists incidents to Redis so the corpus outlives the
// process and can be shared across agents.
type RedisArchive struct {
	client RedisClient
	log    *slog.Logger
}

// NewRedisArchive builds an archive over the client.
func NewRedisArchive(client RedisClient, log *slog.Logger) *RedisArchive {
	if log == nil {
		log = slog.Default()
	}
	return &RedisArchive{client: client, log: log}
}

// Save stores an incident and announces it on the incident channel.
func (a *RedisArchive) Save(ctx context.Context, inc Incident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident %s: %w", inc.IncidentID, err)
	}
	if err := a.client.Set(ctx, incidentKeyPrefix+inc.IncidentID, data, 0); err != nil {
		return fmt.Errorf("store incident %s: %w", inc.IncidentID, err)
	}
	if err := a.client.SAdd(ctx, incidentIndexKey, inc.IncidentID); err != nil {
		return fmt.Errorf("index incident %s: %w", inc.IncidentID, err)
	}
	if err := a.client.Publish(ctx, incidentChannelKey, data); err != nil {
		a.log.Warn("incident announce failed", "incident_id", inc.IncidentID, "err", err)
	}
	return nil
}

// Load reads the full incident corpus from Redis. Entries that fail to
// decode are skipped with a warning.
func (a *RedisArchive) Load(ctx context.Context) ([]Incident, error) {
	ids, err := a.client.SMembers(ctx, incidentIndexKey)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	incidents := make([]Incident, 0, len(ids))
	for _, id := range ids {
		data, err := a.client.Get(ctx, incidentKeyPrefix+id)
		if err != nil {
			a.log.Warn("incident fetch failed", "incident_id", id, "err", err)
			continue
		}
		var inc Incident
		if err := json.Unmarshal(data, &inc); err != nil {
			a.log.Warn("incident decode failed", "incident_id", id, "err", err)
			continue
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// Delete removes an incident from the archive.
func (a *RedisArchive) Delete(ctx context.Context, id string) error {
	if err := a.client.Del(ctx, incidentKeyPrefix+id); err != nil {
		return err
	}
	return a.client.SRem(ctx, incidentIndexKey, id)
}

// Hydrate merges archived incidents into the store, skipping ids the
// store already holds.
func (a *RedisArchive) Hydrate(ctx context.Context, store *Store) (int, error) {
	incidents, err := a.Load(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, inc := range incidents {
		if _, ok := store.Get(inc.IncidentID); ok {
			continue
		}
		store.Add(inc)
		added++
	}
	a.log.Info("incident store hydrated", "added", added, "archived", len(incidents))
	return added, nil
}
