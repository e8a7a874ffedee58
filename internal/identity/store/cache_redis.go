package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	identitymetrics "civreg/internal/identity/metrics"
	"civreg/internal/identity/models"
	"civreg/internal/reconcile"
	id "civreg/pkg/domain"
)

// Store is the persistence port shared by the backends in this package.
type Store interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	Execute(ctx context.Context, identityID id.IdentityID, fn func(*models.Identity) error) (*models.Identity, error)
}

const defaultCacheTTL = 5 * time.Minute

// CachedStore is a read-through Redis cache in front of another Store.
// Reads hit Redis first; every successful mutation refreshes the cached
// snapshot so readers observe the new state immediately. Cache failures
// degrade to the inner store, they never fail a request.
type CachedStore struct {
	inner   Store
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *identitymetrics.Metrics
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *CachedStore) { c.logger = logger }
}

func WithCacheMetrics(m *identitymetrics.Metrics) CacheOption {
	return func(c *CachedStore) { c.metrics = m }
}

func NewCachedStore(inner Store, client *redis.Client, opts ...CacheOption) *CachedStore {
	c := &CachedStore{
		inner:  inner,
		client: client,
		ttl:    defaultCacheTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(identityID id.IdentityID) string {
	return "civreg:identity:" + identityID.String()
}

func (c *CachedStore) Create(ctx context.Context, identity *models.Identity) error {
	if err := c.inner.Create(ctx, identity); err != nil {
		return err
	}
	c.refresh(ctx, identity)
	return nil
}

func (c *CachedStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	body, err := c.client.Get(ctx, cacheKey(identityID)).Bytes()
	if err == nil {
		identity, decodeErr := decodeIdentity(body)
		if decodeErr == nil {
			c.metrics.CacheHit()
			return identity, nil
		}
		// A stale or corrupt entry falls through to the inner store.
		c.logger.Warn("identity cache decode failed", zap.Error(decodeErr))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("identity cache read failed", zap.Error(err))
	}
	c.metrics.CacheMiss()

	identity, err := c.inner.FindByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	c.refresh(ctx, identity)
	return identity, nil
}

func (c *CachedStore) Execute(ctx context.Context, identityID id.IdentityID, fn func(*models.Identity) error) (*models.Identity, error) {
	identity, err := c.inner.Execute(ctx, identityID, fn)
	if err != nil {
		// The mutation may have been aborted after a partial write path in the
		// caller's mind; dropping the entry is always safe.
		if delErr := c.client.Del(ctx, cacheKey(identityID)).Err(); delErr != nil {
			c.logger.Warn("identity cache invalidation failed", zap.Error(delErr))
		}
		return nil, err
	}
	c.refresh(ctx, identity)
	return identity, nil
}

func (c *CachedStore) refresh(ctx context.Context, identity *models.Identity) {
	body, err := encodeIdentity(identity)
	if err != nil {
		c.logger.Warn("identity cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(identity.ID), body, c.ttl).Err(); err != nil {
		c.logger.Warn("identity cache write failed", zap.Error(err))
	}
}

// cachedIdentity is the Redis JSON representation of an identity snapshot.
type cachedIdentity struct {
	ID         string            `json:"id"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Attributes []cachedAttribute `json:"attributes"`
}

type cachedAttribute struct {
	Key           string     `json:"key"`
	Value         string     `json:"value"`
	CertifierCode string     `json:"certifier_code,omitempty"`
	TrustLevel    int        `json:"trust_level,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func encodeIdentity(identity *models.Identity) ([]byte, error) {
	cached := cachedIdentity{
		ID:        identity.ID.String(),
		Version:   identity.Version,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}
	for _, state := range identity.Attributes {
		attr := cachedAttribute{
			Key:   state.Key.String(),
			Value: state.Value,
		}
		if cert := state.Certification; cert != nil {
			attr.CertifierCode = cert.CertifierCode.String()
			attr.TrustLevel = cert.TrustLevel
			attr.ExpiresAt = cert.ExpiresAt
		}
		cached.Attributes = append(cached.Attributes, attr)
	}
	return json.Marshal(cached)
}

func decodeIdentity(body []byte) (*models.Identity, error) {
	var cached cachedIdentity
	if err := json.Unmarshal(body, &cached); err != nil {
		return nil, fmt.Errorf("unmarshal cached identity: %w", err)
	}
	identityID, err := id.ParseIdentityID(cached.ID)
	if err != nil {
		return nil, err
	}

	identity := &models.Identity{
		ID:         identityID,
		Version:    cached.Version,
		CreatedAt:  cached.CreatedAt,
		UpdatedAt:  cached.UpdatedAt,
		Attributes: make(map[id.AttributeKey]reconcile.AttributeState, len(cached.Attributes)),
	}
	for _, attr := range cached.Attributes {
		state := reconcile.AttributeState{
			Key:   id.AttributeKey(attr.Key),
			Value: attr.Value,
		}
		if attr.CertifierCode != "" {
			state.Certification = &reconcile.Certification{
				CertifierCode: id.CertifierCode(attr.CertifierCode),
				TrustLevel:    attr.TrustLevel,
				ExpiresAt:     attr.ExpiresAt,
			}
		}
		identity.Attributes[state.Key] = state
	}
	return identity, nil
}
