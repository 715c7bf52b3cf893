// Package cache provides a Redis-backed read-through cache in front of
// PreferenceRepository reads.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
)

// PreferenceCache implements out.PreferenceCache. A miss or a Redis error is
// treated identically by the caller (C4 falls through to the repository),
// so every method here swallows its error and reports a plain cache miss
// (or does nothing, for writes). Decode, encode, write and invalidate
// errors are logged; a failed Redis read is not, since it is
// indistinguishable from an ordinary miss here.
type PreferenceCache struct {
	client *redis.Client
}

func NewPreferenceCache(client *redis.Client) *PreferenceCache {
	return &PreferenceCache{client: client}
}

func senderKey(accountID, senderEmail string) string {
	return "pref:sender:" + accountID + ":" + senderEmail
}

func domainKey(accountID, domainName string) string {
	return "pref:domain:" + accountID + ":" + domainName
}

func (c *PreferenceCache) GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, bool) {
	raw, err := c.client.Get(ctx, senderKey(accountID, senderEmail)).Bytes()
	if err != nil {
		return nil, false
	}
	var pref domain.SenderPreference
	if err := json.Unmarshal(raw, &pref); err != nil {
		logger.WithError(err).Warn("failed to decode cached sender preference")
		return nil, false
	}
	return &pref, true
}

func (c *PreferenceCache) SetSenderPreference(ctx context.Context, pref *domain.SenderPreference, ttl time.Duration) {
	raw, err := json.Marshal(pref)
	if err != nil {
		logger.WithError(err).Warn("failed to encode sender preference for cache")
		return
	}
	if err := c.client.Set(ctx, senderKey(pref.AccountID, pref.SenderEmail), raw, ttl).Err(); err != nil {
		logger.WithError(err).Warn("failed to write sender preference cache entry")
	}
}

func (c *PreferenceCache) GetDomainPreference(ctx context.Context, accountID, domainName string) (*domain.DomainPreference, bool) {
	raw, err := c.client.Get(ctx, domainKey(accountID, domainName)).Bytes()
	if err != nil {
		return nil, false
	}
	var pref domain.DomainPreference
	if err := json.Unmarshal(raw, &pref); err != nil {
		logger.WithError(err).Warn("failed to decode cached domain preference")
		return nil, false
	}
	return &pref, true
}

func (c *PreferenceCache) SetDomainPreference(ctx context.Context, pref *domain.DomainPreference, ttl time.Duration) {
	raw, err := json.Marshal(pref)
	if err != nil {
		logger.WithError(err).Warn("failed to encode domain preference for cache")
		return
	}
	if err := c.client.Set(ctx, domainKey(pref.AccountID, pref.Domain), raw, ttl).Err(); err != nil {
		logger.WithError(err).Warn("failed to write domain preference cache entry")
	}
}

// Invalidate drops both cache entries after C9 writes a fresh preference
// row, so the next C4 read doesn't serve a stale rate.
func (c *PreferenceCache) Invalidate(ctx context.Context, accountID, senderEmail, domainName string) {
	keys := make([]string, 0, 2)
	if senderEmail != "" {
		keys = append(keys, senderKey(accountID, senderEmail))
	}
	if domainName != "" {
		keys = append(keys, domainKey(accountID, domainName))
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.WithError(err).Warn("failed to invalidate preference cache entries")
	}
}

var _ out.PreferenceCache = (*PreferenceCache)(nil)
