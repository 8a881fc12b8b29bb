package clickhouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ClientCache hands out one Client per credential-scope set for the life of
// the process. Clients are created lazily on first use and reused across
// requests.
type ClientCache struct {
	mu            sync.Mutex
	clients       map[string]Client
	defaultScopes []string
	newClient     func(ctx context.Context, scopes []string) (Client, error)
}

// NewClientCache creates a cache. newClient is invoked once per distinct
// scope set.
func NewClientCache(defaultScopes []string, newClient func(ctx context.Context, scopes []string) (Client, error)) *ClientCache {
	return &ClientCache{
		clients:       make(map[string]Client),
		defaultScopes: defaultScopes,
		newClient:     newClient,
	}
}

// Get returns the cached client for the given scopes, creating it if needed.
// An empty scope list falls back to the cache's default scopes.
func (c *ClientCache) Get(ctx context.Context, scopes ...string) (Client, error) {
	if len(scopes) == 0 {
		scopes = c.defaultScopes
	}
	key := scopeKey(scopes)

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	client, err := c.newClient(ctx, scopes)
	if err != nil {
		return nil, err
	}
	c.clients[key] = client
	return client, nil
}

// Close closes every cached client, keeping the first error.
func (c *ClientCache) Close(log *slog.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, client := range c.clients {
		if err := client.Close(); err != nil {
			log.Error("failed to close warehouse client", "scope_key", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(c.clients, key)
	}
	return firstErr
}

func scopeKey(scopes []string) string {
	sorted := make([]string, len(scopes))
	copy(sorted, scopes)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
