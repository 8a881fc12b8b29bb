package clickhouse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	wizardtesting "github.com/adlabs/taxonomy-wizard/utils/pkg/testing"
)

type cacheTestClient struct {
	closed bool
}

func (c *cacheTestClient) Conn(ctx context.Context) (Connection, error) { return nil, nil }
func (c *cacheTestClient) Close() error {
	c.closed = true
	return nil
}

func TestWizard_ClientCache(t *testing.T) {
	t.Parallel()

	t.Run("creates once per scope set and reuses", func(t *testing.T) {
		t.Parallel()

		created := 0
		cache := NewClientCache([]string{"default-scope"}, func(ctx context.Context, scopes []string) (Client, error) {
			created++
			return &cacheTestClient{}, nil
		})

		a, err := cache.Get(context.Background(), "read", "write")
		require.NoError(t, err)
		b, err := cache.Get(context.Background(), "write", "read")
		require.NoError(t, err)
		require.Same(t, a, b, "scope order must not matter")
		require.Equal(t, 1, created)

		c, err := cache.Get(context.Background())
		require.NoError(t, err)
		require.NotSame(t, a, c, "default scopes are a distinct entry")
		require.Equal(t, 2, created)
	})

	t.Run("propagates constructor errors without caching them", func(t *testing.T) {
		t.Parallel()

		calls := 0
		cache := NewClientCache(nil, func(ctx context.Context, scopes []string) (Client, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection refused")
			}
			return &cacheTestClient{}, nil
		})

		_, err := cache.Get(context.Background(), "s")
		require.Error(t, err)

		_, err = cache.Get(context.Background(), "s")
		require.NoError(t, err)
		require.Equal(t, 2, calls)
	})

	t.Run("close closes every cached client", func(t *testing.T) {
		t.Parallel()

		clients := []*cacheTestClient{}
		cache := NewClientCache(nil, func(ctx context.Context, scopes []string) (Client, error) {
			c := &cacheTestClient{}
			clients = append(clients, c)
			return c, nil
		})

		_, err := cache.Get(context.Background(), "a")
		require.NoError(t, err)
		_, err = cache.Get(context.Background(), "b")
		require.NoError(t, err)

		require.NoError(t, cache.Close(wizardtesting.NewLogger()))
		require.Len(t, clients, 2)
		for _, c := range clients {
			require.True(t, c.closed)
		}
	})
}
