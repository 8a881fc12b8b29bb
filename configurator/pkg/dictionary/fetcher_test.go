package dictionary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adlabs/taxonomy-wizard/utils/pkg/retry"
	wizardtesting "github.com/adlabs/taxonomy-wizard/utils/pkg/testing"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Config{
		Logger: wizardtesting.NewLogger(),
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  5 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return f
}

func TestWizard_Dictionary_FetchValues(t *testing.T) {
	t.Parallel()

	t.Run("parses first column and drops blanks", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "regions", r.URL.Query().Get("sheet"))
			require.Equal(t, "A2:A", r.URL.Query().Get("range"))
			w.Write([]byte("US,United States\nDE,Germany\n\nJP,Japan\n"))
		}))
		defer srv.Close()

		values, err := newTestFetcher(t).FetchValues(context.Background(), srv.URL, "regions", "A2:A")
		require.NoError(t, err)
		require.Equal(t, []string{"US", "DE", "JP"}, values)
	})

	t.Run("retries transient server errors", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				http.Error(w, "temporarily down", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("US\n"))
		}))
		defer srv.Close()

		values, err := newTestFetcher(t).FetchValues(context.Background(), srv.URL, "regions", "")
		require.NoError(t, err)
		require.Equal(t, []string{"US"}, values)
		require.Equal(t, int32(3), hits.Load())
	})

	t.Run("does not retry not found", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Error(w, "no such sheet", http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestFetcher(t).FetchValues(context.Background(), srv.URL, "missing", "")
		require.Error(t, err)
		require.True(t, retry.IsNotFound(err))
		require.Equal(t, int32(1), hits.Load())
	})

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()

		_, err := newTestFetcher(t).FetchValues(context.Background(), "", "regions", "")
		require.Error(t, err)
	})
}
