package apify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunActor_MissingToken(t *testing.T) {
	c := New(Options{})
	_, err := c.RunActor(context.Background(), "acme~actor", map[string]any{})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "APIFY_TOKEN")
}

func TestRunActor_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/v2/acts/acme~actor/run-sync-get-dataset-items", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"title":"one"},{"title":"two"}]`))
	}))
	defer srv.Close()

	c := New(Options{Token: "secret", BaseURL: srv.URL})
	items, err := c.RunActor(context.Background(), "acme~actor", map[string]any{"asin": "B0CX23V2ZK"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRunActor_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "actor crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{Token: "secret", BaseURL: srv.URL})
	_, err := c.RunActor(context.Background(), "acme~actor", nil)
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusBadGateway, provErr.Status)
	assert.Equal(t, "acme~actor", provErr.Actor)
}

func TestRunActor_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := New(Options{Token: "secret", BaseURL: srv.URL})
	_, err := c.RunActor(context.Background(), "acme~actor", nil)
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
}

func TestRunActor_TimeoutIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Options{Token: "secret", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.RunActor(context.Background(), "acme~actor", nil)
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Zero(t, provErr.Status)
}
