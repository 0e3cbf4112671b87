package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pojntfx/storrent/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jackettSearchBody = `{
	"Results": [
		{
			"Title": "Arch Linux ISO (Mock)",
			"Size": 840499200,
			"Seeders": 523,
			"Peers": 17,
			"Tracker": "MockIndexer",
			"MagnetUri": "magnet:?xt=urn:btih:mock"
		}
	]
}`

func TestJackettSearch(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		assert.Equal(t, "/api/v2.0/indexers/all/results", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "arch linux iso", r.URL.Query().Get("query"))

		w.Write([]byte(jackettSearchBody))
	}))
	defer srv.Close()

	jackett := NewJackett(srv.URL, "key", Options{})

	torrents, err := jackett.Search(context.Background(), "arch linux iso", false)
	require.NoError(t, err)

	require.Len(t, torrents, 1)
	assert.Equal(t, Torrent{
		Title:     "Arch Linux ISO (Mock)",
		Size:      840499200,
		Seeders:   523,
		Leechers:  17,
		Source:    "MockIndexer",
		MagnetURI: "magnet:?xt=urn:btih:mock",
	}, torrents[0])
	assert.Equal(t, 1, requests)
}

func TestJackettSearchFallsBackToLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Results": [{"Title": "a", "Link": "http://example.com/a.torrent"}]}`))
	}))
	defer srv.Close()

	jackett := NewJackett(srv.URL, "key", Options{})

	torrents, err := jackett.Search(context.Background(), "a", false)
	require.NoError(t, err)

	require.Len(t, torrents, 1)
	assert.Equal(t, "http://example.com/a.torrent", torrents[0].MagnetURI)
	assert.Equal(t, "unknown", torrents[0].Source)
}

func TestJackettSearchServesSecondHitFromCache(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		w.Write([]byte(jackettSearchBody))
	}))
	defer srv.Close()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Now)
	require.NoError(t, err)
	defer c.Close()

	jackett := NewJackett(srv.URL, "key", Options{Cache: c})

	first, err := jackett.Search(context.Background(), "arch linux iso", true)
	require.NoError(t, err)

	second, err := jackett.Search(context.Background(), "arch linux iso", true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, requests)
}

func TestJackettSearchBypassesCacheWhenDisabled(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		w.Write([]byte(jackettSearchBody))
	}))
	defer srv.Close()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Now)
	require.NoError(t, err)
	defer c.Close()

	jackett := NewJackett(srv.URL, "key", Options{Cache: c})

	_, err = jackett.Search(context.Background(), "arch linux iso", false)
	require.NoError(t, err)

	_, err = jackett.Search(context.Background(), "arch linux iso", false)
	require.NoError(t, err)

	assert.Equal(t, 2, requests)
}

func TestJackettSearchDoesNotRetryUnauthorized(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	jackett := NewJackett(srv.URL, "wrong", Options{})

	_, err := jackett.Search(context.Background(), "a", false)

	assert.ErrorIs(t, err, &Error{Kind: KindInvalidAPIKey})
	assert.Equal(t, 1, requests)
}

func TestJackettSearchRetriesTransportFailures(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		// Sever the connection mid-request so the client sees a
		// transport-level failure rather than an HTTP status
		if requests <= 2 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()

			return
		}

		w.Write([]byte(jackettSearchBody))
	}))
	defer srv.Close()

	jackett := NewJackett(srv.URL, "key", Options{MaxRetries: 2})

	torrents, err := jackett.Search(context.Background(), "arch linux iso", false)
	require.NoError(t, err)

	require.Len(t, torrents, 1)
	// Two retries after the initial attempt
	assert.Equal(t, 3, requests)
}

func TestJackettHealthcheck(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantOK   bool
	}{
		{
			name:   "2xx is healthy",
			status: http.StatusOK,
			wantOK: true,
		},
		{
			name:   "500 naming the nonexistent indexer is healthy",
			status: http.StatusInternalServerError,
			body:   `{"error": "nonexistent_indexer is not configured"}`,
			wantOK: true,
		},
		{
			name:     "401 means the API key was rejected",
			status:   http.StatusUnauthorized,
			wantKind: KindInvalidAPIKey,
		},
		{
			name:     "500 without the nonexistent indexer name is unexpected",
			status:   http.StatusInternalServerError,
			body:     `{"error": "database is on fire"}`,
			wantKind: KindUnexpectedStatus,
		},
		{
			name:     "other statuses are unexpected",
			status:   http.StatusBadGateway,
			wantKind: KindUnexpectedStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v2.0/indexers/nonexistent_indexer/results", r.URL.Path)

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			jackett := NewJackett(srv.URL, "key", Options{})

			err := jackett.Healthcheck(context.Background())
			if tt.wantOK {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, &Error{Kind: tt.wantKind})
		})
	}
}

func TestJackettHealthcheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	jackett := NewJackett(srv.URL, "key", Options{})

	err := jackett.Healthcheck(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindUnreachable})
	assert.Contains(t, err.Error(), "could not connect to jackett")
}

func TestJackettInvalidAPIKeyErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	jackett := NewJackett(srv.URL, "wrong", Options{})

	err := jackett.Healthcheck(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid jackett API key")
	assert.Contains(t, err.Error(), "double-check the API key")
}

func TestJackettTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2.0/indexers/all/results", r.URL.Path)

		w.Write([]byte(`{"Results": []}`))
	}))
	defer srv.Close()

	jackett := NewJackett(srv.URL+"/", "key", Options{})

	torrents, err := jackett.Search(context.Background(), "a", false)
	require.NoError(t, err)
	assert.Empty(t, torrents)
}
