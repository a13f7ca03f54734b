package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigadas-analytics/internal/services/hierarchy"
)

const hierarchyBody = `[
  {
    "id": "L1",
    "name": "Lucía Méndez",
    "region": "Jalisco",
    "verified": true,
    "created_at": "2025-01-10T09:00:00Z",
    "brigadistas": [
      {
        "id": "B1",
        "leader_id": "L1",
        "name": "Bruno",
        "created_at": "2025-01-11T09:00:00Z",
        "movilizadores": [
          {
            "id": "M1",
            "brigade_member_id": "B1",
            "name": "Marta",
            "created_at": "2025-01-12T09:00:00Z",
            "ciudadanos": [
              {"id": "C1", "mobilizer_id": "M1", "name": "Carlos", "created_at": "2025-01-13T09:00:00Z"},
              {"id": "C2", "mobilizer_id": "M1", "name": "Clara", "created_at": "2025-01-13T10:00:00Z"}
            ]
          }
        ]
      }
    ]
  }
]`

func newTestClient(url string) *Client {
	c := NewClient(url, "secret-key")
	c.SetRetryWait(time.Millisecond, 5*time.Millisecond)
	return c
}

func TestFetchHierarchy(t *testing.T) {
	t.Run("Should send credentials and decode nested rows", func(t *testing.T) {
		var got *http.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(hierarchyBody))
		}))
		defer server.Close()

		leaders, err := newTestClient(server.URL+"/").FetchHierarchy(context.Background(), nil)
		require.NoError(t, err)

		require.NotNil(t, got)
		assert.Equal(t, "/rest/v1/leaders", got.URL.Path)
		assert.Equal(t, "secret-key", got.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret-key", got.Header.Get("Authorization"))
		assert.Equal(t, hierarchySelect, got.URL.Query().Get("select"))
		assert.Equal(t, "created_at.asc,id.asc", got.URL.Query().Get("order"))
		assert.Empty(t, got.URL.Query().Get("region"))

		require.Len(t, leaders, 1)
		assert.Equal(t, "Lucía Méndez", leaders[0].Name)
		assert.True(t, leaders[0].Verified)
		require.Len(t, leaders[0].BrigadeMembers, 1)
		require.Len(t, leaders[0].BrigadeMembers[0].Mobilizers, 1)
		assert.Len(t, leaders[0].BrigadeMembers[0].Mobilizers[0].Citizens, 2)
	})

	t.Run("Should push regions and date range down as query filters", func(t *testing.T) {
		var query map[string][]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query()
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
		filter := &hierarchy.Filter{
			Regions:   []string{"Jalisco", "Nuevo León"},
			DateRange: &hierarchy.DateRange{Start: &start, End: &end},
		}

		leaders, err := newTestClient(server.URL).FetchHierarchy(context.Background(), filter)
		require.NoError(t, err)
		assert.Empty(t, leaders)

		assert.Equal(t, []string{`in.("Jalisco","Nuevo León")`}, query["region"])
		assert.Equal(t, []string{"gte.2025-01-01T00:00:00Z", "lte.2025-01-31T23:59:59Z"}, query["created_at"])
	})

	t.Run("Should retry server errors", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchHierarchy(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	})

	t.Run("Should fail on non-success status without retrying client errors", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchHierarchy(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 401")
		assert.Contains(t, err.Error(), "Invalid API key")
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("Should fail on a malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a list"}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchHierarchy(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode")
	})
}

func TestQuoteValue(t *testing.T) {
	assert.Equal(t, `"a,b"`, quoteValue("a,b"))
	assert.Equal(t, `"say \"hi\""`, quoteValue(`say "hi"`))
	assert.Equal(t, `"back\\slash"`, quoteValue(`back\slash`))
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.URL.Query().Get("select"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
}
