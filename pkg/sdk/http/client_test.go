package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequest_GetWithParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/info", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("api_key"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"duck","count":3}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Options{Timeout: time.Second, UserAgent: "test-agent"})
	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	_, err := c.DoRequest(context.Background(), http.MethodGet, "/api/info", &RequestOptions{
		Headers: map[string]string{"X-Extra": "yes"},
		Params:  map[string]any{"api_key": "k1"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "duck", out.Name)
	assert.Equal(t, 3, out.Count)
}

func TestDoRequest_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "BTC", in["symbol"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Options{})
	var out struct {
		OK bool `json:"ok"`
	}
	_, err := c.DoRequest(context.Background(), "post", "/play", &RequestOptions{Data: map[string]string{"symbol": "BTC"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestDoRequest_HTTPErrors(t *testing.T) {
	cases := []struct {
		status    int
		temporary bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnprocessableEntity, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, Options{Timeout: time.Second})
			_, err := c.DoRequest(context.Background(), http.MethodPost, "/play", nil, nil)
			require.Error(t, err)

			var herr *HTTPError
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, tc.status, herr.Status)
			assert.Equal(t, tc.temporary, herr.Temporary())
			assert.Equal(t, map[string]interface{}{"error": "nope"}, herr.Body)
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no retries without RetryCount")
		})
	}
}

func TestDoRequest_PlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Options{}).DoRequest(context.Background(), http.MethodGet, "/", nil, nil)
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "upstream down", herr.Body)
}

func TestDoRequest_UnsupportedMethod(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", Options{})
	_, err := c.DoRequest(context.Background(), "PATCH", "/x", nil, nil)
	assert.EqualError(t, err, "unsupported method: PATCH")
}
