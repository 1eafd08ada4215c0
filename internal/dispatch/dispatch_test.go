package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

func TestDispatch_Payload(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		Endpoints:   map[string]string{"fans": srv.URL},
		CallbackURL: "https://yan.example.com/openserv_webhook",
	})
	require.NoError(t, err)

	user := &store.User{ID: 77, XHandle: "alice", FarcasterID: 123}
	require.NoError(t, c.Dispatch(context.Background(), tasks.Fans, user, "job-1"))

	want := Request{
		XHandle:     "alice",
		FarcasterID: 123,
		ViewerID:    123,
		CallbackURL: "https://yan.example.com/openserv_webhook",
		CallbackMetadata: CallbackMetadata{
			JobID:    "job-1",
			UserID:   77,
			TaskKind: "fans",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatch payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_UnknownKind(t *testing.T) {
	c, err := NewClient(Config{Endpoints: map[string]string{"fans": "http://127.0.0.1:1"}})
	require.NoError(t, err)

	err = c.Dispatch(context.Background(), tasks.Cast, &store.User{ID: 1}, "job")
	assert.ErrorIs(t, err, ErrUnknownTaskKind)
}

func TestNewClient_RejectsUnknownEndpointKey(t *testing.T) {
	_, err := NewClient(Config{Endpoints: map[string]string{"horoscope": "http://x"}})
	assert.ErrorIs(t, err, tasks.ErrUnknownKind)
}

func TestDispatch_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoints: map[string]string{"report": srv.URL}})
	require.NoError(t, err)

	err = c.Dispatch(context.Background(), tasks.Report, &store.User{ID: 1, FarcasterID: 2}, "job")
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Contains(t, err.Error(), "502")
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{
		Endpoints: map[string]string{"trending": srv.URL},
		Timeout:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	err = c.Dispatch(context.Background(), tasks.Trending, &store.User{ID: 1, FarcasterID: 2}, "job")
	assert.ErrorIs(t, err, ErrDispatchFailed)
}
