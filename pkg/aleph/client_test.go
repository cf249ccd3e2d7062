package aleph_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libertai/ltai-points/pkg/aleph"
	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/store"
	"github.com/libertai/ltai-points/pkg/types"
)

const (
	senderA = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	senderB = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

type page struct {
	Posts           []map[string]any `json:"posts"`
	PaginationTotal int              `json:"pagination_total"`
	PaginationPage  int              `json:"pagination_page"`
	PerPage         int              `json:"pagination_per_page"`
}

func servePages(t *testing.T, pages []page) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/posts.json", r.URL.Path)
		n := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &n)
		}
		require.LessOrEqual(t, n, len(pages), "client requested a page past the end")
		require.NoError(t, json.NewEncoder(w).Encode(pages[n-1]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func regPost(sender string, ts float64) map[string]any {
	return map[string]any{
		"sender": sender,
		"type":   "libertai-registration",
		"time":   ts,
	}
}

func TestPostsWalksAllPages(t *testing.T) {
	srv := servePages(t, []page{
		{Posts: []map[string]any{regPost(senderA, 1), regPost(senderB, 2)},
			PaginationTotal: 3, PaginationPage: 1, PerPage: 2},
		{Posts: []map[string]any{regPost(senderA, 3)},
			PaginationTotal: 3, PaginationPage: 2, PerPage: 2},
	})
	client := aleph.NewClient(srv.URL, zaptest.NewLogger(t))

	posts, err := client.Posts(context.Background(), aleph.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestPostsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(page{
			Posts:           []map[string]any{regPost(senderA, 1)},
			PaginationTotal: 1, PaginationPage: 1, PerPage: 200,
		})
	}))
	t.Cleanup(srv.Close)

	client := aleph.NewClient(srv.URL, zaptest.NewLogger(t))
	posts, err := client.Posts(context.Background(), aleph.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRegistrationsKeepEarliestPerAddress(t *testing.T) {
	srv := servePages(t, []page{{
		Posts: []map[string]any{
			regPost(senderA, 1700000500),
			// Same account, different casing, earlier opt-in.
			regPost("0x70997970c51812dc3a010c7d01b50e0d17dc79c8", 1700000000),
			regPost(senderB, 1700001000),
			regPost("not-an-address", 1700002000),
		},
		PaginationTotal: 4, PaginationPage: 1, PerPage: 200,
	}})
	client := aleph.NewClient(srv.URL, zaptest.NewLogger(t))

	regs, err := aleph.Registrations(context.Background(), client, &config.Settings{Channel: "LIBERTAI"})
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), regs[types.Address(senderA)])
	assert.Equal(t, time.Unix(1700001000, 0).UTC(), regs[types.Address(senderB)])
}

func snapshotPost(t *testing.T, date string, ts float64) map[string]any {
	t.Helper()
	content, err := json.Marshal(types.NetworkSnapshot{Date: date})
	require.NoError(t, err)
	return map[string]any{
		"sender":  senderA,
		"type":    "corechannel-snapshot",
		"time":    ts,
		"content": json.RawMessage(content),
	}
}

func TestSnapshotSourceSyncsOnceAndMemoizes(t *testing.T) {
	srv := servePages(t, []page{{
		Posts: []map[string]any{
			snapshotPost(t, "2024-01-01", 1704067300),
			snapshotPost(t, "2024-01-02", 1704153700),
		},
		PaginationTotal: 2, PaginationPage: 1, PerPage: 200,
	}})
	client := aleph.NewClient(srv.URL, zaptest.NewLogger(t))
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Settings{CorechannelSender: senderA, Tag: "mainnet"}
	src := aleph.NewSnapshotSource(client, cfg, st, zaptest.NewLogger(t))

	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snap, err := src.Snapshot(context.Background(), day1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", snap.Date)

	// The sync already ran; later days come straight from the store even
	// with the upstream gone.
	srv.Close()
	snap, err = src.Snapshot(context.Background(), day1.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", snap.Date)

	_, err = src.Snapshot(context.Background(), day1.Add(48*time.Hour))
	assert.ErrorIs(t, err, types.ErrSnapshotUnavailable)
}

func TestSnapshotSourceDatesUndatedPostsFromPostTime(t *testing.T) {
	srv := servePages(t, []page{{
		Posts: []map[string]any{
			snapshotPost(t, "", 1704067300), // 2024-01-01 UTC
		},
		PaginationTotal: 1, PaginationPage: 1, PerPage: 200,
	}})
	client := aleph.NewClient(srv.URL, zaptest.NewLogger(t))
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Settings{CorechannelSender: senderA, Tag: "mainnet"}
	src := aleph.NewSnapshotSource(client, cfg, st, zaptest.NewLogger(t))

	snap, err := src.Snapshot(context.Background(), time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", snap.Date)
}
