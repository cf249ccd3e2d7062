package aleph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/store"
	"github.com/libertai/ltai-points/pkg/types"
)

const snapshotPostType = "corechannel-snapshot"

// SnapshotSource serves daily network snapshots, memoized in the local
// store: a day fetched once is never refetched.
type SnapshotSource struct {
	client *Client
	cfg    *config.Settings
	store  *store.Snapshots
	logger *zap.Logger

	mu     sync.Mutex // guards synced; Snapshot is called concurrently
	synced bool
}

// NewSnapshotSource builds a source backed by the given client and store.
func NewSnapshotSource(client *Client, cfg *config.Settings, st *store.Snapshots, logger *zap.Logger) *SnapshotSource {
	return &SnapshotSource{client: client, cfg: cfg, store: st, logger: logger}
}

// Snapshot returns the snapshot for the UTC day containing t. Missing days
// yield ErrSnapshotUnavailable after a sync against the corechannel sender.
func (s *SnapshotSource) Snapshot(ctx context.Context, t time.Time) (*types.NetworkSnapshot, error) {
	day := types.DayKey(t)
	if snap, ok, err := s.store.Get(day); err != nil {
		return nil, err
	} else if ok {
		return snap, nil
	}

	if err := s.sync(ctx); err != nil {
		return nil, err
	}

	snap, ok, err := s.store.Get(day)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("day %s: %w", day, types.ErrSnapshotUnavailable)
	}
	return snap, nil
}

// sync pulls every snapshot post from the corechannel sender into the
// store. Runs at most once per SnapshotSource lifetime.
func (s *SnapshotSource) sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synced {
		return nil
	}
	posts, err := s.client.Posts(ctx, PostFilter{
		Addresses: []string{s.cfg.CorechannelSender},
		Types:     []string{snapshotPostType},
		Tags:      []string{s.cfg.Tag},
	})
	if err != nil {
		return fmt.Errorf("sync snapshots: %w", err)
	}

	stored := 0
	for _, post := range posts {
		var snap types.NetworkSnapshot
		if err := json.Unmarshal(post.Content, &snap); err != nil {
			s.logger.Warn("skipping undecodable snapshot post", zap.Error(err))
			continue
		}
		if snap.Date == "" {
			snap.Date = types.DayKey(unixFloat(post.Time))
		}
		if err := s.store.Put(&snap); err != nil {
			return err
		}
		stored++
	}
	s.logger.Info("synced snapshot posts", zap.Int("posts", stored))
	s.synced = true
	return nil
}
