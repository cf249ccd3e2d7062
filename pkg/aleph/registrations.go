package aleph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/types"
)

const registrationPostType = "libertai-registration"

// Registrations reads every opt-in post and collapses each address to its
// earliest registration time.
func Registrations(ctx context.Context, client *Client, cfg *config.Settings) (map[types.Address]time.Time, error) {
	posts, err := client.Posts(ctx, PostFilter{
		Channels: []string{cfg.Channel},
		Types:    []string{registrationPostType},
	})
	if err != nil {
		return nil, err
	}

	out := map[types.Address]time.Time{}
	for _, post := range posts {
		addr, err := types.Normalize(post.Sender)
		if err != nil {
			client.logger.Warn("skipping registration with malformed sender",
				zap.String("sender", post.Sender))
			continue
		}
		seen := unixFloat(post.Time)
		if first, ok := out[addr]; !ok || seen.Before(first) {
			out[addr] = seen
		}
	}
	client.logger.Info("loaded registrations", zap.Int("count", len(out)))
	return out, nil
}

func unixFloat(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
