package router

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/pkg/twitch"
	"github.com/cliparino/cliparino/pkg/utils"
)

// shoutoutWindowsDays are the expanding lookback windows ShoutoutService
// tries in order, stopping at the first that yields a match.
var shoutoutWindowsDays = []int{1, 7, 30, 90, 365}

// featuredViewCountFloor is the view-count a clip must clear to count as
// "featured" when the API response carries no explicit flag.
const featuredViewCountFloor = 100

// ShoutoutConfig controls the `!so`/`!shoutout` pipeline.
type ShoutoutConfig struct {
	EnableMessage      bool
	MessageTemplate    string
	UseFeaturedFirst   bool
	MaxClipLength      float64
	MaxClipAgeDays     int
	SendTwitchShoutout bool
	ModeratorID        string
}

// ShoutoutService resolves a broadcaster's login to a representative
// clip, announces it in chat, optionally issues a native Twitch
// shoutout, and enqueues the clip for playback.
type ShoutoutService struct {
	helix       HelixClient
	engine      PlaybackEngine
	cfg         ShoutoutConfig
	fromBroadcasterID string
	logger      *utils.StructuredLogger
}

// NewShoutoutService constructs a ShoutoutService. fromBroadcasterID is
// the channel issuing the shoutout.
func NewShoutoutService(helix HelixClient, engine PlaybackEngine, fromBroadcasterID string, cfg ShoutoutConfig, logger *utils.StructuredLogger) *ShoutoutService {
	return &ShoutoutService{
		helix:             helix,
		engine:            engine,
		cfg:               cfg,
		fromBroadcasterID: fromBroadcasterID,
		logger:            logger.With("shoutout"),
	}
}

// Run executes the full pipeline for the broadcaster named by login.
func (s *ShoutoutService) Run(ctx context.Context, login string) error {
	toBroadcasterID, err := s.helix.GetBroadcasterIdByLogin(ctx, login)
	if err != nil {
		return fmt.Errorf("shoutout: resolve login %s: %w", login, err)
	}

	chosen, ok, err := s.pickClip(ctx, toBroadcasterID)
	if err != nil {
		return fmt.Errorf("shoutout: pick clip: %w", err)
	}
	if !ok {
		s.logger.Warn("no eligible clip found for shoutout", map[string]interface{}{"login": login})
		return nil
	}

	if s.cfg.EnableMessage && s.cfg.MessageTemplate != "" {
		text, err := s.renderMessage(ctx, toBroadcasterID)
		if err == nil {
			if sendErr := s.helix.SendChatMessage(ctx, s.fromBroadcasterID, s.fromBroadcasterID, text); sendErr != nil {
				s.logger.Warn("shoutout chat message failed", map[string]interface{}{"error": sendErr.Error()})
			}
		}
	}

	if s.cfg.SendTwitchShoutout {
		if err := s.helix.SendShoutout(ctx, s.fromBroadcasterID, toBroadcasterID, s.cfg.ModeratorID); err != nil {
			s.logger.Warn("native twitch shoutout failed", map[string]interface{}{"error": err.Error()})
		}
	}

	s.engine.Enqueue(clip.QueueEntry{
		Clip:       toDomainClip(chosen),
		EnqueuedAt: time.Now(),
		Source:     clip.SourceShoutout,
	})
	return nil
}

// pickClip walks the expanding lookback windows, stopping at the first
// window with an eligible clip.
func (s *ShoutoutService) pickClip(ctx context.Context, broadcasterID string) (twitch.Clip, bool, error) {
	now := time.Now()
	for _, days := range shoutoutWindowsDays {
		since := now.Add(-time.Duration(days) * 24 * time.Hour)
		candidates, err := s.helix.GetClipsForBroadcaster(ctx, broadcasterID, since, now, 100)
		if err != nil {
			return twitch.Clip{}, false, err
		}

		eligible := s.filterEligible(candidates, now)
		if len(eligible) == 0 {
			continue
		}

		chosen, ok := s.selectFrom(eligible)
		if ok {
			return chosen, true, nil
		}
	}
	return twitch.Clip{}, false, nil
}

func (s *ShoutoutService) filterEligible(candidates []twitch.Clip, now time.Time) []twitch.Clip {
	maxAge := time.Duration(s.cfg.MaxClipAgeDays) * 24 * time.Hour
	var eligible []twitch.Clip
	for _, c := range candidates {
		if s.cfg.MaxClipLength > 0 && c.Duration > s.cfg.MaxClipLength {
			continue
		}
		if s.cfg.MaxClipAgeDays > 0 && now.Sub(c.CreatedAt) > maxAge {
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible
}

// selectFrom applies the featured-first preference (falling back to
// non-featured within the same window) and picks uniformly at random
// from the resulting set.
func (s *ShoutoutService) selectFrom(eligible []twitch.Clip) (twitch.Clip, bool) {
	pool := eligible
	if s.cfg.UseFeaturedFirst {
		var featured []twitch.Clip
		for _, c := range eligible {
			if isFeatured(c) {
				featured = append(featured, c)
			}
		}
		if len(featured) > 0 {
			pool = featured
		}
	}
	if len(pool) == 0 {
		return twitch.Clip{}, false
	}

	idx, err := randIndex(len(pool))
	if err != nil {
		return pool[0], true
	}
	return pool[idx], true
}

func isFeatured(c twitch.Clip) bool {
	return c.IsFeatured || c.ViewCount >= featuredViewCountFloor
}

func randIndex(n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	bi, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(bi.Int64()), nil
}

func (s *ShoutoutService) renderMessage(ctx context.Context, broadcasterID string) (string, error) {
	info, err := s.helix.GetChannelInfo(ctx, broadcasterID)
	if err != nil {
		return "", err
	}
	text := s.cfg.MessageTemplate
	text = strings.ReplaceAll(text, "{broadcaster}", info.BroadcasterName)
	text = strings.ReplaceAll(text, "{game}", info.GameName)
	return text, nil
}
