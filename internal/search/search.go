// Package search implements SearchService (C12): fuzzy ranking of a
// broadcaster's clips against free-text chat queries, grounded on the
// same normalized-distance approach
// subculture-collective-clipper's matching layer uses for command
// grammar, generalized to a three-tier scoring function.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/pkg/twitch"
)

// HelixLister is the subset of twitch.Client SearchService depends on.
type HelixLister interface {
	GetClipsForBroadcaster(ctx context.Context, broadcasterID string, startedAt, endedAt time.Time, first int) ([]twitch.Clip, error)
}

// Config controls the search window and fuzzy-match cutoff.
type Config struct {
	WindowDays          int
	FuzzyMatchThreshold float64
}

// Service scores a broadcaster's recent clips against a free-text query.
type Service struct {
	helix HelixLister
	cfg   Config
}

// New constructs a Service.
func New(helix HelixLister, cfg Config) *Service {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 90
	}
	if cfg.FuzzyMatchThreshold <= 0 {
		cfg.FuzzyMatchThreshold = 0.4
	}
	return &Service{helix: helix, cfg: cfg}
}

// scored pairs a candidate clip with its match score, for ranking.
type scored struct {
	clip  twitch.Clip
	score float64
}

// Best returns the highest-scoring clip among broadcasterID's recent
// clips against terms, or ok=false if nothing scored above threshold.
func (s *Service) Best(ctx context.Context, broadcasterID, terms string, now time.Time) (clip.Clip, bool, error) {
	since := now.Add(-time.Duration(s.cfg.WindowDays) * 24 * time.Hour)
	candidates, err := s.helix.GetClipsForBroadcaster(ctx, broadcasterID, since, now, 100)
	if err != nil {
		return clip.Clip{}, false, err
	}

	query := normalize(terms)
	if query == "" || len(candidates) == 0 {
		return clip.Clip{}, false, nil
	}

	var results []scored
	for _, c := range candidates {
		score := s.score(query, normalize(c.Title))
		if score <= 0 {
			continue
		}
		results = append(results, scored{clip: c, score: score})
	}
	if len(results) == 0 {
		return clip.Clip{}, false, nil
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].clip.ViewCount != results[j].clip.ViewCount {
			return results[i].clip.ViewCount > results[j].clip.ViewCount
		}
		return results[i].clip.CreatedAt.After(results[j].clip.CreatedAt)
	})

	best := results[0].clip
	return toDomainClip(best), true, nil
}

// score applies the three-tier function: substring=100, word-overlap
// ratio × 80, normalized Levenshtein similarity × 60 (cut below
// threshold).
func (s *Service) score(query, title string) float64 {
	if query == "" || title == "" {
		return 0
	}

	if strings.Contains(title, query) {
		return 100
	}

	words := strings.Fields(query)
	if len(words) > 0 {
		matched := 0
		for _, w := range words {
			if strings.Contains(title, w) {
				matched++
			}
		}
		if matched > 0 {
			return float64(matched) / float64(len(words)) * 80
		}
	}

	maxLen := len(query)
	if len(title) > maxLen {
		maxLen = len(title)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(query, title)
	similarity := 1 - float64(dist)/float64(maxLen)
	if similarity < s.cfg.FuzzyMatchThreshold {
		return 0
	}
	return similarity * 60
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toDomainClip(c twitch.Clip) clip.Clip {
	return clip.Clip{
		ID:              c.ID,
		EmbedURL:        c.URL,
		Title:           c.Title,
		BroadcasterName: c.BroadcasterName,
		BroadcasterID:   c.BroadcasterID,
		CreatorName:     c.CreatorName,
		GameName:        c.GameID,
		DurationSeconds: c.Duration,
		ViewCount:       c.ViewCount,
		Featured:        c.IsFeatured,
		CreatedAt:       c.CreatedAt,
	}
}
