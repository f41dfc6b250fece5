// Package leaderboard provides XP ranking services.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aimd54/calculus-api/internal/cache"
	"github.com/aimd54/calculus-api/internal/config"
	prommetrics "github.com/aimd54/calculus-api/internal/metrics"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// UserRepository interface for ranking reads.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	Count() (int64, error)
	CountWithXPGreaterThan(xp int) (int64, error)
	ListByXP(offset, limit int) ([]models.User, error)
}

// Entry represents a single entry in the leaderboard.
type Entry struct {
	Rank          int    `json:"rank"`
	UserID        uint   `json:"user_id"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url"`
	XP            int    `json:"xp"`
	Level         int    `json:"level"`
	CurrentStreak int    `json:"current_streak"`
}

// Page is one window of the leaderboard.
type Page struct {
	Entries         []Entry `json:"entries"`
	TotalCount      int64   `json:"total_count"`
	CurrentUserRank *int    `json:"current_user_rank,omitempty"`
}

// Query selects a leaderboard window. Zero values select defaults.
type Query struct {
	Start  int
	Limit  int
	Around bool
}

// Service handles leaderboard pages and user ranks.
type Service struct {
	userRepo UserRepository
	cache    cache.Cache
	cfg      *config.LeaderboardConfig
	log      *logger.Logger
}

// NewService creates a new leaderboard service. c may be nil to disable page caching.
func NewService(userRepo *repository.UserRepository, c cache.Cache, cfg *config.LeaderboardConfig, log *logger.Logger) *Service {
	return &Service{userRepo: userRepo, cache: c, cfg: cfg, log: log}
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(userRepo UserRepository, c cache.Cache, cfg *config.LeaderboardConfig, log *logger.Logger) *Service {
	return &Service{userRepo: userRepo, cache: c, cfg: cfg, log: log}
}

// clampLimit bounds limit to [1, max]; zero selects the default.
func (s *Service) clampLimit(limit int) int {
	switch {
	case limit == 0:
		limit = s.cfg.DefaultLimit
	case limit < 1:
		limit = 1
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return limit
}

// Rank returns 1 + the number of users with strictly more XP.
func (s *Service) Rank(user *models.User) (int, error) {
	above, err := s.userRepo.CountWithXPGreaterThan(user.XP)
	if err != nil {
		return 0, err
	}
	return int(above) + 1, nil
}

// GetPage returns a leaderboard window. userID is the requesting user, or 0 when anonymous;
// a centered window needs a requesting user and falls back to start otherwise.
func (s *Service) GetPage(ctx context.Context, userID uint, q Query) (*Page, error) {
	limit := s.clampLimit(q.Limit)
	start := q.Start
	if start < 1 {
		start = 1
	}

	var userRank *int
	if userID != 0 {
		user, err := s.userRepo.GetByID(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get requesting user: %w", err)
		}
		rank, err := s.Rank(user)
		if err != nil {
			return nil, fmt.Errorf("failed to rank user %d: %w", userID, err)
		}
		userRank = &rank
	}

	mode := "page"
	if q.Around && userRank != nil {
		mode = "around"
		start = *userRank - limit/2
		if start < 1 {
			start = 1
		}
	}
	prommetrics.RecordLeaderboardRequest(mode)

	page, err := s.window(ctx, start, limit)
	if err != nil {
		return nil, err
	}
	page.CurrentUserRank = userRank
	return page, nil
}

type cachedWindow struct {
	Entries    []Entry `json:"entries"`
	TotalCount int64   `json:"total_count"`
}

func cacheKey(start, limit int) string {
	return fmt.Sprintf("leaderboard:window:%d:%d", start, limit)
}

// window returns ranked entries [start, start+limit) and the total user count,
// served from the cache when possible.
func (s *Service) window(ctx context.Context, start, limit int) (*Page, error) {
	key := cacheKey(start, limit)
	if cached, ok := s.lookup(ctx, key); ok {
		return &Page{Entries: cached.Entries, TotalCount: cached.TotalCount}, nil
	}

	users, err := s.userRepo.ListByXP(start-1, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	total, err := s.userRepo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	entries := make([]Entry, 0, len(users))
	for i := range users {
		u := &users[i]
		var rank int
		switch {
		case i == 0:
			// the first row may tie with rows on the previous page
			if rank, err = s.Rank(u); err != nil {
				return nil, fmt.Errorf("failed to rank user %d: %w", u.ID, err)
			}
		case u.XP == users[i-1].XP:
			rank = entries[i-1].Rank
		default:
			rank = start + i
		}
		entries = append(entries, Entry{
			Rank:          rank,
			UserID:        u.ID,
			Username:      u.Username,
			DisplayName:   u.Name(),
			AvatarURL:     u.AvatarURL,
			XP:            u.XP,
			Level:         u.Level(),
			CurrentStreak: u.CurrentStreak,
		})
	}

	s.store(ctx, key, cachedWindow{Entries: entries, TotalCount: total})
	return &Page{Entries: entries, TotalCount: total}, nil
}

func (s *Service) lookup(ctx context.Context, key string) (*cachedWindow, bool) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		prommetrics.RecordCacheResult("error")
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
		return nil, false
	}
	if raw == "" {
		prommetrics.RecordCacheResult("miss")
		return nil, false
	}

	var cached cachedWindow
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		prommetrics.RecordCacheResult("error")
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding malformed leaderboard cache entry")
		return nil, false
	}
	prommetrics.RecordCacheResult("hit")
	return &cached, true
}

func (s *Service) store(ctx context.Context, key string, w cachedWindow) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(w)
	if err != nil {
		return
	}
	ttl := time.Duration(s.cfg.CacheTTL) * time.Second
	if err := s.cache.Set(ctx, key, string(data), ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
	}
}
