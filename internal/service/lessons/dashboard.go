package lessons

import (
	"context"
	"fmt"
)

// Dashboard is the learner home screen.
type Dashboard struct {
	CurrentStory  *StoryDetail   `json:"current_story"`
	InProgress    []StorySummary `json:"in_progress_stories"`
	TotalXP       int            `json:"total_xp"`
	Level         int            `json:"level"`
	NextLevelXP   int            `json:"next_level_xp"`
	CurrentStreak int            `json:"current_streak"`
	LongestStreak int            `json:"longest_streak"`
}

// Stats summarizes a learner's progress.
type Stats struct {
	TotalXP            int `json:"total_xp"`
	Level              int `json:"level"`
	NextLevelXP        int `json:"next_level_xp"`
	CompletedSteps     int `json:"completed_steps"`
	CompletedStories   int `json:"completed_stories"`
	EnrolledStories    int `json:"enrolled_stories"`
	CurrentStreak      int `json:"current_streak"`
	LongestStreak      int `json:"longest_streak"`
	AchievementsEarned int `json:"achievements_earned"`
	Rank               int `json:"rank"`
}

// Dashboard returns the most recently enrolled story in full and every enrolled story
// below 100% progress.
func (s *Service) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.progressRepo.GetEnrollments(userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.StoryID)
	}
	percents, err := s.aggregator.Batch(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	chapters, err := s.content.ChapterCounts(ids)
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{
		InProgress:    []StorySummary{},
		TotalXP:       user.XP,
		Level:         user.Level(),
		NextLevelXP:   user.NextLevelXP(),
		CurrentStreak: user.CurrentStreak,
		LongestStreak: user.LongestStreak,
	}

	for _, e := range enrollments {
		if e.Story == nil || percents[e.StoryID] >= 100 {
			continue
		}
		dash.InProgress = append(dash.InProgress, summarize(e.Story, int(chapters[e.StoryID]), true, percents[e.StoryID]))
	}

	if len(enrollments) > 0 {
		story, err := s.content.GetStoryByID(enrollments[0].StoryID)
		if err != nil {
			return nil, fmt.Errorf("failed to load current story: %w", err)
		}
		if dash.CurrentStory, err = s.outline(ctx, userID, story); err != nil {
			return nil, err
		}
	}

	return dash, nil
}

// Stats returns the learner's totals, achievements and leaderboard rank.
func (s *Service) Stats(ctx context.Context, userID uint) (*Stats, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.achievements.Stats(ctx, user)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.progressRepo.GetEnrollments(userID)
	if err != nil {
		return nil, err
	}

	earned, err := s.achievements.CountEarned(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.ranker.Rank(user)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalXP:            user.XP,
		Level:              user.Level(),
		NextLevelXP:        user.NextLevelXP(),
		CompletedSteps:     snapshot.CompletedSteps,
		CompletedStories:   snapshot.CompletedStories,
		EnrolledStories:    len(enrollments),
		CurrentStreak:      user.CurrentStreak,
		LongestStreak:      user.LongestStreak,
		AchievementsEarned: earned,
		Rank:               rank,
	}, nil
}
