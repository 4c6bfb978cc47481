package models

import "time"

// UserStats tracks streaks and lifetime activity counters for one user.
// Created lazily on first activity.
type UserStats struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	CurrentStreak  int     `gorm:"default:0" json:"current_streak"`
	LongestStreak  int     `gorm:"default:0" json:"longest_streak"`
	LastActiveDate *string `json:"last_active_date,omitempty"` // calendar day, "2006-01-02" in UTC

	TotalTranslations int64 `gorm:"default:0" json:"total_translations"`
	TotalReviews      int64 `gorm:"default:0" json:"total_reviews"`

	Timestamps
}

// StreakMilestones maps streak length to the one-time reputation reward
// granted the day the streak reaches it.
var StreakMilestones = map[int]int{
	3:  10,
	7:  25,
	14: 50,
	21: 75,
	30: 100,
	60: 200,
	90: 500,
}

// Challenge types counted by the tracker.
const (
	ChallengeDailyTranslations = "daily_translations"
	ChallengeDailyReviews      = "daily_reviews"
	ChallengeDailyApprovals    = "daily_approvals"
)

// ChallengeSpec is one entry of the static daily-challenge catalog.
type ChallengeSpec struct {
	Type        string
	Description string
	TargetCount int
	Reward      int
}

// ChallengeCatalog is materialized per user per calendar day.
var ChallengeCatalog = []ChallengeSpec{
	{Type: ChallengeDailyTranslations, Description: "Submit 5 translations today", TargetCount: 5, Reward: 15},
	{Type: ChallengeDailyReviews, Description: "Review 10 translations today", TargetCount: 10, Reward: 20},
	{Type: ChallengeDailyApprovals, Description: "Have 3 translations approved today", TargetCount: 3, Reward: 10},
}

// DailyChallenge is one user's progress against one catalog entry on one day.
// Completion is recorded exactly once; the counter keeps incrementing past the
// target without re-granting.
type DailyChallenge struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	UserID        string     `gorm:"index:idx_daily_challenge,unique;not null" json:"user_id"`
	ChallengeType string     `gorm:"index:idx_daily_challenge,unique;not null" json:"challenge_type"`
	ChallengeDate string     `gorm:"index:idx_daily_challenge,unique;not null" json:"challenge_date"` // "2006-01-02" UTC
	TargetCount   int        `gorm:"not null" json:"target_count"`
	CurrentCount  int        `gorm:"default:0" json:"current_count"`
	RewardPoints  int        `gorm:"not null" json:"reward_points"`
	Completed     bool       `gorm:"default:false" json:"completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// FlowSession is one logical work session. A user may hold any number of
// concurrent sessions (multiple tabs/devices).
type FlowSession struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	TasksServed           int `gorm:"default:0" json:"tasks_served"`
	TranslationsSubmitted int `gorm:"default:0" json:"translations_submitted"`
	ReviewsCompleted      int `gorm:"default:0" json:"reviews_completed"`

	Timestamps
}
