package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"term-translation-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type GamificationService struct {
	DB         *gorm.DB
	Reputation *ReputationService

	// now is swappable in tests; defaults to time.Now.
	now func() time.Time
}

func NewGamificationService(db *gorm.DB, reputation *ReputationService) *GamificationService {
	return &GamificationService{DB: db, Reputation: reputation, now: time.Now}
}

// EnsureStats creates the per-user tracker lazily on first activity.
func (s *GamificationService) EnsureStats(userID string) (*models.UserStats, error) {
	var stats models.UserStats
	err := s.DB.Where("user_id = ?", userID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = models.UserStats{
			ID:     uuid.NewString(),
			UserID: userID,
		}
		if err := s.DB.Create(&stats).Error; err != nil {
			return nil, err
		}
		return &stats, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// StreakResult reports the streak state after an activity day was counted.
type StreakResult struct {
	Streak          int  `json:"streak"`
	LongestStreak   int  `json:"longest_streak"`
	IsNewStreakDay  bool `json:"is_new_streak_day"`
	MilestoneReward int  `json:"milestone_reward,omitempty"`
}

// UpdateStreak counts today toward the user's streak. Same calendar day is a
// no-op; exactly one day later increments; a gap of two or more days resets
// to 1. Milestone rewards are granted through the reputation service the day
// the streak first reaches them — repeat calls on the same day never reach
// the milestone check again, so a milestone pays out at most once.
func (s *GamificationService) UpdateStreak(userID string) (*StreakResult, error) {
	stats, err := s.EnsureStats(userID)
	if err != nil {
		return nil, err
	}

	today := s.now().UTC().Format(dateLayout)
	if stats.LastActiveDate != nil && *stats.LastActiveDate == today {
		return &StreakResult{Streak: stats.CurrentStreak, LongestStreak: stats.LongestStreak}, nil
	}

	yesterday := s.now().UTC().AddDate(0, 0, -1).Format(dateLayout)
	if stats.LastActiveDate != nil && *stats.LastActiveDate == yesterday {
		stats.CurrentStreak++
	} else {
		stats.CurrentStreak = 1
	}
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	stats.LastActiveDate = &today

	if err := s.DB.Save(stats).Error; err != nil {
		return nil, err
	}

	result := &StreakResult{
		Streak:         stats.CurrentStreak,
		LongestStreak:  stats.LongestStreak,
		IsNewStreakDay: true,
	}

	if reward, ok := models.StreakMilestones[stats.CurrentStreak]; ok {
		change, err := s.Reputation.ApplyChange(userID, reward, models.ReasonStreakMilestone, nil, true)
		if err != nil {
			return nil, err
		}
		if change.Applied {
			result.MilestoneReward = reward
			log.Printf("🔥 [STREAK] %s hit day %d → +%d reputation", userID, stats.CurrentStreak, reward)
		}
	}

	return result, nil
}

// EnsureDailyChallenges materializes today's challenge rows for the user from
// the static catalog. Missing rows start at zero progress.
func (s *GamificationService) EnsureDailyChallenges(userID string) ([]models.DailyChallenge, error) {
	today := s.now().UTC().Format(dateLayout)
	for _, spec := range models.ChallengeCatalog {
		challenge := models.DailyChallenge{
			ID:            uuid.NewString(),
			UserID:        userID,
			ChallengeType: spec.Type,
			ChallengeDate: today,
			TargetCount:   spec.TargetCount,
			RewardPoints:  spec.Reward,
		}
		if err := s.DB.Where("user_id = ? AND challenge_type = ? AND challenge_date = ?",
			userID, spec.Type, today).FirstOrCreate(&challenge).Error; err != nil {
			return nil, err
		}
	}

	var challenges []models.DailyChallenge
	err := s.DB.Where("user_id = ? AND challenge_date = ?", userID, today).
		Order("challenge_type ASC").
		Find(&challenges).Error
	return challenges, err
}

// UpdateChallengeProgress increments today's counter for one challenge type.
// The completion flag flips exactly once, on the first crossing of the
// target; the counter keeps counting past it without re-granting.
func (s *GamificationService) UpdateChallengeProgress(userID, challengeType string, increment int) (*models.DailyChallenge, error) {
	if increment <= 0 {
		increment = 1
	}
	if _, err := s.EnsureDailyChallenges(userID); err != nil {
		return nil, err
	}

	today := s.now().UTC().Format(dateLayout)
	var challenge models.DailyChallenge
	err := s.DB.Where("user_id = ? AND challenge_type = ? AND challenge_date = ?",
		userID, challengeType, today).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Type not in the catalog — nothing to track.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	challenge.CurrentCount += increment
	crossed := !challenge.Completed && challenge.CurrentCount >= challenge.TargetCount
	if crossed {
		now := s.now()
		challenge.Completed = true
		challenge.CompletedAt = &now
	}
	if err := s.DB.Save(&challenge).Error; err != nil {
		return nil, err
	}

	if crossed {
		change, err := s.Reputation.ApplyChange(userID, challenge.RewardPoints, models.ReasonChallengeCompleted, &challenge.ID, true)
		if err != nil {
			return nil, err
		}
		if change.Applied {
			log.Printf("🏅 [CHALLENGE] %s completed %s (%d/%d) → +%d reputation",
				userID, challengeType, challenge.CurrentCount, challenge.TargetCount, challenge.RewardPoints)
		}
	}

	return &challenge, nil
}

// StartSession opens a new flow session. Sessions are not capped — one per
// open tab or device is expected.
func (s *GamificationService) StartSession(userID string) (*models.FlowSession, error) {
	session := models.FlowSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: s.now(),
	}
	if err := s.DB.Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Session activity kinds recorded by RecordSessionActivity.
const (
	SessionActivityTaskServed  = "task_served"
	SessionActivityTranslation = "translation"
	SessionActivityReview      = "review"
)

// RecordSessionActivity bumps one counter on an open session.
func (s *GamificationService) RecordSessionActivity(sessionID, kind string) error {
	column := map[string]string{
		SessionActivityTaskServed:  "tasks_served",
		SessionActivityTranslation: "translations_submitted",
		SessionActivityReview:      "reviews_completed",
	}[kind]
	if column == "" {
		return fmt.Errorf("unknown session activity %q", kind)
	}
	res := s.DB.Model(&models.FlowSession{}).
		Where("id = ? AND ended_at IS NULL", sessionID).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("flow session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// EndSession closes a session. Closing an already-closed session is an
// InvalidState, not a silent overwrite of EndedAt.
func (s *GamificationService) EndSession(sessionID string) (*models.FlowSession, error) {
	var session models.FlowSession
	if err := s.DB.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("flow session %s: %w", sessionID, ErrNotFound)
		}
		return nil, err
	}
	if session.EndedAt != nil {
		return nil, fmt.Errorf("flow session %s already ended: %w", sessionID, ErrInvalidState)
	}
	now := s.now()
	session.EndedAt = &now
	if err := s.DB.Save(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// RecordTranslationActivity is the hook invoked after a successful
// translation submission: lifetime counter, streak, daily challenge.
func (s *GamificationService) RecordTranslationActivity(userID string) {
	if err := s.recordActivity(userID, "total_translations", models.ChallengeDailyTranslations); err != nil {
		log.Printf("⚠️ [GAMIFICATION] translation activity for %s: %v", userID, err)
	}
}

// RecordReviewActivity is the hook invoked after a completed review.
func (s *GamificationService) RecordReviewActivity(userID string) {
	if err := s.recordActivity(userID, "total_reviews", models.ChallengeDailyReviews); err != nil {
		log.Printf("⚠️ [GAMIFICATION] review activity for %s: %v", userID, err)
	}
}

// RecordApprovalActivity is the hook invoked for an author whose translation
// got approved.
func (s *GamificationService) RecordApprovalActivity(userID string) {
	if _, err := s.UpdateChallengeProgress(userID, models.ChallengeDailyApprovals, 1); err != nil {
		log.Printf("⚠️ [GAMIFICATION] approval activity for %s: %v", userID, err)
	}
}

func (s *GamificationService) recordActivity(userID, counterColumn, challengeType string) error {
	stats, err := s.EnsureStats(userID)
	if err != nil {
		return err
	}
	if err := s.DB.Model(stats).UpdateColumn(counterColumn, gorm.Expr(counterColumn+" + 1")).Error; err != nil {
		return err
	}
	if _, err := s.UpdateStreak(userID); err != nil {
		return err
	}
	_, err = s.UpdateChallengeProgress(userID, challengeType, 1)
	return err
}
