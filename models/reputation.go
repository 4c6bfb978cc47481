package models

import "time"

// Ledger event reasons. Rule-driven deltas reference these when previewing
// rule changes against history.
const (
	ReasonTranslationCreated  = "translation_created"
	ReasonTranslationApproved = "translation_approved"
	ReasonTranslationRejected = "translation_rejected"
	ReasonTranslationMerged   = "translation_merged"
	ReasonFalseRejection      = "false_rejection"
	ReasonStreakMilestone     = "streak_milestone"
	ReasonChallengeCompleted  = "challenge_completed"
	ReasonManualAdjustment    = "manual_adjustment"
)

// ReputationEvent is one append-only ledger row. Rows are never updated or
// deleted; summing deltas per user reproduces the stored score.
type ReputationEvent struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	UserID            string    `gorm:"index;not null" json:"user_id"`
	Delta             int       `gorm:"not null" json:"delta"`
	Reason            string    `gorm:"index;not null" json:"reason"`
	RelatedActivityID *string   `json:"related_activity_id,omitempty"`
	Automated         bool      `gorm:"default:false" json:"automated"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Rule names known to the reputation service.
const (
	RuleRejectionBasePenalty      = "rejection_base_penalty"
	RuleRejectionPenaltyIncrement = "rejection_penalty_increment"
	RuleRejectionMaxPenalty       = "rejection_max_penalty"
	RuleFalseRejectionPenalty     = "false_rejection_penalty"
	RuleApprovalReward            = "approval_reward"
	RuleMergeReward               = "merge_reward"
	RuleCreationReward            = "creation_reward"
)

// ReputationRule is a named numeric parameter read by the reputation service.
// Changes apply to future events only; the ledger is never rewritten.
type ReputationRule struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Value       int       `gorm:"not null" json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedBy   *string   `json:"updated_by,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultReputationRules are seeded at boot (FirstOrCreate — existing values
// are left alone so operator tuning survives restarts).
var DefaultReputationRules = []ReputationRule{
	{Name: RuleRejectionBasePenalty, Value: -5, Description: "Base penalty when a translation is rejected"},
	{Name: RuleRejectionPenaltyIncrement, Value: -5, Description: "Extra penalty per prior rejection in the lookback window"},
	{Name: RuleRejectionMaxPenalty, Value: -50, Description: "Most severe rejection penalty allowed"},
	{Name: RuleFalseRejectionPenalty, Value: -15, Description: "Penalty for a reviewer whose rejection is overturned"},
	{Name: RuleApprovalReward, Value: 10, Description: "Reward when a translation is approved"},
	{Name: RuleMergeReward, Value: 25, Description: "Reward when an approved translation is merged upstream"},
	{Name: RuleCreationReward, Value: 2, Description: "Reward for submitting a translation"},
}
