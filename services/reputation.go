package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"term-translation-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RejectionLookbackDays is the trailing window over which prior rejections
// cascade into a bigger penalty.
const RejectionLookbackDays = 14

// Shield caps per tier (negative deltas only). Veterans are immune, new users
// take the full raw penalty.
const (
	TrustedRejectionCap = -5
	RegularRejectionCap = -10
)

type ReputationService struct {
	DB *gorm.DB

	mu    sync.RWMutex
	rules map[string]int
}

func NewReputationService(db *gorm.DB) *ReputationService {
	return &ReputationService{DB: db}
}

// SeedDefaultRules inserts any missing rule rows. Existing values are left
// alone so operator tuning survives restarts.
func (s *ReputationService) SeedDefaultRules() error {
	for _, rule := range models.DefaultReputationRules {
		r := rule
		r.ID = uuid.NewString()
		if err := s.DB.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.Name, err)
		}
	}
	s.invalidateRuleCache()
	return nil
}

// rule reads one named value through the in-process cache. Rules are on the
// hot path of every penalty/reward calculation, so they are loaded in one
// query and invalidated on write rather than fetched per calculation.
func (s *ReputationService) rule(name string) int {
	s.mu.RLock()
	if s.rules != nil {
		v, ok := s.rules[name]
		s.mu.RUnlock()
		if ok {
			return v
		}
		return 0
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules == nil {
		var rows []models.ReputationRule
		if err := s.DB.Find(&rows).Error; err != nil {
			log.Printf("[REPUTATION] failed to load rules: %v", err)
			return 0
		}
		s.rules = make(map[string]int, len(rows))
		for _, r := range rows {
			s.rules[r.Name] = r.Value
		}
	}
	return s.rules[name]
}

func (s *ReputationService) invalidateRuleCache() {
	s.mu.Lock()
	s.rules = nil
	s.mu.Unlock()
}

// UpdateRule changes a rule value. Takes effect immediately for future
// calculations; the ledger is never rewritten.
func (s *ReputationService) UpdateRule(name string, value int, updatedBy string) (*models.ReputationRule, error) {
	var rule models.ReputationRule
	if err := s.DB.Where("name = ?", name).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reputation rule %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	rule.Value = value
	rule.UpdatedBy = &updatedBy
	if err := s.DB.Save(&rule).Error; err != nil {
		return nil, err
	}
	s.invalidateRuleCache()
	log.Printf("⚙️ [REPUTATION] Rule %s set to %d by %s", name, value, updatedBy)
	return &rule, nil
}

// GetReputation returns the current score, 0 for an unknown user.
func (s *ReputationService) GetReputation(userID string) int {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0
	}
	return user.Reputation
}

// CountRecentRejections counts this user's rejected translations (as author
// or last modifier) updated within the lookback window. The triggering
// translation is excluded when its ID is provided, so the penalty for the
// N-th rejection scales with the N-1 prior ones.
func (s *ReputationService) CountRecentRejections(userID string, lookbackDays int, excludeTranslationID string) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -lookbackDays)
	q := s.DB.Model(&models.Translation{}).
		Where("status = ?", models.TranslationStatusRejected).
		Where("(created_by = ? OR modified_by = ?)", userID, userID).
		Where("updated_at >= ?", cutoff)
	if excludeTranslationID != "" {
		q = q.Where("id <> ?", excludeTranslationID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// PenaltyResult reports a computed penalty before and after the shield.
type PenaltyResult struct {
	RawPenalty      int         `json:"raw_penalty"`
	ShieldedPenalty int         `json:"shielded_penalty"`
	Tier            models.Tier `json:"tier"`
	RecentCount     int         `json:"recent_count"`
}

// ComputeRejectionPenalty applies the cascading formula
// (base + increment × recentCount, clamped by the max rule) and then the
// tier shield. All penalty parameters are negative; "clamp" and "cap" both
// pick the numerically larger (less severe) value.
func (s *ReputationService) ComputeRejectionPenalty(userID, excludeTranslationID string) (*PenaltyResult, error) {
	recent, err := s.CountRecentRejections(userID, RejectionLookbackDays, excludeTranslationID)
	if err != nil {
		return nil, err
	}

	raw := s.rule(models.RuleRejectionBasePenalty) + s.rule(models.RuleRejectionPenaltyIncrement)*recent
	if maxPenalty := s.rule(models.RuleRejectionMaxPenalty); raw < maxPenalty {
		raw = maxPenalty
	}

	tier := models.TierFor(s.GetReputation(userID))
	return &PenaltyResult{
		RawPenalty:      raw,
		ShieldedPenalty: shieldPenalty(tier, raw),
		Tier:            tier,
		RecentCount:     recent,
	}, nil
}

// ComputeFalseRejectionPenalty penalizes a reviewer whose rejection was
// overturned. Fixed per-tier amounts — it targets over-zealous reviewing,
// not repeat offenses, so there is no cascade.
func (s *ReputationService) ComputeFalseRejectionPenalty(userID string) *PenaltyResult {
	raw := s.rule(models.RuleFalseRejectionPenalty)
	tier := models.TierFor(s.GetReputation(userID))
	return &PenaltyResult{
		RawPenalty:      raw,
		ShieldedPenalty: shieldPenalty(tier, raw),
		Tier:            tier,
	}
}

func shieldPenalty(tier models.Tier, raw int) int {
	if raw >= 0 {
		return raw
	}
	switch tier {
	case models.TierVeteran:
		return 0
	case models.TierTrusted:
		if raw < TrustedRejectionCap {
			return TrustedRejectionCap
		}
	case models.TierRegular:
		if raw < RegularRejectionCap {
			return RegularRejectionCap
		}
	}
	return raw
}

// ChangeResult reports the outcome of a ledger mutation. Applied=false means
// the user did not exist and nothing was written — callers in background
// workflows treat that as a silent no-op.
type ChangeResult struct {
	Applied       bool   `json:"applied"`
	NewReputation int    `json:"new_reputation"`
	EventID       string `json:"event_id,omitempty"`
}

// ApplyChange records one ledger event and atomically adjusts the user's
// score. A zero delta still writes an event — shielded-to-zero penalties stay
// auditable. An unknown user is a recorded-nowhere no-op, not an error.
func (s *ReputationService) ApplyChange(userID string, delta int, reason string, relatedID *string, automated bool) (*ChangeResult, error) {
	result := &ChangeResult{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("⚠️ [REPUTATION] Change for unknown user %s skipped (reason: %s)", userID, reason)
				return nil
			}
			return err
		}

		event := models.ReputationEvent{
			ID:                uuid.NewString(),
			UserID:            userID,
			Delta:             delta,
			Reason:            reason,
			RelatedActivityID: relatedID,
			Automated:         automated,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		// Single-statement arithmetic update keeps the adjustment atomic at
		// the storage layer.
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("reputation", gorm.Expr("reputation + ?", delta)).Error; err != nil {
			return err
		}
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		result.Applied = true
		result.NewReputation = user.Reputation
		result.EventID = event.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		log.Printf("📒 [REPUTATION] %s %+d (%s) → %d", userID, delta, reason, result.NewReputation)
	}
	return result, nil
}

// ApplyRejectionPenalty computes and applies the shielded cascading penalty
// for a rejected translation.
func (s *ReputationService) ApplyRejectionPenalty(userID, translationID string) (*ChangeResult, *PenaltyResult, error) {
	penalty, err := s.ComputeRejectionPenalty(userID, translationID)
	if err != nil {
		return nil, nil, err
	}
	change, err := s.ApplyChange(userID, penalty.ShieldedPenalty, models.ReasonTranslationRejected, &translationID, false)
	if err != nil {
		return nil, nil, err
	}
	return change, penalty, nil
}

// ApplyFalseRejectionPenalty punishes the reviewer of an overturned
// rejection. Wired from the appeals layer above this service.
func (s *ReputationService) ApplyFalseRejectionPenalty(userID, translationID string) (*ChangeResult, *PenaltyResult, error) {
	penalty := s.ComputeFalseRejectionPenalty(userID)
	change, err := s.ApplyChange(userID, penalty.ShieldedPenalty, models.ReasonFalseRejection, &translationID, false)
	if err != nil {
		return nil, nil, err
	}
	return change, penalty, nil
}

func (s *ReputationService) ApplyApprovalReward(userID, translationID string) (*ChangeResult, error) {
	return s.ApplyChange(userID, s.rule(models.RuleApprovalReward), models.ReasonTranslationApproved, &translationID, false)
}

func (s *ReputationService) ApplyMergeReward(userID, translationID string) (*ChangeResult, error) {
	return s.ApplyChange(userID, s.rule(models.RuleMergeReward), models.ReasonTranslationMerged, &translationID, false)
}

func (s *ReputationService) ApplyCreationReward(userID, translationID string) (*ChangeResult, error) {
	return s.ApplyChange(userID, s.rule(models.RuleCreationReward), models.ReasonTranslationCreated, &translationID, false)
}

// ruleReasons links each rule to the ledger reason its deltas are recorded
// under, for previewing.
var ruleReasons = map[string]string{
	models.RuleRejectionBasePenalty:      models.ReasonTranslationRejected,
	models.RuleRejectionPenaltyIncrement: models.ReasonTranslationRejected,
	models.RuleRejectionMaxPenalty:       models.ReasonTranslationRejected,
	models.RuleFalseRejectionPenalty:     models.ReasonFalseRejection,
	models.RuleApprovalReward:            models.ReasonTranslationApproved,
	models.RuleMergeReward:               models.ReasonTranslationMerged,
	models.RuleCreationReward:            models.ReasonTranslationCreated,
}

// RulePreviewEntry is one sampled user in a rule-change simulation.
type RulePreviewEntry struct {
	UserID              string `json:"user_id"`
	EventCount          int64  `json:"event_count"`
	HistoricalDelta     int64  `json:"historical_delta"`
	CurrentReputation   int    `json:"current_reputation"`
	ProjectedReputation int64  `json:"projected_reputation"`
}

// PreviewRuleChange simulates replacing every historical event of the rule's
// reason with the proposed flat value, for the most-affected users. Pure
// read — nothing is mutated. Cascaded penalties are approximated by the flat
// substitution; replaying rejection windows is not worth the fidelity for an
// operator-facing estimate.
func (s *ReputationService) PreviewRuleChange(ruleName string, newValue int, sampleSize int) ([]RulePreviewEntry, error) {
	reason, ok := ruleReasons[ruleName]
	if !ok {
		return nil, fmt.Errorf("reputation rule %s: %w", ruleName, ErrNotFound)
	}
	if sampleSize < 1 || sampleSize > 100 {
		sampleSize = 20
	}

	var grouped []struct {
		UserID string
		Cnt    int64
		Total  int64
	}
	if err := s.DB.Model(&models.ReputationEvent{}).
		Select("user_id, COUNT(*) as cnt, SUM(delta) as total").
		Where("reason = ?", reason).
		Group("user_id").
		Order("cnt DESC").
		Limit(sampleSize).
		Scan(&grouped).Error; err != nil {
		return nil, err
	}

	entries := make([]RulePreviewEntry, 0, len(grouped))
	for _, g := range grouped {
		current := s.GetReputation(g.UserID)
		entries = append(entries, RulePreviewEntry{
			UserID:              g.UserID,
			EventCount:          g.Cnt,
			HistoricalDelta:     g.Total,
			CurrentReputation:   current,
			ProjectedReputation: int64(current) - g.Total + g.Cnt*int64(newValue),
		})
	}
	return entries, nil
}
