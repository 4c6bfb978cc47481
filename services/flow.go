package services

import (
	"errors"
	"fmt"
	"log"

	"term-translation-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FlowTaskType is what kind of work the selector handed out.
type FlowTaskType string

const (
	FlowTaskReview    FlowTaskType = "review"
	FlowTaskTranslate FlowTaskType = "translate"
	FlowTaskNone      FlowTaskType = "none"
)

// FlowTask is one unit of work, enriched with the parent term and its sibling
// fields so the caller can render full context (e.g. the prefLabel next to
// the definition) without a second round trip.
type FlowTask struct {
	Type             FlowTaskType        `json:"type"`
	Translation      *models.Translation `json:"translation,omitempty"`
	TermField        *models.TermField   `json:"term_field,omitempty"`
	Term             *models.Term        `json:"term,omitempty"`
	SiblingFields    []models.TermField  `json:"sibling_fields,omitempty"`
	MissingLanguages []string            `json:"missing_languages,omitempty"`
}

// FlowService hands out review/translate work and applies the reputation and
// gamification consequences of review outcomes.
type FlowService struct {
	DB           *gorm.DB
	Reputation   *ReputationService
	Gamification *GamificationService

	// TargetLanguages is the full coverage set a field should eventually be
	// translated into.
	TargetLanguages []string
}

func NewFlowService(db *gorm.DB, reputation *ReputationService, gamification *GamificationService, targetLanguages []string) *FlowService {
	return &FlowService{
		DB:              db,
		Reputation:      reputation,
		Gamification:    gamification,
		TargetLanguages: targetLanguages,
	}
}

var translatableRoles = []models.FieldRole{models.FieldRoleLabel, models.FieldRoleTranslatable}

// GetNextTask returns exactly one unit of work for the user, by priority:
// pending reviews (FIFO, never the user's own), then fully untranslated
// fields (uniform random), then the least-translated field below full
// coverage (ties random), then a terminal "none".
func (s *FlowService) GetNextTask(userID, languageFilter string) (*FlowTask, error) {
	if task, err := s.nextReview(userID, languageFilter); err != nil || task != nil {
		return task, err
	}

	languages := s.TargetLanguages
	if languageFilter != "" {
		languages = []string{languageFilter}
	}

	if task, err := s.nextUntranslated(languages); err != nil || task != nil {
		return task, err
	}
	if task, err := s.nextPartiallyTranslated(languages); err != nil || task != nil {
		return task, err
	}
	return &FlowTask{Type: FlowTaskNone}, nil
}

// nextReview picks the oldest unreviewed translation in review status that
// the requester neither created nor last modified — the last modifier
// authored the current value, so reviewing it would be self-review in
// substance.
func (s *FlowService) nextReview(userID, languageFilter string) (*FlowTask, error) {
	q := s.DB.Where("status = ?", models.TranslationStatusReview).
		Where("reviewed_by IS NULL").
		Where("(created_by IS NULL OR created_by <> ?)", userID).
		Where("(modified_by IS NULL OR modified_by <> ?)", userID)
	if languageFilter != "" {
		q = q.Where("language = ?", languageFilter)
	}

	var translation models.Translation
	err := q.Order("created_at ASC").First(&translation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task, err := s.enrichField(translation.TermFieldID, nil)
	if err != nil {
		return nil, err
	}
	task.Type = FlowTaskReview
	task.Translation = &translation
	return task, nil
}

func (s *FlowService) nextUntranslated(languages []string) (*FlowTask, error) {
	translated := s.DB.Model(&models.Translation{}).
		Select("term_field_id").
		Where("language IN ?", languages)

	var field models.TermField
	err := s.DB.Where("role IN ?", translatableRoles).
		Where("id NOT IN (?)", translated).
		Order("RANDOM()").
		First(&field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task, err := s.enrichField(field.ID, languages)
	if err != nil {
		return nil, err
	}
	task.Type = FlowTaskTranslate
	return task, nil
}

// nextPartiallyTranslated picks the field with the fewest distinct target
// languages covered, strictly below full coverage.
func (s *FlowService) nextPartiallyTranslated(languages []string) (*FlowTask, error) {
	var row struct {
		ID  string
		Cnt int
	}
	err := s.DB.Raw(`
		SELECT tf.id, COUNT(DISTINCT tr.language) AS cnt
		FROM term_fields tf
		JOIN translations tr ON tr.term_field_id = tf.id
			AND tr.language IN ?
			AND tr.deleted_at IS NULL
		WHERE tf.role IN ? AND tf.deleted_at IS NULL
		GROUP BY tf.id
		HAVING COUNT(DISTINCT tr.language) < ?
		ORDER BY cnt ASC, RANDOM()
		LIMIT 1
	`, languages, translatableRoles, len(languages)).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}

	task, err := s.enrichField(row.ID, languages)
	if err != nil {
		return nil, err
	}
	task.Type = FlowTaskTranslate
	return task, nil
}

// enrichField loads the field, its parent term, and the term's other fields.
// When languages are given, the field's uncovered languages are included.
func (s *FlowService) enrichField(termFieldID string, languages []string) (*FlowTask, error) {
	var field models.TermField
	if err := s.DB.First(&field, "id = ?", termFieldID).Error; err != nil {
		return nil, err
	}

	var term models.Term
	if err := s.DB.First(&term, "id = ?", field.TermID).Error; err != nil {
		return nil, err
	}

	var siblings []models.TermField
	if err := s.DB.Where("term_id = ? AND id <> ?", term.ID, field.ID).
		Order("predicate ASC").
		Find(&siblings).Error; err != nil {
		return nil, err
	}

	task := &FlowTask{
		TermField:     &field,
		Term:          &term,
		SiblingFields: siblings,
	}

	if len(languages) > 0 {
		var covered []string
		if err := s.DB.Model(&models.Translation{}).
			Distinct("language").
			Where("term_field_id = ? AND language IN ?", field.ID, languages).
			Pluck("language", &covered).Error; err != nil {
			return nil, err
		}
		coveredSet := make(map[string]bool, len(covered))
		for _, l := range covered {
			coveredSet[l] = true
		}
		for _, l := range languages {
			if !coveredSet[l] {
				task.MissingLanguages = append(task.MissingLanguages, l)
			}
		}
	}

	return task, nil
}

// SubmitTranslation creates a new translation in review status, grants the
// creation reward and fires the gamification hooks. One live translation per
// (field, language) — a rejected one must be resubmitted, not replaced.
func (s *FlowService) SubmitTranslation(userID, termFieldID, language, value string) (*models.Translation, error) {
	var field models.TermField
	if err := s.DB.First(&field, "id = ?", termFieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("term field %s: %w", termFieldID, ErrNotFound)
		}
		return nil, err
	}
	if !field.Role.Translatable() {
		return nil, fmt.Errorf("field %s has role %s: %w", termFieldID, field.Role, ErrInvalidState)
	}

	var existing int64
	if err := s.DB.Model(&models.Translation{}).
		Where("term_field_id = ? AND language = ? AND status <> ?",
			termFieldID, language, models.TranslationStatusRejected).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("translation for field %s language %s already exists: %w",
			termFieldID, language, ErrInvalidState)
	}

	translation := models.Translation{
		ID:          uuid.NewString(),
		TermFieldID: termFieldID,
		Language:    language,
		Value:       value,
		Status:      models.TranslationStatusReview,
		CreatedBy:   &userID,
	}
	if err := s.DB.Create(&translation).Error; err != nil {
		return nil, err
	}

	// Best-effort hooks: reputation no-ops on unknown users, gamification
	// logs and moves on.
	if _, err := s.Reputation.ApplyCreationReward(userID, translation.ID); err != nil {
		log.Printf("⚠️ [FLOW] creation reward for %s: %v", userID, err)
	}
	s.Gamification.RecordTranslationActivity(userID)

	return &translation, nil
}

// ReviewResult reports a completed review with its reputation consequences
// for the author.
type ReviewResult struct {
	Translation *models.Translation `json:"translation"`
	Change      *ChangeResult       `json:"change,omitempty"`
	Penalty     *PenaltyResult      `json:"penalty,omitempty"`
}

// SubmitReview approves or rejects a pending translation. The reviewer must
// not be the author or last modifier; the translation must be in review
// status with no reviewer set.
func (s *FlowService) SubmitReview(reviewerID, translationID string, approve bool, comment string) (*ReviewResult, error) {
	var translation models.Translation
	if err := s.DB.First(&translation, "id = ?", translationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("translation %s: %w", translationID, ErrNotFound)
		}
		return nil, err
	}

	if translation.Status != models.TranslationStatusReview {
		return nil, fmt.Errorf("translation %s is %s, not review: %w", translationID, translation.Status, ErrInvalidState)
	}
	if translation.ReviewedBy != nil {
		return nil, fmt.Errorf("translation %s already reviewed: %w", translationID, ErrInvalidState)
	}
	if (translation.CreatedBy != nil && *translation.CreatedBy == reviewerID) ||
		(translation.ModifiedBy != nil && *translation.ModifiedBy == reviewerID) {
		return nil, fmt.Errorf("self-review of translation %s: %w", translationID, ErrInvalidState)
	}

	if approve {
		translation.Status = models.TranslationStatusApproved
	} else {
		translation.Status = models.TranslationStatusRejected
	}
	translation.ReviewedBy = &reviewerID
	translation.ReviewComment = comment
	if err := s.DB.Save(&translation).Error; err != nil {
		return nil, err
	}

	result := &ReviewResult{Translation: &translation}

	// The last modifier authored the current value; reputation consequences
	// land on them, falling back to the creator.
	author := translation.CreatedBy
	if translation.ModifiedBy != nil {
		author = translation.ModifiedBy
	}
	if author != nil {
		if approve {
			change, err := s.Reputation.ApplyApprovalReward(*author, translation.ID)
			if err != nil {
				return nil, err
			}
			result.Change = change
			s.Gamification.RecordApprovalActivity(*author)
		} else {
			change, penalty, err := s.Reputation.ApplyRejectionPenalty(*author, translation.ID)
			if err != nil {
				return nil, err
			}
			result.Change = change
			result.Penalty = penalty
		}
	}

	s.Gamification.RecordReviewActivity(reviewerID)
	return result, nil
}

// ResubmitTranslation lets the original author send a rejected translation
// back into review with a fresh value. Clears ReviewedBy — the new cycle gets
// reviewed exactly once again.
func (s *FlowService) ResubmitTranslation(userID, translationID, newValue string) (*models.Translation, error) {
	var translation models.Translation
	if err := s.DB.First(&translation, "id = ?", translationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("translation %s: %w", translationID, ErrNotFound)
		}
		return nil, err
	}

	if translation.Status != models.TranslationStatusRejected {
		return nil, fmt.Errorf("translation %s is %s, only rejected can be resubmitted: %w",
			translationID, translation.Status, ErrInvalidState)
	}
	if translation.CreatedBy == nil || *translation.CreatedBy != userID {
		return nil, fmt.Errorf("translation %s can only be resubmitted by its author: %w", translationID, ErrInvalidState)
	}

	if newValue != "" {
		translation.Value = newValue
	}
	translation.Status = models.TranslationStatusReview
	translation.ModifiedBy = &userID
	translation.ReviewedBy = nil
	translation.ReviewComment = ""
	if err := s.DB.Save(&translation).Error; err != nil {
		return nil, err
	}
	return &translation, nil
}

// MergeTranslation marks an approved translation as merged upstream and
// grants the author the merge reward.
func (s *FlowService) MergeTranslation(translationID string) (*ReviewResult, error) {
	var translation models.Translation
	if err := s.DB.First(&translation, "id = ?", translationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("translation %s: %w", translationID, ErrNotFound)
		}
		return nil, err
	}
	if translation.Status != models.TranslationStatusApproved {
		return nil, fmt.Errorf("translation %s is %s, only approved can be merged: %w",
			translationID, translation.Status, ErrInvalidState)
	}

	translation.Status = models.TranslationStatusMerged
	if err := s.DB.Save(&translation).Error; err != nil {
		return nil, err
	}

	result := &ReviewResult{Translation: &translation}
	author := translation.CreatedBy
	if translation.ModifiedBy != nil {
		author = translation.ModifiedBy
	}
	if author != nil {
		change, err := s.Reputation.ApplyMergeReward(*author, translation.ID)
		if err != nil {
			return nil, err
		}
		result.Change = change
	}
	return result, nil
}

// OverturnRejection is the appeals hook: a successful appeal sends the
// translation back into review and applies the false-rejection penalty to
// the reviewer who rejected it.
func (s *FlowService) OverturnRejection(translationID string) (*ReviewResult, error) {
	var translation models.Translation
	if err := s.DB.First(&translation, "id = ?", translationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("translation %s: %w", translationID, ErrNotFound)
		}
		return nil, err
	}
	if translation.Status != models.TranslationStatusRejected || translation.ReviewedBy == nil {
		return nil, fmt.Errorf("translation %s has no rejection to overturn: %w", translationID, ErrInvalidState)
	}

	reviewer := *translation.ReviewedBy
	translation.Status = models.TranslationStatusReview
	translation.ReviewedBy = nil
	if err := s.DB.Save(&translation).Error; err != nil {
		return nil, err
	}

	change, penalty, err := s.Reputation.ApplyFalseRejectionPenalty(reviewer, translation.ID)
	if err != nil {
		return nil, err
	}
	return &ReviewResult{Translation: &translation, Change: change, Penalty: penalty}, nil
}
