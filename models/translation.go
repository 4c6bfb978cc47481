package models

// TranslationStatus is the lifecycle state of a Translation.
type TranslationStatus string

const (
	TranslationStatusDraft    TranslationStatus = "draft"
	TranslationStatusReview   TranslationStatus = "review"
	TranslationStatusApproved TranslationStatus = "approved"
	TranslationStatusRejected TranslationStatus = "rejected"
	TranslationStatusMerged   TranslationStatus = "merged"
	TranslationStatusOriginal TranslationStatus = "original"
)

// Translation is one unit of contributor work: a per-language value for a
// TermField. While in review status ReviewedBy stays NULL; a review sets it
// exactly once. Rejected translations may be resubmitted by their author,
// which returns them to review and clears ReviewedBy.
type Translation struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	TermFieldID string            `gorm:"index;not null" json:"term_field_id"`
	Language    string            `gorm:"index;not null" json:"language"`
	Value       string            `gorm:"not null" json:"value"`
	Status      TranslationStatus `gorm:"type:varchar(16);index;not null;default:'draft'" json:"status"`

	CreatedBy  *string `gorm:"index" json:"created_by,omitempty"`
	ModifiedBy *string `gorm:"index" json:"modified_by,omitempty"`
	ReviewedBy *string `gorm:"index" json:"reviewed_by,omitempty"`

	ReviewComment string `gorm:"type:text" json:"review_comment,omitempty"`

	Timestamps
}
