package services

import (
	"testing"
	"time"

	"term-translation-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestFlow(t *testing.T, targetLanguages ...string) *FlowService {
	t.Helper()
	if len(targetLanguages) == 0 {
		targetLanguages = []string{"nl", "fr"}
	}
	db := newTestDB(t)
	rep := newSeededReputationService(t, db)
	gam := NewGamificationService(db, rep)
	return NewFlowService(db, rep, gam, targetLanguages)
}

func createReviewTranslation(t *testing.T, db *gorm.DB, fieldID, authorID, lang string, createdAt time.Time) *models.Translation {
	t.Helper()
	tr := &models.Translation{
		ID:          uuid.NewString(),
		TermFieldID: fieldID,
		Language:    lang,
		Value:       "pending value",
		Status:      models.TranslationStatusReview,
		CreatedBy:   &authorID,
	}
	tr.CreatedAt = createdAt
	require.NoError(t, db.Create(tr).Error)
	return tr
}

func TestGetNextTaskPrefersReviews(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	untranslated := createTestField(t, svc.DB, term.ID, "skos:definition", "tweewieler", models.FieldRoleTranslatable)
	_ = untranslated

	pending := createReviewTranslation(t, svc.DB, field.ID, author.ID, "fr", time.Now())

	task, err := svc.GetNextTask(reviewer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, FlowTaskReview, task.Type)
	require.NotNil(t, task.Translation)
	assert.Equal(t, pending.ID, task.Translation.ID)
	require.NotNil(t, task.Term)
	assert.Equal(t, term.ID, task.Term.ID)
	require.Len(t, task.SiblingFields, 1, "the definition field rides along as context")
}

func TestGetNextTaskReviewsAreFIFO(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	f1 := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	f2 := createTestField(t, svc.DB, term.ID, "skos:altLabel", "rijwiel", models.FieldRoleLabel)

	older := createReviewTranslation(t, svc.DB, f1.ID, author.ID, "fr", time.Now().Add(-2*time.Hour))
	createReviewTranslation(t, svc.DB, f2.ID, author.ID, "fr", time.Now().Add(-1*time.Hour))

	task, err := svc.GetNextTask(reviewer.ID, "")
	require.NoError(t, err)
	require.Equal(t, FlowTaskReview, task.Type)
	assert.Equal(t, older.ID, task.Translation.ID)
}

func TestGetNextTaskNeverServesOwnWork(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	resubmitter := createTestUser(t, svc.DB, "resubmitter", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	f1 := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	f2 := createTestField(t, svc.DB, term.ID, "skos:altLabel", "rijwiel", models.FieldRoleLabel)

	createReviewTranslation(t, svc.DB, f1.ID, author.ID, "nl", time.Now())

	// A translation created by someone else but last modified by the
	// requester is equally off-limits.
	modified := createReviewTranslation(t, svc.DB, f2.ID, author.ID, "nl", time.Now())
	require.NoError(t, svc.DB.Model(modified).Update("modified_by", resubmitter.ID).Error)

	task, err := svc.GetNextTask(author.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, FlowTaskReview, task.Type, "authors never review their own work")

	task, err = svc.GetNextTask(resubmitter.ID, "")
	require.NoError(t, err)
	if task.Type == FlowTaskReview {
		assert.NotEqual(t, modified.ID, task.Translation.ID)
	}
}

func TestGetNextTaskLanguageFilter(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	createReviewTranslation(t, svc.DB, field.ID, author.ID, "fr", time.Now())

	task, err := svc.GetNextTask(reviewer.ID, "nl")
	require.NoError(t, err)
	assert.NotEqual(t, FlowTaskReview, task.Type, "the fr review is filtered out")

	task, err = svc.GetNextTask(reviewer.ID, "fr")
	require.NoError(t, err)
	assert.Equal(t, FlowTaskReview, task.Type)
}

func TestGetNextTaskUntranslatedBeforePartial(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	worker := createTestUser(t, svc.DB, "worker", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	untouched := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	partial := createTestField(t, svc.DB, term.ID, "skos:definition", "tweewieler", models.FieldRoleTranslatable)

	// partial has nl covered (approved, so no review task either), fr missing.
	tr := &models.Translation{
		ID:          uuid.NewString(),
		TermFieldID: partial.ID,
		Language:    "nl",
		Value:       "tweewieler",
		Status:      models.TranslationStatusApproved,
		CreatedBy:   &author.ID,
	}
	require.NoError(t, svc.DB.Create(tr).Error)

	task, err := svc.GetNextTask(worker.ID, "")
	require.NoError(t, err)
	require.Equal(t, FlowTaskTranslate, task.Type)
	assert.Equal(t, untouched.ID, task.TermField.ID)
	assert.ElementsMatch(t, []string{"nl", "fr"}, task.MissingLanguages)
}

func TestGetNextTaskPartialPicksLeastCovered(t *testing.T) {
	svc := newTestFlow(t, "nl", "fr", "de")
	author := createTestUser(t, svc.DB, "author", 0)
	worker := createTestUser(t, svc.DB, "worker", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	oneOfThree := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	twoOfThree := createTestField(t, svc.DB, term.ID, "skos:definition", "tweewieler", models.FieldRoleTranslatable)

	addApproved := func(fieldID, lang string) {
		tr := &models.Translation{
			ID:          uuid.NewString(),
			TermFieldID: fieldID,
			Language:    lang,
			Value:       "v",
			Status:      models.TranslationStatusApproved,
			CreatedBy:   &author.ID,
		}
		require.NoError(t, svc.DB.Create(tr).Error)
	}
	addApproved(oneOfThree.ID, "nl")
	addApproved(twoOfThree.ID, "nl")
	addApproved(twoOfThree.ID, "fr")

	task, err := svc.GetNextTask(worker.ID, "")
	require.NoError(t, err)
	require.Equal(t, FlowTaskTranslate, task.Type)
	assert.Equal(t, oneOfThree.ID, task.TermField.ID)
	assert.ElementsMatch(t, []string{"fr", "de"}, task.MissingLanguages)
}

func TestGetNextTaskNoneWhenFullyCovered(t *testing.T) {
	svc := newTestFlow(t, "nl")
	author := createTestUser(t, svc.DB, "author", 0)
	worker := createTestUser(t, svc.DB, "worker", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)

	tr := &models.Translation{
		ID:          uuid.NewString(),
		TermFieldID: field.ID,
		Language:    "nl",
		Value:       "fiets",
		Status:      models.TranslationStatusApproved,
		CreatedBy:   &author.ID,
	}
	require.NoError(t, svc.DB.Create(tr).Error)

	task, err := svc.GetNextTask(worker.ID, "")
	require.NoError(t, err)
	assert.Equal(t, FlowTaskNone, task.Type)
}

func TestGetNextTaskSkipsReferenceFields(t *testing.T) {
	svc := newTestFlow(t)
	worker := createTestUser(t, svc.DB, "worker", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	createTestField(t, svc.DB, term.ID, "skos:notation", "A-1", models.FieldRoleReference)

	task, err := svc.GetNextTask(worker.ID, "")
	require.NoError(t, err)
	assert.Equal(t, FlowTaskNone, task.Type, "reference fields never enter the flow")
}

func TestSubmitTranslation(t *testing.T) {
	svc := newTestFlow(t)
	user := createTestUser(t, svc.DB, "translator", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)

	tr, err := svc.SubmitTranslation(user.ID, field.ID, "fr", "vélo")
	require.NoError(t, err)
	assert.Equal(t, models.TranslationStatusReview, tr.Status)
	require.NotNil(t, tr.CreatedBy)
	assert.Equal(t, user.ID, *tr.CreatedBy)

	assert.Equal(t, 2, svc.Reputation.GetReputation(user.ID), "creation reward")

	var stats models.UserStats
	require.NoError(t, svc.DB.First(&stats, "user_id = ?", user.ID).Error)
	assert.Equal(t, int64(1), stats.TotalTranslations)
}

func TestSubmitTranslationGuards(t *testing.T) {
	svc := newTestFlow(t)
	user := createTestUser(t, svc.DB, "translator", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	label := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	reference := createTestField(t, svc.DB, term.ID, "skos:notation", "A-1", models.FieldRoleReference)

	_, err := svc.SubmitTranslation(user.ID, "missing-field", "fr", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.SubmitTranslation(user.ID, reference.ID, "fr", "x")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.SubmitTranslation(user.ID, label.ID, "fr", "vélo")
	require.NoError(t, err)
	_, err = svc.SubmitTranslation(user.ID, label.ID, "fr", "bicyclette")
	assert.ErrorIs(t, err, ErrInvalidState, "one live translation per field and language")

	// A rejected translation does not block a fresh submission.
	require.NoError(t, svc.DB.Model(&models.Translation{}).
		Where("term_field_id = ? AND language = ?", label.ID, "fr").
		Update("status", models.TranslationStatusRejected).Error)
	_, err = svc.SubmitTranslation(user.ID, label.ID, "fr", "bicyclette")
	assert.NoError(t, err)
}

func TestSubmitReviewApprove(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	tr, err := svc.SubmitTranslation(author.ID, field.ID, "fr", "vélo")
	require.NoError(t, err)

	result, err := svc.SubmitReview(reviewer.ID, tr.ID, true, "looks right")
	require.NoError(t, err)
	assert.Equal(t, models.TranslationStatusApproved, result.Translation.Status)
	require.NotNil(t, result.Translation.ReviewedBy)
	assert.Equal(t, reviewer.ID, *result.Translation.ReviewedBy)

	// +2 creation, +10 approval.
	assert.Equal(t, 12, svc.Reputation.GetReputation(author.ID))

	var stats models.UserStats
	require.NoError(t, svc.DB.First(&stats, "user_id = ?", reviewer.ID).Error)
	assert.Equal(t, int64(1), stats.TotalReviews)
}

func TestSubmitReviewReject(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	tr, err := svc.SubmitTranslation(author.ID, field.ID, "fr", "velo")
	require.NoError(t, err)

	result, err := svc.SubmitReview(reviewer.ID, tr.ID, false, "missing accent")
	require.NoError(t, err)
	assert.Equal(t, models.TranslationStatusRejected, result.Translation.Status)
	assert.Equal(t, "missing accent", result.Translation.ReviewComment)
	require.NotNil(t, result.Penalty)
	assert.Equal(t, -5, result.Penalty.ShieldedPenalty, "first rejection, no cascade")

	// +2 creation, -5 rejection.
	assert.Equal(t, -3, svc.Reputation.GetReputation(author.ID))
}

func TestSubmitReviewGuards(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)
	second := createTestUser(t, svc.DB, "second-reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	tr, err := svc.SubmitTranslation(author.ID, field.ID, "fr", "vélo")
	require.NoError(t, err)

	_, err = svc.SubmitReview(author.ID, tr.ID, true, "")
	assert.ErrorIs(t, err, ErrInvalidState, "self-review")

	_, err = svc.SubmitReview(reviewer.ID, "missing", true, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.SubmitReview(reviewer.ID, tr.ID, true, "")
	require.NoError(t, err)
	_, err = svc.SubmitReview(second.ID, tr.ID, false, "")
	assert.ErrorIs(t, err, ErrInvalidState, "reviewed exactly once")
}

func TestResubmitTranslation(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)
	stranger := createTestUser(t, svc.DB, "stranger", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	tr, err := svc.SubmitTranslation(author.ID, field.ID, "fr", "velo")
	require.NoError(t, err)

	_, err = svc.ResubmitTranslation(author.ID, tr.ID, "vélo")
	assert.ErrorIs(t, err, ErrInvalidState, "only rejected translations can be resubmitted")

	_, err = svc.SubmitReview(reviewer.ID, tr.ID, false, "accent")
	require.NoError(t, err)

	_, err = svc.ResubmitTranslation(stranger.ID, tr.ID, "vélo")
	assert.ErrorIs(t, err, ErrInvalidState, "only the author can resubmit")

	updated, err := svc.ResubmitTranslation(author.ID, tr.ID, "vélo")
	require.NoError(t, err)
	assert.Equal(t, models.TranslationStatusReview, updated.Status)
	assert.Equal(t, "vélo", updated.Value)
	require.NotNil(t, updated.ModifiedBy)
	assert.Equal(t, author.ID, *updated.ModifiedBy)
	assert.Nil(t, updated.ReviewedBy, "fresh review cycle")
	assert.Empty(t, updated.ReviewComment)
}

func TestMergeTranslation(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	tr, err := svc.SubmitTranslation(author.ID, field.ID, "fr", "vélo")
	require.NoError(t, err)

	_, err = svc.MergeTranslation(tr.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "only approved translations merge")

	_, err = svc.SubmitReview(reviewer.ID, tr.ID, true, "")
	require.NoError(t, err)

	result, err := svc.MergeTranslation(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranslationStatusMerged, result.Translation.Status)

	// +2 creation, +10 approval, +25 merge.
	assert.Equal(t, 37, svc.Reputation.GetReputation(author.ID))
}

func TestOverturnRejection(t *testing.T) {
	svc := newTestFlow(t)
	author := createTestUser(t, svc.DB, "author", 0)
	reviewer := createTestUser(t, svc.DB, "reviewer", 0)

	term := createTestTerm(t, svc.DB, "src-1", "http://example.org/c1")
	field := createTestField(t, svc.DB, term.ID, "skos:prefLabel", "fiets", models.FieldRoleLabel)
	tr, err := svc.SubmitTranslation(author.ID, field.ID, "fr", "vélo")
	require.NoError(t, err)

	_, err = svc.OverturnRejection(tr.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "nothing rejected yet")

	_, err = svc.SubmitReview(reviewer.ID, tr.ID, false, "nope")
	require.NoError(t, err)

	result, err := svc.OverturnRejection(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranslationStatusReview, result.Translation.Status)
	assert.Nil(t, result.Translation.ReviewedBy)
	require.NotNil(t, result.Penalty)
	assert.Equal(t, -15, result.Penalty.ShieldedPenalty)
	assert.Equal(t, -15, svc.Reputation.GetReputation(reviewer.ID))
}
