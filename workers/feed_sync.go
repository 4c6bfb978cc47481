package workers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"term-translation-system/models"
	"term-translation-system/utils"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const (
	fragmentTimeLayout = "20060102T150405Z"
	fragmentSuffix     = ".ttl"
	latestFragmentName = "latest" + fragmentSuffix
)

// FeedSyncEngine publishes review-status translations as an incremental feed
// of Turtle fragments, one directory per source, with a "latest" pointer.
// Fragments are optionally mirrored to object storage.
type FeedSyncEngine struct {
	DB      *gorm.DB
	BaseDir string
	Storage *utils.ObjectStorage // nil when uploads are disabled
}

func NewFeedSyncEngine(db *gorm.DB, baseDir string, storage *utils.ObjectStorage) *FeedSyncEngine {
	return &FeedSyncEngine{DB: db, BaseDir: baseDir, Storage: storage}
}

type feedRow struct {
	TranslationID string
	Value         string
	Language      string
	FieldURI      string
	Predicate     string
	OriginalValue string
	TermURI       string
	ModifiedAt    time.Time
}

// RunFeedSync generates one fragment covering translations that entered or
// changed review status since the newest existing fragment. No changes means
// no new fragment.
func (e *FeedSyncEngine) RunFeedSync(ctx context.Context, task *models.Task, buf *models.TaskLogBuffer) error {
	var source models.Source
	if err := e.DB.First(&source, "id = ?", task.SourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("source %s does not exist", task.SourceID)
		}
		return err
	}

	dirName := source.Slug
	if dirName == "" {
		dirName = slug.Make(source.Name)
	}
	feedDir := filepath.Join(e.BaseDir, dirName)
	if err := os.MkdirAll(feedDir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure feed dir %s: %w", feedDir, err)
	}

	since := e.latestFragmentTime(feedDir)
	if since.IsZero() {
		buf.Logf("no existing fragments for %s — generating full feed", dirName)
	} else {
		buf.Logf("generating incremental fragment since %s", since.Format(time.RFC3339))
	}

	rows, err := e.queryReviewTranslations(source.ID, since)
	if err != nil {
		return fmt.Errorf("failed to query review translations: %w", err)
	}
	if len(rows) == 0 {
		buf.Logf("no translation changes since last fragment — nothing to publish")
		return nil
	}

	now := time.Now().UTC()
	fragment := renderFragment(rows, now)
	fragmentName := fmt.Sprintf("fragment-%s%s", now.Format(fragmentTimeLayout), fragmentSuffix)

	fragmentPath := filepath.Join(feedDir, fragmentName)
	if err := os.WriteFile(fragmentPath, []byte(fragment), 0o644); err != nil {
		return fmt.Errorf("failed to write fragment %s: %w", fragmentPath, err)
	}
	if err := os.WriteFile(filepath.Join(feedDir, latestFragmentName), []byte(fragment), 0o644); err != nil {
		return fmt.Errorf("failed to update latest fragment: %w", err)
	}
	buf.Logf("wrote fragment %s (%d translation(s))", fragmentName, len(rows))

	if e.Storage != nil {
		key := fmt.Sprintf("feeds/%s/%s", dirName, fragmentName)
		url, err := e.Storage.UploadBytes(ctx, key, []byte(fragment), "text/turtle")
		if err != nil {
			return fmt.Errorf("failed to upload fragment to object storage: %w", err)
		}
		buf.Logf("uploaded fragment to %s", url)
	}

	return nil
}

// latestFragmentTime reads the newest fragment timestamp from the directory
// listing. The timestamp lives in the filename so no fragment parsing is
// needed.
func (e *FeedSyncEngine) latestFragmentTime(feedDir string) time.Time {
	entries, err := os.ReadDir(feedDir)
	if err != nil {
		return time.Time{}
	}

	var latest time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == latestFragmentName || !strings.HasSuffix(name, fragmentSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, "fragment-"), fragmentSuffix)
		if t, err := time.Parse(fragmentTimeLayout, stamp); err == nil && t.After(latest) {
			latest = t
		}
	}
	return latest
}

func (e *FeedSyncEngine) queryReviewTranslations(sourceID string, since time.Time) ([]feedRow, error) {
	q := e.DB.Table("translations t").
		Select(`t.id AS translation_id, t.value, t.language, t.updated_at AS modified_at,
			tf.predicate_uri AS field_uri, tf.predicate, tf.original_value,
			tm.uri AS term_uri`).
		Joins("JOIN term_fields tf ON tf.id = t.term_field_id AND tf.deleted_at IS NULL").
		Joins("JOIN terms tm ON tm.id = tf.term_id AND tm.deleted_at IS NULL").
		Where("tm.source_id = ?", sourceID).
		Where("t.status = ?", models.TranslationStatusReview).
		Where("t.deleted_at IS NULL").
		Order("t.updated_at ASC")
	if !since.IsZero() {
		q = q.Where("t.updated_at > ?", since)
	}

	var rows []feedRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// renderFragment writes a minimal Turtle document: one member entry per
// translation with its term, predicate, language-tagged value and modified
// stamp.
func renderFragment(rows []feedRow, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("@prefix skos: <http://www.w3.org/2004/02/skos/core#> .\n")
	b.WriteString("@prefix dcterms: <http://purl.org/dc/terms/> .\n")
	b.WriteString("@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .\n\n")
	fmt.Fprintf(&b, "# generated %s\n\n", generatedAt.Format(time.RFC3339))

	for _, row := range rows {
		predicate := row.FieldURI
		if predicate == "" {
			predicate = row.Predicate
		}
		fmt.Fprintf(&b, "<%s> <%s> %s@%s ;\n", row.TermURI, predicate, turtleLiteral(row.Value), row.Language)
		fmt.Fprintf(&b, "    dcterms:modified \"%s\"^^xsd:dateTime .\n\n", row.ModifiedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func turtleLiteral(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`).Replace(value)
	return `"` + escaped + `"`
}
