package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"term-translation-system/models"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncEngine pulls vocabulary data from an upstream triplestore into local
// Terms and TermFields. Upserts are idempotent: re-running against unchanged
// upstream data inserts nothing, keyed on (term, predicate, value).
type SyncEngine struct {
	DB     *gorm.DB
	Client *SPARQLClient
}

func NewSyncEngine(db *gorm.DB) *SyncEngine {
	return &SyncEngine{DB: db, Client: NewSPARQLClient()}
}

const harvestBatchSize = 1000

// harvestField is one fixed SKOS property pulled by the collection harvest.
type harvestField struct {
	variable string
	uri      string
	curie    string
	role     models.FieldRole
}

var harvestFields = []harvestField{
	{"prefLabel", "http://www.w3.org/2004/02/skos/core#prefLabel", "skos:prefLabel", models.FieldRoleLabel},
	{"altLabel", "http://www.w3.org/2004/02/skos/core#altLabel", "skos:altLabel", models.FieldRoleLabel},
	{"definition", "http://www.w3.org/2004/02/skos/core#definition", "skos:definition", models.FieldRoleTranslatable},
	{"notation", "http://www.w3.org/2004/02/skos/core#notation", "skos:notation", models.FieldRoleReference},
}

type syncStats struct {
	termsCreated    int
	termsReassigned int
	fieldsInserted  int
	valuesSkipped   int
}

func (e *SyncEngine) loadSource(sourceID string) (*models.Source, error) {
	var source models.Source
	if err := e.DB.First(&source, "id = ?", sourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("source %s does not exist", sourceID)
		}
		return nil, err
	}
	return &source, nil
}

// RunTriplestoreSync is the mapping-driven sync handler: for every configured
// RDF type, discover its subjects, upsert Terms, then resolve each predicate
// path to literal values and upsert TermFields with their derived role.
func (e *SyncEngine) RunTriplestoreSync(ctx context.Context, task *models.Task, buf *models.TaskLogBuffer) error {
	source, err := e.loadSource(task.SourceID)
	if err != nil {
		return err
	}
	if source.Endpoint == "" {
		return fmt.Errorf("source %s has no SPARQL endpoint configured", source.ID)
	}
	if source.Graph == "" {
		return fmt.Errorf("source %s has no graph name configured", source.ID)
	}
	if len(source.Mapping.Types) == 0 {
		return fmt.Errorf("source %s has no type mapping configured", source.ID)
	}

	buf.Logf("triplestore sync for source %s (%s), %d mapped type(s)", source.Name, source.Endpoint, len(source.Mapping.Types))

	stats := &syncStats{}
	for _, tm := range source.Mapping.Types {
		if err := e.syncType(ctx, source, tm, stats, buf); err != nil {
			return fmt.Errorf("type %s: %w", tm.RDFType, err)
		}
	}

	buf.Logf("sync summary: %d term(s) created, %d reassigned, %d field value(s) inserted, %d skipped by language filter",
		stats.termsCreated, stats.termsReassigned, stats.fieldsInserted, stats.valuesSkipped)
	return nil
}

func (e *SyncEngine) syncType(ctx context.Context, source *models.Source, tm models.TypeMapping, stats *syncStats, buf *models.TaskLogBuffer) error {
	subjectQuery := fmt.Sprintf(
		"SELECT DISTINCT ?s WHERE { GRAPH <%s> { ?s a <%s> } }",
		source.Graph, tm.RDFType)
	result, err := e.Client.Select(ctx, source.Endpoint, subjectQuery)
	if err != nil {
		return fmt.Errorf("subject discovery failed: %w", err)
	}

	termIDs := make(map[string]string, len(result.Results.Bindings))
	for _, binding := range result.Results.Bindings {
		uri := binding["s"].Value
		if uri == "" {
			continue
		}
		termID, err := e.upsertTerm(source, uri, stats)
		if err != nil {
			return err
		}
		termIDs[uri] = termID
	}
	buf.Logf("type %s: %d subject(s)", tm.RDFType, len(termIDs))

	for _, path := range tm.Paths {
		if len(path.Predicates) == 0 {
			continue
		}
		if err := e.syncPath(ctx, source, tm, path, termIDs, stats, buf); err != nil {
			return err
		}
	}
	return nil
}

// syncPath resolves one predicate path for all subjects of a type in a single
// query (multi-hop paths become a SPARQL property path) and upserts one
// TermField per distinct value. Language filtering is applied client-side so
// a configured "en" also accepts regional variants.
func (e *SyncEngine) syncPath(ctx context.Context, source *models.Source, tm models.TypeMapping, path models.PredicatePath, termIDs map[string]string, stats *syncStats, buf *models.TaskLogBuffer) error {
	pathExpr := "<" + strings.Join(path.Predicates, ">/<") + ">"
	valueQuery := fmt.Sprintf(
		"SELECT ?s ?v WHERE { GRAPH <%s> { ?s a <%s> . ?s %s ?v . FILTER(isLiteral(?v)) } }",
		source.Graph, tm.RDFType, pathExpr)
	result, err := e.Client.Select(ctx, source.Endpoint, valueQuery)
	if err != nil {
		return fmt.Errorf("value resolution for path %s failed: %w", strings.Join(path.Predicates, "/"), err)
	}

	matcher := languageMatcher(path.Languages)
	predicate := strings.Join(path.Predicates, "/")
	role := source.Mapping.RoleFor(predicate)

	inserted := 0
	for _, binding := range result.Results.Bindings {
		termID, ok := termIDs[binding["s"].Value]
		if !ok {
			continue
		}
		value := binding["v"]
		if value.Value == "" {
			continue
		}
		if !matcher(value.Lang) {
			stats.valuesSkipped++
			continue
		}
		created, err := e.upsertField(termID, predicate, path.Predicates[len(path.Predicates)-1], value.Value, role)
		if err != nil {
			return err
		}
		if created {
			inserted++
		}
	}
	stats.fieldsInserted += inserted
	buf.Logf("path %s (%s): %d binding(s), %d new field value(s)", predicate, role, len(result.Results.Bindings), inserted)
	return nil
}

// RunHarvest is the collection-membership harvest: count the members of the
// configured skos:Collection, then pull them in batches with the fixed SKOS
// field set.
func (e *SyncEngine) RunHarvest(ctx context.Context, task *models.Task, buf *models.TaskLogBuffer) error {
	source, err := e.loadSource(task.SourceID)
	if err != nil {
		return err
	}
	if source.Endpoint == "" {
		return fmt.Errorf("source %s has no SPARQL endpoint configured", source.ID)
	}
	if source.CollectionURI == "" {
		return fmt.Errorf("source %s has no collection URI configured", source.ID)
	}
	if !strings.HasPrefix(source.CollectionURI, "http://") && !strings.HasPrefix(source.CollectionURI, "https://") {
		return fmt.Errorf("invalid collection URI %s: must start with http:// or https://", source.CollectionURI)
	}

	total, err := e.collectionMemberCount(ctx, source)
	if err != nil {
		return err
	}
	buf.Logf("harvest for collection %s: %d member(s)", source.CollectionURI, total)

	stats := &syncStats{}
	for offset := 0; offset < total; offset += harvestBatchSize {
		buf.Logf("fetching batch OFFSET=%d LIMIT=%d", offset, harvestBatchSize)
		result, err := e.Client.Select(ctx, source.Endpoint, harvestQuery(source.CollectionURI, harvestBatchSize, offset))
		if err != nil {
			return fmt.Errorf("harvest batch at offset %d failed: %w", offset, err)
		}
		if err := e.insertHarvestBatch(source, result, stats); err != nil {
			return err
		}
	}

	buf.Logf("harvest summary: %d term(s) created, %d reassigned, %d field value(s) inserted",
		stats.termsCreated, stats.termsReassigned, stats.fieldsInserted)
	return nil
}

func (e *SyncEngine) collectionMemberCount(ctx context.Context, source *models.Source) (int, error) {
	query := fmt.Sprintf(`PREFIX skos: <http://www.w3.org/2004/02/skos/core#>
SELECT (COUNT(DISTINCT ?concept) AS ?count)
WHERE { <%s> skos:member ?concept . }`, source.CollectionURI)

	result, err := e.Client.Select(ctx, source.Endpoint, query)
	if err != nil {
		return 0, fmt.Errorf("member count query failed: %w", err)
	}
	if len(result.Results.Bindings) == 0 {
		return 0, fmt.Errorf("member count query returned no bindings")
	}
	count, err := strconv.Atoi(result.Results.Bindings[0]["count"].Value)
	if err != nil {
		return 0, fmt.Errorf("member count is not numeric: %w", err)
	}
	return count, nil
}

func harvestQuery(collectionURI string, limit, offset int) string {
	return fmt.Sprintf(`PREFIX skos: <http://www.w3.org/2004/02/skos/core#>
SELECT DISTINCT ?concept ?prefLabel ?altLabel ?definition ?notation
WHERE {
    <%s> skos:member ?concept .
    OPTIONAL { ?concept skos:prefLabel ?prefLabel }
    OPTIONAL { ?concept skos:altLabel ?altLabel }
    OPTIONAL { ?concept skos:definition ?definition }
    OPTIONAL { ?concept skos:notation ?notation }
}
ORDER BY ?concept
LIMIT %d
OFFSET %d`, collectionURI, limit, offset)
}

func (e *SyncEngine) insertHarvestBatch(source *models.Source, result *SPARQLResult, stats *syncStats) error {
	for _, binding := range result.Results.Bindings {
		conceptURI := binding["concept"].Value
		if conceptURI == "" {
			continue
		}
		termID, err := e.upsertTerm(source, conceptURI, stats)
		if err != nil {
			return err
		}
		for _, field := range harvestFields {
			value, ok := binding[field.variable]
			if !ok || value.Value == "" {
				continue
			}
			created, err := e.upsertField(termID, field.curie, field.uri, value.Value, field.role)
			if err != nil {
				return err
			}
			if created {
				stats.fieldsInserted++
			}
		}
	}
	return nil
}

// RunFileUpload is a reconciliation no-op: uploads are processed inline at
// upload time, the task only records that nothing was pending.
func (e *SyncEngine) RunFileUpload(_ context.Context, task *models.Task, buf *models.TaskLogBuffer) error {
	buf.Logf("file uploads are processed inline; nothing to reconcile for source %s", task.SourceID)
	return nil
}

// upsertTerm creates an unseen term, or reassigns ownership if the concept
// moved between sources upstream.
func (e *SyncEngine) upsertTerm(source *models.Source, uri string, stats *syncStats) (string, error) {
	var term models.Term
	err := e.DB.Where("uri = ?", uri).First(&term).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		term = models.Term{
			ID:       uuid.NewString(),
			URI:      uri,
			SourceID: source.ID,
		}
		if err := e.DB.Create(&term).Error; err != nil {
			return "", fmt.Errorf("failed to create term %s: %w", uri, err)
		}
		stats.termsCreated++
		return term.ID, nil
	}
	if err != nil {
		return "", err
	}
	if term.SourceID != source.ID {
		term.SourceID = source.ID
		if err := e.DB.Save(&term).Error; err != nil {
			return "", fmt.Errorf("failed to reassign term %s: %w", uri, err)
		}
		stats.termsReassigned++
	}
	return term.ID, nil
}

// upsertField inserts one (term, predicate, value) row, ignoring conflicts so
// existing rows — and the translations hanging off them — are preserved.
func (e *SyncEngine) upsertField(termID, predicate, predicateURI, value string, role models.FieldRole) (bool, error) {
	field := models.TermField{
		ID:            uuid.NewString(),
		TermID:        termID,
		Predicate:     predicate,
		PredicateURI:  predicateURI,
		OriginalValue: value,
		Role:          role,
	}
	res := e.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "term_id"}, {Name: "predicate"}, {Name: "original_value"}},
		DoNothing: true,
	}).Create(&field)
	if res.Error != nil {
		return false, fmt.Errorf("failed to upsert field %s on term %s: %w", predicate, termID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// languageMatcher builds a predicate over literal language tags. An empty
// filter accepts everything; untagged literals always pass (original values
// are frequently untagged upstream). Matching goes through x/text so "en"
// accepts "en-GB".
func languageMatcher(allowed []string) func(tag string) bool {
	if len(allowed) == 0 {
		return func(string) bool { return true }
	}
	var tags []language.Tag
	for _, a := range allowed {
		if t, err := language.Parse(a); err == nil {
			tags = append(tags, t)
		}
	}
	matcher := language.NewMatcher(tags)
	return func(tag string) bool {
		if tag == "" {
			return true
		}
		t, err := language.Parse(tag)
		if err != nil {
			return false
		}
		_, _, confidence := matcher.Match(t)
		return confidence >= language.High
	}
}
