package models

// FieldRole classifies a TermField and controls translation eligibility.
type FieldRole string

const (
	FieldRoleLabel        FieldRole = "label"
	FieldRoleReference    FieldRole = "reference"
	FieldRoleTranslatable FieldRole = "translatable"
)

// Translatable reports whether a field with this role may receive translations.
// Reference fields (broader/narrower links, notations) are URIs or codes and
// never enter the translation flow.
func (r FieldRole) Translatable() bool {
	return r == FieldRoleLabel || r == FieldRoleTranslatable
}

// PredicatePath is one value-resolution path on a mapped RDF type. Predicates
// are followed in order (multi-hop), Languages optionally restricts literal
// language tags ("en" also accepts regional variants like "en-GB").
type PredicatePath struct {
	Predicates []string `json:"predicates"`
	Languages  []string `json:"languages,omitempty"`
}

// TypeMapping maps one upstream RDF type to the predicate paths harvested
// from subjects of that type.
type TypeMapping struct {
	RDFType string          `json:"rdf_type"`
	Paths   []PredicatePath `json:"paths"`
}

// SourceMapping is the per-source sync configuration: which types to pull and
// which predicates classify as label vs reference.
type SourceMapping struct {
	Types               []TypeMapping `json:"types"`
	LabelPredicate      string        `json:"label_predicate"`
	ReferencePredicates []string      `json:"reference_predicates,omitempty"`
}

// RoleFor derives the role a synced field gets for a predicate path: label
// for the configured label predicate, reference for configured reference
// predicates, translatable otherwise.
func (m SourceMapping) RoleFor(predicate string) FieldRole {
	if predicate == m.LabelPredicate {
		return FieldRoleLabel
	}
	for _, ref := range m.ReferencePredicates {
		if ref == predicate {
			return FieldRoleReference
		}
	}
	return FieldRoleTranslatable
}

// Source is an upstream triplestore a vocabulary is synchronized from.
type Source struct {
	ID            string        `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"not null" json:"name"`
	Slug          string        `gorm:"uniqueIndex;not null" json:"slug"`
	Endpoint      string        `gorm:"not null" json:"endpoint"`        // SPARQL query endpoint
	Graph         string        `json:"graph"`                           // named graph, required for triplestore sync
	CollectionURI string        `json:"collection_uri"`                  // skos:Collection URI, required for harvest
	Mapping       SourceMapping `gorm:"serializer:json" json:"mapping"`

	Timestamps
}

// Term is one vocabulary concept, identified by its upstream URI.
type Term struct {
	ID       string `gorm:"primaryKey" json:"id"`
	URI      string `gorm:"uniqueIndex;not null" json:"uri"`
	SourceID string `gorm:"index;not null" json:"source_id"`

	Fields []TermField `gorm:"foreignKey:TermID" json:"fields,omitempty"`

	Timestamps
}

// TermField is one attribute of a Term. The original value is immutable once
// harvested; per-language Translations hang off it. Uniqueness over
// (term_id, predicate, original_value) keeps re-syncs idempotent — the index
// is created at migration time since GORM tags cannot express it over a text
// column combination portably.
type TermField struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	TermID        string    `gorm:"index;not null" json:"term_id"`
	Predicate     string    `gorm:"not null" json:"predicate"` // predicate path, e.g. "skos:prefLabel" or "p1/p2"
	PredicateURI  string    `json:"predicate_uri"`
	OriginalValue string    `gorm:"not null" json:"original_value"`
	Role          FieldRole `gorm:"type:varchar(16);not null;default:'translatable'" json:"role"`

	Translations []Translation `gorm:"foreignKey:TermFieldID" json:"translations,omitempty"`

	Timestamps
}
