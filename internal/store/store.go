// Package store persists collected records. Two backends implement Store:
// SQLite for single-node installs and tests, Postgres for production.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
)

// RecordFilter narrows SelectPage, Count and BulkAssign. Zero values match
// everything.
type RecordFilter struct {
	ExternalKey string         `json:"external_key,omitempty"`
	Verified    *bool          `json:"verified,omitempty"`
	Priority    model.Priority `json:"priority,omitempty"`
	HasPhone    bool           `json:"has_phone,omitempty"`
}

// Order selects the sort column for SelectPage. Ties are broken by id so
// pagination is stable.
type Order struct {
	Column string
	Desc   bool
}

var (
	// OrderNewestFirst sorts by created_at descending.
	OrderNewestFirst = Order{Column: ColCreatedAt, Desc: true}
	// OrderOldestFirst sorts by created_at ascending.
	OrderOldestFirst = Order{Column: ColCreatedAt}
)

// Fields is a partial update keyed by column name.
type Fields map[string]any

// Store is the record persistence interface used by every pipeline.
type Store interface {
	Insert(ctx context.Context, r *model.Record) error
	UpdateByKey(ctx context.Context, externalKey string, fields Fields) error
	// FindByKey returns nil, nil when no record has the key. If duplicates
	// exist the most recently created one is returned.
	FindByKey(ctx context.Context, externalKey string) (*model.Record, error)
	SelectPage(ctx context.Context, filter RecordFilter, order Order, limit, offset int) ([]model.Record, error)
	Count(ctx context.Context, filter RecordFilter) (int, error)
	// BulkAssign rewrites one column for every matching record in a single
	// statement and returns the number of rows touched.
	BulkAssign(ctx context.Context, filter RecordFilter, a Assignment) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Options tunes backend behaviour shared by both drivers.
type Options struct {
	// UniqueExternalKey adds a unique index on external_key during Migrate.
	UniqueExternalKey bool
}

// ErrNotFound is returned by UpdateByKey when no record has the key.
var ErrNotFound = eris.New("store: record not found")

// Column names accepted by Fields, Order and Assignment.
const (
	ColID              = "id"
	ColExternalKey     = "external_key"
	ColName            = "name"
	ColTitle           = "title"
	ColOrganization    = "organization"
	ColLocation        = "location"
	ColEmail           = "email"
	ColPhone           = "phone"
	ColIndustry        = "industry"
	ColConnectionLevel = "connection_level"
	ColSummary         = "summary"
	ColExperience      = "experience"
	ColEducation       = "education"
	ColSkills          = "skills"
	ColSource          = "source"
	ColVerified        = "verified"
	ColSegment         = "segment"
	ColPriority        = "priority"
	ColCreatedAt       = "created_at"
	ColUpdatedAt       = "updated_at"
)

// recordColumns is the canonical column order for inserts and scans.
var recordColumns = []string{
	ColID, ColExternalKey, ColName, ColTitle, ColOrganization, ColLocation,
	ColEmail, ColPhone, ColIndustry, ColConnectionLevel, ColSummary,
	ColExperience, ColEducation, ColSkills, ColSource, ColVerified,
	ColSegment, ColPriority, ColCreatedAt, ColUpdatedAt,
}

var knownColumns = func() map[string]bool {
	m := make(map[string]bool, len(recordColumns))
	for _, c := range recordColumns {
		m[c] = true
	}
	return m
}()

// MergeFields converts a merged record into the partial update that
// UpdateByKey applies. id, external_key and created_at are never rewritten.
func MergeFields(r model.Record) Fields {
	return Fields{
		ColName:            r.Name,
		ColTitle:           r.Title,
		ColOrganization:    r.Organization,
		ColLocation:        r.Location,
		ColEmail:           r.Email,
		ColPhone:           r.Phone,
		ColIndustry:        r.Industry,
		ColConnectionLevel: r.ConnectionLevel,
		ColSummary:         r.Summary,
		ColExperience:      r.Experience,
		ColEducation:       r.Education,
		ColSkills:          r.Skills,
		ColSource:          r.Source,
		ColSegment:         r.Segment,
		ColUpdatedAt:       r.UpdatedAt.UTC(),
	}
}

// VerifiedFields marks a record verified at now.
func VerifiedFields(now time.Time) Fields {
	return Fields{ColVerified: true, ColUpdatedAt: now.UTC()}
}

func recordValues(r *model.Record) []any {
	return []any{
		r.ID, r.ExternalKey, r.Name, r.Title, r.Organization, r.Location,
		r.Email, r.Phone, r.Industry, r.ConnectionLevel, r.Summary,
		r.Experience, r.Education, r.Skills, r.Source, r.Verified,
		r.Segment, string(r.Priority), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var priority string
	err := row.Scan(
		&r.ID, &r.ExternalKey, &r.Name, &r.Title, &r.Organization, &r.Location,
		&r.Email, &r.Phone, &r.Industry, &r.ConnectionLevel, &r.Summary,
		&r.Experience, &r.Education, &r.Skills, &r.Source, &r.Verified,
		&r.Segment, &priority, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Priority = model.Priority(priority)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
