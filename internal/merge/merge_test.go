package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospector/internal/model"
)

func TestMerge_FieldPrecedence(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(48 * time.Hour)

	existing := model.Record{
		ID:           "id-1",
		ExternalKey:  "k",
		Name:         "Jane Doe",
		Title:        "Analyst",
		Organization: "Acme",
		Summary:      "old summary",
		Location:     "Boston",
		Email:        model.StringPtr("jane@acme.com"),
		Phone:        model.StringPtr("+1555"),
		Verified:     true,
		Priority:     model.PriorityHigh,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	candidate := model.Record{
		ExternalKey: "k",
		Title:       "Director",
		Summary:     "",
		Location:    "",
		Name:        "Jane Q. Doe",
	}

	got := Merge(existing, candidate, now)

	assert.Equal(t, "Director", got.Title)
	assert.Equal(t, "", got.Organization, "organization is always overwritten")
	assert.Equal(t, "", got.Summary, "summary is always overwritten")
	assert.Equal(t, "Jane Q. Doe", got.Name)
	assert.Equal(t, "Boston", got.Location, "empty candidate value keeps stored value")
	assert.Equal(t, "jane@acme.com", model.Deref(got.Email), "nil email never clears")
	assert.Equal(t, "+1555", model.Deref(got.Phone))
	assert.Equal(t, "id-1", got.ID)
	assert.True(t, got.Verified)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestMerge_EmailReplacedWhenPresent(t *testing.T) {
	t.Parallel()
	existing := model.Record{Email: model.StringPtr("old@acme.com")}
	candidate := model.Record{Email: model.StringPtr("new@acme.com")}

	got := Merge(existing, candidate, time.Now())
	assert.Equal(t, "new@acme.com", model.Deref(got.Email))
	assert.Nil(t, got.Phone)
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"https://www.linkedin.com/in/jane-doe", "https://www.linkedin.com/in/jane-doe"},
		{"  HTTPS://WWW.LinkedIn.com/in/jane-doe/  ", "https://www.linkedin.com/in/jane-doe"},
		{"https://www.linkedin.com/in/jane-doe?trk=abc#top", "https://www.linkedin.com/in/jane-doe"},
		{"https://www.linkedin.com/in/Jane-Doe", "https://www.linkedin.com/in/Jane-Doe"},
		{"urn:li:member:123/", "urn:li:member:123"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), tt.in)
	}
}
