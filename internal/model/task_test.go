package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPriority_Rank(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, TaskPriorityHigh.Rank())
	assert.Equal(t, 2, TaskPriorityMedium.Rank())
	assert.Equal(t, 1, TaskPriorityLow.Rank())
	assert.Equal(t, 0, TaskPriority("urgent").Rank())
}

func TestTask_Param(t *testing.T) {
	t.Parallel()

	task := Task{Params: map[string]any{"mode": "weekly", "n": 3}}
	assert.Equal(t, "weekly", task.Param("mode"))
	assert.Equal(t, "", task.Param("n"))
	assert.Equal(t, "", Task{}.Param("mode"))
}

func TestRunResult_Finish(t *testing.T) {
	t.Parallel()

	r := &RunResult{Processed: 4, Inserted: 3, Updated: 1}
	r.AddError("search", "cfg-1", errors.New("timeout"), true, time.Now())
	r.Finish("collection", false)

	assert.True(t, r.OK)
	assert.Equal(t, "collection: processed=4 inserted=3 updated=1 deleted=0 errors=1", r.Summary)
	assert.True(t, r.Errors[0].Transient)

	aborted := (&RunResult{}).Finish("enrichment", true)
	assert.False(t, aborted.OK)
	assert.Contains(t, aborted.Summary, "(aborted)")
}

func TestRecord_ContactHelpers(t *testing.T) {
	t.Parallel()

	r := Record{Email: StringPtr("a@b.com"), Phone: StringPtr("  ")}
	assert.True(t, r.HasEmail())
	assert.False(t, r.HasPhone())
	assert.Nil(t, r.Phone)
	assert.Equal(t, "a@b.com", Deref(r.Email))
	assert.Equal(t, "", Deref(nil))
}

func TestSearchConfig_Label(t *testing.T) {
	t.Parallel()

	c := SearchConfig{Keywords: "private equity", Title: "Managing Director", Location: "New York", MaxResults: 10}
	assert.Equal(t, "private equity | Managing Director | New York", c.Label())
	assert.Equal(t, "empty(max=5)", SearchConfig{MaxResults: 5}.Label())
}

func TestValidate_SearchConfig(t *testing.T) {
	assert.NoError(t, Validate(SearchConfig{Title: "CFO", MaxResults: 10}))
	assert.NoError(t, Validate(SearchConfig{Keywords: "private equity", MaxResults: 100, ConnectionLevel: "2nd"}))

	err := Validate(SearchConfig{MaxResults: 0, ConnectionLevel: "4th"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keywords failed required_without=Title")
	assert.Contains(t, err.Error(), "max_results failed gte=1")
	assert.Contains(t, err.Error(), "connection_level failed oneof")

	assert.ErrorContains(t, Validate(SearchConfig{Title: "CFO", MaxResults: 101}), "max_results failed lte=100")
}

func TestValidate_Task(t *testing.T) {
	assert.NoError(t, Validate(Task{Type: TaskCollection}))
	assert.NoError(t, Validate(Task{Type: TaskOutreach, Priority: TaskPriorityHigh}))
	assert.ErrorContains(t, Validate(Task{Type: "mining"}), "type failed oneof")
	assert.ErrorContains(t, Validate(Task{Type: TaskCleanup, Priority: "urgent"}), "priority failed oneof")
}
