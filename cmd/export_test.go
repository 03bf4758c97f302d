package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

func seedStore(t *testing.T, n int) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.Insert(context.Background(), &model.Record{
			ExternalKey: fmt.Sprintf("https://p/%d", i),
			Name:        fmt.Sprintf("Person %d", i),
			Email:       model.StringPtr(fmt.Sprintf("p%d@example.com", i)),
			Priority:    model.PriorityMedium,
			CreatedAt:   at,
			UpdatedAt:   at,
		}))
	}
	return st
}

func TestLoadRecords(t *testing.T) {
	st := seedStore(t, 7)

	all, err := loadRecords(context.Background(), st, 0)
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, "https://p/6", all[0].ExternalKey)

	some, err := loadRecords(context.Background(), st, 3)
	require.NoError(t, err)
	assert.Len(t, some, 3)
}

func TestWriteXLSX(t *testing.T) {
	st := seedStore(t, 2)
	records, err := loadRecords(context.Background(), st, 0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, writeXLSX(path, records))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	rows := f.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "external_key", rows[0].Cells[0].String())
	assert.Equal(t, "https://p/1", rows[1].Cells[0].String())
	assert.Equal(t, "p1@example.com", rows[1].Cells[5].String())
	assert.Equal(t, "Medium", rows[1].Cells[9].String())
}

func TestEncodeRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeRecords(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())

	buf.Reset()
	require.NoError(t, encodeRecords(&buf, []model.Record{{ExternalKey: "https://p/x", Priority: model.PriorityHigh}}))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "https://p/x", out[0]["external_key"])
	assert.Nil(t, out[0]["email"])
}

func TestRecordRow_MatchesHeader(t *testing.T) {
	assert.Len(t, recordRow(model.Record{}), len(exportHeader))
}
