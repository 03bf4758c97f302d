package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/agent"
	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/scheduler"
	"github.com/sells-group/prospector/internal/store"
)

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Enqueue(task model.Task) string {
	return m.Called(task).String(0)
}

func (m *mockDispatcher) Submit(ctx context.Context, task model.Task) (model.RunSummary, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(model.RunSummary), args.Error(1)
}

func (m *mockDispatcher) Status() agent.Status {
	return m.Called().Get(0).(agent.Status)
}

type staticTriggers []scheduler.TriggerInfo

func (s staticTriggers) Snapshot() []scheduler.TriggerInfo { return s }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"), store.Options{UniqueExternalKey: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestServer(t *testing.T, d Dispatcher, st store.Store) http.Handler {
	t.Helper()
	triggers := staticTriggers{{Name: scheduler.TriggerDailyCollection, Spec: "0 9 * * *"}}
	return New(config.ServerConfig{Port: 0, AllowedOrigins: []string{"*"}}, d, st, triggers).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &mockDispatcher{}, newTestStore(t))
	rec, body := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_StoreClosed(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Close())
	h := newTestServer(t, &mockDispatcher{}, st)

	rec, body := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
}

func TestCollectDaily_Success(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Submit", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
		return task.Type == model.TaskCollection && task.Param("mode") == "daily" && task.Source == model.SourceOperator
	})).Return(model.RunSummary{
		TaskID: "t1",
		State:  model.TaskCompleted,
		Result: &model.RunResult{OK: true, Processed: 3, Summary: "collection: processed=3"},
	}, nil)

	rec, body := do(t, newTestServer(t, d, newTestStore(t)), http.MethodPost, "/api/collect/daily", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "collection: processed=3", body["summary"])
	d.AssertExpectations(t)
}

func TestCollectDaily_Failure(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Submit", mock.Anything, mock.Anything).
		Return(model.RunSummary{TaskID: "t1", State: model.TaskFailed}, errors.New("store unavailable"))

	rec, body := do(t, newTestServer(t, d, newTestStore(t)), http.MethodPost, "/api/collect/daily", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "store unavailable", body["error"])
}

func TestRecords_Pagination(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		created := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, st.Insert(context.Background(), &model.Record{
			ExternalKey: fmt.Sprintf("k%d", i),
			Priority:    model.PriorityLow,
			CreatedAt:   created,
			UpdatedAt:   created,
		}))
	}
	h := newTestServer(t, &mockDispatcher{}, st)

	rec, body := do(t, h, http.MethodGet, "/api/records?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), body["total"])
	records := body["records"].([]any)
	require.Len(t, records, 2)
	assert.Equal(t, "k3", records[0].(map[string]any)["external_key"])

	rec, _ = do(t, h, http.MethodGet, "/api/records?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/records?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/records?limit=10000&offset=50", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(maxPageLimit), body["limit"])
	assert.Empty(t, body["records"])
}

func TestStatus(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Status").Return(agent.Status{
		Active:      true,
		CurrentTask: "idle",
		Providers:   map[string]bool{"search": true},
	})

	rec, body := do(t, newTestServer(t, d, newTestStore(t)), http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	ag := body["agent"].(map[string]any)
	assert.Equal(t, "idle", ag["current_task"])
	assert.Equal(t, true, ag["active"])
	triggers := body["triggers"].([]any)
	require.Len(t, triggers, 1)
	assert.Equal(t, scheduler.TriggerDailyCollection, triggers[0].(map[string]any)["name"])
}

func TestEnqueue(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Enqueue", mock.MatchedBy(func(task model.Task) bool {
		return task.Type == model.TaskMarketAnalysis &&
			task.Priority == model.TaskPriorityLow &&
			task.Source == model.SourceOperator &&
			task.ID == ""
	})).Return("abc")

	rec, body := do(t, newTestServer(t, d, newTestStore(t)), http.MethodPost, "/api/tasks",
		`{"id":"spoofed","type":"market-analysis","priority":"low","source":"scheduler"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "abc", body["id"])
	d.AssertExpectations(t)
}

func TestEnqueue_Invalid(t *testing.T) {
	d := &mockDispatcher{}
	h := newTestServer(t, d, newTestStore(t))

	rec, _ := do(t, h, http.MethodPost, "/api/tasks", `{"type":"mining"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/tasks", `{"type":"collection","priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/tasks", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	d.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &mockDispatcher{}, newTestStore(t))
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
