//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sells-group/prospector/internal/db"
	"github.com/sells-group/prospector/internal/model"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "prospector",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/prospector?sslmode=disable", host, port.Port())
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	s, err := NewPostgres(ctx, dsn, db.PoolConfig{MaxConns: 4}, Options{UniqueExternalKey: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(ctx))

	r := testRecord("https://x.example/in/ann", baseTime)
	r.Title = "Managing Director"
	require.NoError(t, s.Insert(ctx, r))
	require.Error(t, s.Insert(ctx, testRecord("https://x.example/in/ann", baseTime)))

	require.NoError(t, s.UpdateByKey(ctx, r.ExternalKey, Fields{ColPhone: model.StringPtr("+1555")}))

	got, err := s.FindByKey(ctx, r.ExternalKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "+1555", model.Deref(got.Phone))

	n, err := s.BulkAssign(ctx, RecordFilter{HasPhone: true}, Assignment{
		Column: ColPriority,
		Cases:  []Case{{When: Condition{Column: ColTitle, Op: MatchContains, Values: []string{"director"}}, Then: "High"}},
		Else:   "Low",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := s.DeleteByIDs(ctx, []string{got.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
