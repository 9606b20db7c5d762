package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/koi-prep/internal/models"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql": {Data: []byte("SELECT 2")},
		"001_a.sql": {Data: []byte("SELECT 1")},
		"003_c.sql": {Data: []byte("SELECT 3")},
		"README.md": {Data: []byte("notes")},
		"sub/x.sql": {Data: []byte("SELECT 4")},
	}

	pending, err := PendingMigrations(fsys, map[string]bool{"002_b.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "003_c.sql"}, pending)
}

func TestEmbeddedMigrations(t *testing.T) {
	fsys, err := Migrations("")
	require.NoError(t, err)

	pending, err := PendingMigrations(fsys, nil)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "001_gateway_calls.sql", pending[0])
}

func TestBuildListCallsQuery(t *testing.T) {
	failed := true

	tests := []struct {
		name     string
		filter   CallFilter
		contains []string
		args     []interface{}
	}{
		{
			name:     "defaults",
			filter:   CallFilter{},
			contains: []string{"LIMIT $1"},
			args:     []interface{}{DefaultListLimit},
		},
		{
			name:     "operation and failures",
			filter:   CallFilter{Operation: models.OpJudgeCode, Failed: &failed, Limit: 10, Offset: 20},
			contains: []string{"operation = $1", "success = $2", "LIMIT $3", "OFFSET $4"},
			args:     []interface{}{"judge_code", false, 10, 20},
		},
		{
			name:     "limit is capped",
			filter:   CallFilter{Limit: 100000},
			contains: []string{"LIMIT $1"},
			args:     []interface{}{MaxListLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListCallsQuery(tt.filter)
			for _, c := range tt.contains {
				assert.Contains(t, query, c)
			}
			assert.True(t, strings.Contains(query, "ORDER BY created_at DESC"))
			assert.Equal(t, tt.args, args)
		})
	}
}

// TestPostgresLedger runs against a real database when TEST_DATABASE_DSN is set
func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	defer repo.Close()

	fsys, err := Migrations("")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, repo.Pool(), fsys))
	// a second run finds nothing to apply
	require.NoError(t, RunMigrations(ctx, repo.Pool(), fsys))

	call := &models.GatewayCall{
		Operation:  models.OpGenerateAnalysis,
		Model:      "test-model",
		Attempts:   2,
		DurationMS: 1500,
		Success:    false,
		Error:      "upstream returned 502",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.RecordCall(ctx, call))
	assert.NotZero(t, call.ID)

	failed := true
	calls, err := repo.ListCalls(ctx, CallFilter{Operation: models.OpGenerateAnalysis, Failed: &failed, Limit: 1})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, call.ID, calls[0].ID)
	assert.Equal(t, "upstream returned 502", calls[0].Error)

	stats, err := repo.CallStats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stats)
}
