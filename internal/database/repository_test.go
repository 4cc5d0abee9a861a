package database

import (
	"context"
	"os"
	"testing"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ persist.Adapter = (*Repository)(nil)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "clipwave",
		Password: "secret",
		DBName:   "clipwave",
		SSLMode:  "disable",
		MaxConns: 10,
		MinConns: 2,
	})

	assert.Equal(t, "host=db port=5432 user=clipwave password=secret dbname=clipwave sslmode=disable pool_max_conns=10 pool_min_conns=2", dsn)
}

func TestRepository_State(t *testing.T) {
	if os.Getenv("CLIPWAVE_TEST_DATABASE") == "" {
		t.Skip("Skipping integration test - requires database connection")
	}

	db, err := New(config.DatabaseConfig{
		Host:     os.Getenv("CLIPWAVE_TEST_DATABASE"),
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "clipwave_test",
		SSLMode:  "disable",
		MaxConns: 2,
		MinConns: 1,
	})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewRepository(db)
	name := persist.StorageKey("integration-user")
	defer repo.Delete(ctx, name)

	_, err = repo.Load(ctx, name)
	assert.ErrorIs(t, err, persist.ErrNotFound)

	require.NoError(t, repo.Save(ctx, name, []byte(`{"projects":[]}`)))
	require.NoError(t, repo.Save(ctx, name, []byte(`{"projects":[],"current_project_id":""}`)))

	data, err := repo.Load(ctx, name)
	require.NoError(t, err)
	assert.JSONEq(t, `{"projects":[],"current_project_id":""}`, string(data))

	assert.Error(t, repo.Save(ctx, name, []byte("not json")))
}
