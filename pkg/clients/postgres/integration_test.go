//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebites/bytebites-core/internal/testutil/containers"
)

func TestIntegration_MigrateAndQuery(t *testing.T) {
	ctx := context.Background()
	pg, err := containers.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Container.Terminate(ctx) })

	c, err := NewClient(ctx, Config{URI: pg.ConnString})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Health(ctx))

	require.NoError(t, c.Migrate(ctx,
		`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)`))
	_, err = c.Exec(ctx, `INSERT INTO kv (k, v) VALUES ($1, $2)`, "a", "1")
	require.NoError(t, err)

	_, err = c.Exec(ctx, `INSERT INTO kv (k, v) VALUES ($1, $2)`, "a", "2")
	assert.True(t, IsUniqueViolation(err))

	var v string
	require.NoError(t, c.QueryRow(ctx, `SELECT v FROM kv WHERE k = $1`, "a").Scan(&v))
	assert.Equal(t, "1", v)
}
