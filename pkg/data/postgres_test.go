//go:build integration

package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("asdscreen"),
		postgres.WithUsername("asdscreen"),
		postgres.WithPassword("asdscreen"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, driverPostgres, s.Driver())

	require.NoError(t, s.SaveEvent(ctx, &Event{ID: "a", Filename: "a.xlsx", Status: StatusOK, Rows: 3, HighRisk: 1, CreatedAt: 1}))
	require.NoError(t, s.SaveEvent(ctx, &Event{ID: "b", Filename: "b.xls", Status: StatusFailed, Message: "Prediction failed", CreatedAt: 2}))

	list, err := s.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "Prediction failed", list[0].Message)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Total: 2, OK: 1, Failed: 1, Rows: 3, HighRisk: 1}, sum)

	// reopening applies no migrations twice
	s2, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}
