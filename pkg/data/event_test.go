package data

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveEvent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := &Event{
		Filename:   "kids.xlsx",
		Status:     StatusOK,
		Rows:       3,
		HighRisk:   1,
		DurationMS: 12,
	}
	require.NoError(t, s.SaveEvent(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.NotZero(t, e.CreatedAt)

	list, err := s.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e, list[0])
}

func TestSaveEvent_Invalid(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.SaveEvent(ctx, nil))
	assert.Error(t, s.SaveEvent(ctx, &Event{Filename: "a.xlsx", Status: "weird"}))

	e := &Event{ID: "dup", Filename: "a.xlsx", Status: StatusOK}
	require.NoError(t, s.SaveEvent(ctx, e))
	assert.Error(t, s.SaveEvent(ctx, e), "duplicate id")
}

func TestListEvents_OrderAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.SaveEvent(ctx, &Event{
			ID:        fmt.Sprintf("e%d", i),
			Filename:  fmt.Sprintf("f%d.xlsx", i),
			Status:    StatusOK,
			CreatedAt: int64(i * 1000),
		}))
	}

	list, err := s.ListEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "e5", list[0].ID)
	assert.Equal(t, "e4", list[1].ID)
	assert.Equal(t, "e3", list[2].ID)

	list, err = s.ListEvents(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	list, err = s.ListEvents(ctx, MaxListLimit+1)
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestListEvents_Empty(t *testing.T) {
	s := setupTestStore(t)
	list, err := s.ListEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSummary(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Summary{}, sum)

	events := []*Event{
		{Filename: "a.xlsx", Status: StatusOK, Rows: 4, HighRisk: 2},
		{Filename: "b.xlsx", Status: StatusOK, Rows: 6, HighRisk: 0},
		{Filename: "c.csv", Status: StatusInvalidFormat, Message: "Invalid file format"},
		{Filename: "d.xlsx", Status: StatusMissingColumns, Message: "Missing columns: ['A3']"},
		{Filename: "e.xlsx", Status: StatusFailed, Message: "Prediction failed"},
	}
	for _, e := range events {
		require.NoError(t, s.SaveEvent(ctx, e))
	}

	sum, err = s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Total: 5, OK: 2, Failed: 3, Rows: 10, HighRisk: 2}, sum)
}
