package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/resilience"
)

func TestSQLite_DLQ_EnqueueAndDequeue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := resilience.DLQEntry{
		ID:           "dlq-1",
		BusinessID:   "biz-1",
		URL:          "https://acme.example.com",
		Stage:        "crawl",
		Error:        "503 Service Unavailable",
		ErrorType:    "transient",
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  now.Add(-time.Minute), // already past, eligible
		CreatedAt:    now,
		LastFailedAt: now,
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-1", entries[0].ID)
	assert.Equal(t, "https://acme.example.com", entries[0].URL)
	assert.Equal(t, "crawl", entries[0].Stage)
	assert.Equal(t, "transient", entries[0].ErrorType)
	assert.Equal(t, 0, entries[0].RetryCount)
}

func TestSQLite_DLQ_EnqueueGeneratesID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		URL:          "https://acme.example.com",
		Error:        "timeout",
		ErrorType:    "transient",
		MaxRetries:   3,
		NextRetryAt:  now,
		CreatedAt:    now,
		LastFailedAt: now,
	}))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
}

func TestSQLite_DLQ_EnqueueSameIDReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := resilience.DLQEntry{
		ID: "dlq-1", URL: "https://acme.example.com",
		Error: "first failure", ErrorType: "transient",
		MaxRetries: 3, NextRetryAt: now, CreatedAt: now, LastFailedAt: now,
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entry.Error = "second failure"
	entry.RetryCount = 1
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second failure", entries[0].Error)
	assert.Equal(t, 1, entries[0].RetryCount)
}

func TestSQLite_DLQ_DequeueFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	mk := func(id, errType string, nextRetry time.Time, retries int) resilience.DLQEntry {
		return resilience.DLQEntry{
			ID: id, URL: "https://" + id + ".example.com",
			Error: "boom", ErrorType: errType,
			RetryCount: retries, MaxRetries: 3,
			NextRetryAt: nextRetry, CreatedAt: now, LastFailedAt: now,
		}
	}

	require.NoError(t, st.EnqueueDLQ(ctx, mk("due-transient", "transient", now.Add(-time.Minute), 0)))
	require.NoError(t, st.EnqueueDLQ(ctx, mk("future-transient", "transient", now.Add(time.Hour), 0)))
	require.NoError(t, st.EnqueueDLQ(ctx, mk("permanent", "permanent", now.Add(-time.Minute), 0)))
	require.NoError(t, st.EnqueueDLQ(ctx, mk("exhausted", "transient", now.Add(-time.Minute), 3)))

	// Exhausted entries are never eligible.
	all, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	due, err := st.DequeueDLQ(ctx, resilience.DLQFilter{DueOnly: true})
	require.NoError(t, err)
	assert.Len(t, due, 2)

	transient, err := st.DequeueDLQ(ctx, resilience.DLQFilter{DueOnly: true, ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, transient, 1)
	assert.Equal(t, "due-transient", transient[0].ID)

	limited, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_DLQ_IncrementRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID: "dlq-1", URL: "https://acme.example.com",
		Error: "boom", ErrorType: "transient",
		MaxRetries: 3, NextRetryAt: now.Add(-time.Minute), CreatedAt: now, LastFailedAt: now,
	}))

	next := now.Add(2 * time.Hour)
	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-1", next, "still failing"))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "still failing", entries[0].Error)
	assert.WithinDuration(t, next, entries[0].NextRetryAt, time.Second)

	assert.Error(t, st.IncrementDLQRetry(ctx, "nonexistent", next, "x"))
}

func TestSQLite_DLQ_RemoveAndCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	now := time.Now().UTC()
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID: "dlq-1", URL: "https://acme.example.com",
		Error: "boom", ErrorType: "transient",
		MaxRetries: 3, NextRetryAt: now, CreatedAt: now, LastFailedAt: now,
	}))

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, st.RemoveDLQ(ctx, "dlq-1"))

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Removing a missing entry is not an error.
	require.NoError(t, st.RemoveDLQ(ctx, "dlq-1"))
}
