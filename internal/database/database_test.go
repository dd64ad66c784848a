package database

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReplaceRangeAndQuery(t *testing.T) {
	store := NewTranscriptStore(openTestDB(t))

	base := time.Date(2025, 12, 26, 14, 11, 0, 0, time.UTC)
	words := []Transcript{
		{TS: base, Speaker: 1, Word: "good"},
		{TS: base.Add(400 * time.Millisecond), Speaker: 1, Word: "morning"},
		{TS: base.Add(2 * time.Second), Speaker: 2, Word: "thanks"},
	}
	require.NoError(t, store.ReplaceRange(base, base.Add(time.Minute), words))

	got, err := store.Query(base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "good", got[0].Word)
	assert.Equal(t, "thanks", got[2].Word)
	assert.Equal(t, 2, got[2].Speaker)
}

func TestReplaceRangeIsIdempotent(t *testing.T) {
	store := NewTranscriptStore(openTestDB(t))

	base := time.Date(2025, 12, 26, 14, 11, 0, 0, time.UTC)
	words := []Transcript{{TS: base, Speaker: 1, Word: "hello"}}

	require.NoError(t, store.ReplaceRange(base, base.Add(time.Minute), words))
	require.NoError(t, store.ReplaceRange(base, base.Add(time.Minute), words))

	got, err := store.Query(base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestQueryWindowing(t *testing.T) {
	store := NewTranscriptStore(openTestDB(t))

	base := time.Date(2025, 12, 26, 14, 0, 0, 0, time.UTC)
	var words []Transcript
	for i := 0; i < 10; i++ {
		words = append(words, Transcript{TS: base.Add(time.Duration(i) * time.Minute), Speaker: 1, Word: "w"})
	}
	require.NoError(t, store.ReplaceRange(base, base.Add(time.Hour), words))

	got, err := store.Query(base.Add(2*time.Minute), base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
