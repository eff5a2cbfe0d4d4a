package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndRecent(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := store.Add(ctx, Record{
			TaskID:     name + "-id",
			Direction:  "download",
			Name:       name,
			Source:     "smb://host/share/" + name,
			Dest:       "/dl/" + name,
			Outcome:    "ok",
			Bytes:      int64(i * 10),
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		})
		require.NoError(t, err)
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, "c.txt", recent[0].Name)
	assert.Equal(t, "b.txt", recent[1].Name)
	assert.True(t, recent[0].Succeeded())
	assert.Equal(t, int64(20), recent[0].Bytes)
	assert.True(t, recent[0].FinishedAt.Equal(base.Add(2*time.Minute+time.Second)))
}

func TestFailedRecord(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	_, err = store.Add(ctx, Record{
		TaskID:     "t1",
		Direction:  "upload",
		Name:       "report.csv",
		Source:     "/home/u/report.csv",
		Dest:       "smb://host/share/report.csv",
		Outcome:    "already_exists",
		Error:      "upload report.csv: already_exists",
		StartedAt:  now,
		FinishedAt: now,
	})
	require.NoError(t, err)

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Succeeded())
	assert.Equal(t, "already_exists", recent[0].Outcome)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Add(context.Background(), Record{TaskID: "x", Direction: "download", Name: "x", Outcome: "ok",
		StartedAt: time.Now(), FinishedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	recent, err := reopened.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
