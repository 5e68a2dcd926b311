// internal/store/store_test.go
package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-commit-tracker/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSet() model.MappingSet {
	checked := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return model.MappingSet{
		"111": {
			ChannelID:     "111",
			Owner:         "facebook",
			Repo:          "react",
			Branch:        "main",
			LastCommitSHA: model.StringPtr("abc123"),
			LastCheckedAt: &checked,
			LinkedAt:      &checked,
		},
		"222": {
			ChannelID: "222",
			Owner:     "golang",
			Repo:      "go",
			Branch:    "master",
		},
	}
}

// testStoreContract exercises the behaviour every driver must share.
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := sampleSet()
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	react := got["111"]
	assert.Equal(t, "111", react.ChannelID)
	assert.Equal(t, "facebook", react.Owner)
	assert.Equal(t, "react", react.Repo)
	assert.Equal(t, "main", react.Branch)
	assert.Equal(t, "abc123", react.Watermark())
	require.NotNil(t, react.LastCheckedAt)
	assert.True(t, want["111"].LastCheckedAt.Equal(*react.LastCheckedAt))

	goRepo := got["222"]
	assert.Nil(t, goRepo.LastCommitSHA)
	assert.Nil(t, goRepo.LastCheckedAt)

	// Saving replaces the set wholesale.
	delete(want, "111")
	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "222")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "redis"}, discardLogger())
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "m.db")}, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &SQLiteStore{}, s)
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "mappings.db"), discardLogger())
	require.NoError(t, err)
	defer s.Close()

	testStoreContract(t, s)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mappings.db")

	s, err := OpenSQLite(ctx, path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleSet()))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, discardLogger())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
