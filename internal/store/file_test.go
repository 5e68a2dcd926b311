// internal/store/file_test.go
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "data", "channelMappings.json"), discardLogger())

	testStoreContract(t, s)
}

func TestFileStore_CreatesDirectoryOnFirstUse(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s := NewFileStore(filepath.Join(dir, "channelMappings.json"), discardLogger())

	_, err := s.Load(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStore_WritesHumanReadableJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channelMappings.json")
	s := NewFileStore(path, discardLogger())

	require.NoError(t, s.Save(context.Background(), sampleSet()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "facebook", raw["111"]["owner"])
	assert.Equal(t, "abc123", raw["111"]["lastCommitSha"])
	assert.Nil(t, raw["222"]["lastCommitSha"])
	assert.Nil(t, raw["222"]["lastChecked"])
	assert.NotContains(t, raw["111"], "ChannelID")
	assert.Contains(t, string(data), "\n  \"111\": {")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestFileStore_ReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channelMappings.json")
	legacy := `{
  "123456789": {
    "owner": "facebook",
    "repo": "react",
    "branch": "main",
    "lastChecked": "2024-01-02T03:04:05.678Z",
    "lastCommitSha": "deadbeef"
  },
  "987654321": {
    "owner": "golang",
    "repo": "go",
    "branch": "master",
    "lastChecked": null,
    "lastCommitSha": null
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	set, err := NewFileStore(path, discardLogger()).Load(context.Background())

	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, "123456789", set["123456789"].ChannelID)
	assert.Equal(t, "deadbeef", set["123456789"].Watermark())
	require.NotNil(t, set["123456789"].LastCheckedAt)
	assert.Equal(t, 2024, set["123456789"].LastCheckedAt.Year())
	assert.Nil(t, set["987654321"].LastCommitSHA)
}

func TestFileStore_MovesCorruptFileAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channelMappings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := NewFileStore(path, discardLogger())

	set, err := s.Load(context.Background())

	assert.Error(t, err)
	assert.Empty(t, set)
	_, statErr := os.Stat(path + ".corrupt")
	assert.NoError(t, statErr)

	require.NoError(t, s.Save(context.Background(), sampleSet()))
	corrupt, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(corrupt))
}

func TestFileStore_FailedSaveKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channelMappings.json")
	s := NewFileStore(path, discardLogger())
	require.NoError(t, s.Save(context.Background(), sampleSet()))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// A read-only directory makes the temp file creation fail.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	err = s.Save(context.Background(), nil)

	assert.Error(t, err)
	after, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, before, after)
}
