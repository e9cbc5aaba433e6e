package batch

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/polydraw/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = testutil.WriteFile(t, dir, name, []byte("data"))
	}
	return paths
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/a/b/photo.polygon.json", SidecarPath("/a/b/photo.png"))
	assert.Equal(t, "scan.v2.polygon.json", SidecarPath("scan.v2.tiff"))
	assert.Equal(t, "noext.polygon.json", SidecarPath("noext"))
}

func TestDiscoverImageFiles_EmptyArgs(t *testing.T) {
	files, err := discoverImageFiles([]string{}, false, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverImageFiles_DefaultsToSupportedImages(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, "b.png", "a.jpg", "notes.txt", "a.polygon.json", "c.webp")

	files, err := discoverImageFiles([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{paths[1], paths[0], paths[4]}, files)
}

func TestDiscoverImageFiles_ExplicitFilesKeepOrder(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, "z.png", "a.png")

	files, err := discoverImageFiles([]string{paths[0], paths[1], paths[0]}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{paths[0], paths[1]}, files)
}

func TestDiscoverImageFiles_Recursive(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, "root.png", filepath.Join("sub", "nested.png"), filepath.Join("sub", "deep", "x.png"))

	flat, err := discoverImageFiles([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{paths[0]}, flat)

	all, err := discoverImageFiles([]string{dir}, true, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.ElementsMatch(t, paths, all)
}

func TestDiscoverImageFiles_Patterns(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, "keep.png", "skip_me.png", "photo.jpg")

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{"include png", []string{"*.png"}, nil, []string{paths[0], paths[1]}},
		{"exclude prefix", nil, []string{"skip_*"}, []string{paths[0], paths[2]}},
		{"exclude wins", []string{"*.png"}, []string{"skip_*"}, []string{paths[0]}},
		{"nothing matches", []string{"*.gif"}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := discoverImageFiles([]string{dir}, false, tt.include, tt.exclude)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, files)
		})
	}
}

func TestDiscoverImageFiles_MissingPath(t *testing.T) {
	_, err := discoverImageFiles([]string{filepath.Join(t.TempDir(), "missing")}, false, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestMatchesAnyPattern(t *testing.T) {
	assert.True(t, matchesAnyPattern("/x/y/scan_01.png", []string{"scan_*"}))
	assert.False(t, matchesAnyPattern("/x/scan/a.png", []string{"scan*"}))
	assert.False(t, matchesAnyPattern("a.png", nil))
}
