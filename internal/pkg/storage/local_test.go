package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchivePutExists(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLocalArchive(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := a.Exists(ctx, "reconcile/2026/report.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Put(ctx, "reconcile/2026/report.txt", strings.NewReader("all good\n"), "text/plain"))

	ok, err = a.Exists(ctx, "reconcile/2026/report.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, "reconcile", "2026", "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "all good\n", string(data))
	assert.True(t, strings.HasPrefix(a.URL("reconcile/2026/report.txt"), "file://"))
}

func TestLocalArchiveRejectsEscapingKeys(t *testing.T) {
	a, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	err = a.Put(context.Background(), "../outside.txt", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	a, err := New(Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalArchive{}, a)

	_, err = New(Config{Backend: "s3"})
	assert.Error(t, err)
}
