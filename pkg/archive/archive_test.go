package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndExtractAll(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "Foo.so"), []byte("foo"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "hooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "hooks", "post-install.tengo"), []byte("x := 1"), 0o644))

	am := NewManager()
	archivePath := filepath.Join(t.TempDir(), "foo-1.0.0.tar.gz")
	require.NoError(t, am.Create(ctx, src, archivePath))
	assert.FileExists(t, archivePath)

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, am.ExtractAll(ctx, archivePath, dest))

	got, err := os.ReadFile(filepath.Join(dest, "lib", "Foo.so"))
	require.NoError(t, err)
	assert.Equal(t, "foo", string(got))
	assert.FileExists(t, filepath.Join(dest, "hooks", "post-install.tengo"))
}

func TestExtractAll_Cancelled(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.so"), []byte("a"), 0o644))

	am := NewManager()
	archivePath := filepath.Join(t.TempDir(), "a.tar.gz")
	require.NoError(t, am.Create(context.Background(), src, archivePath))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, am.ExtractAll(ctx, archivePath, t.TempDir()))
}

func TestExtractAll_MissingArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.tar.gz")
	assert.Error(t, NewManager().ExtractAll(context.Background(), path, t.TempDir()))
}

func TestWithinDir(t *testing.T) {
	base := filepath.Join(string(os.PathSeparator), "ext", "foo")
	assert.True(t, withinDir(base, filepath.Join(base, "lib", "a.so")))
	assert.False(t, withinDir(base, filepath.Join(base, "..", "evil")))
	assert.False(t, withinDir(base, filepath.Join(base, "..")))
}
