package billy

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parentfs "github.com/bcit-ltc/forge-pipeline/fs"
)

func filesystems(t *testing.T) map[string]parentfs.Filesystem {
	t.Helper()
	return map[string]parentfs.Filesystem{
		"memory": NewInMemoryFS(),
		"os":     NewOSFS(t.TempDir()),
	}
}

func TestChartDirectoryLifecycle(t *testing.T) {
	for name, fsys := range filesystems(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, fsys.MkdirAll("apps/web/templates", 0o755))
			require.NoError(t, fsys.WriteFile("apps/web/Chart.yaml", []byte("name: web\n"), 0o644))
			require.NoError(t, fsys.WriteFile("apps/web/templates/svc.yaml", []byte("kind: Service\n"), 0o644))

			info, err := fsys.Stat("apps/web/templates")
			require.NoError(t, err)
			assert.True(t, info.IsDir())

			entries, err := fsys.ReadDir("apps/web")
			require.NoError(t, err)
			assert.Len(t, entries, 2)

			var walked []string
			require.NoError(t, fsys.Walk("apps/web", func(path string, info os.FileInfo, err error) error {
				require.NoError(t, err)
				if !info.IsDir() {
					walked = append(walked, path)
				}
				return nil
			}))
			assert.Len(t, walked, 2)

			require.NoError(t, fsys.Rename("apps/web/Chart.yaml", "apps/web/Chart.old"))
			ok, err := fsys.Exists("apps/web/Chart.yaml")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, fsys.Remove("apps/web/Chart.old"))
			require.NoError(t, fsys.RemoveAll("apps"))
			ok, err = fsys.Exists("apps")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileHandles(t *testing.T) {
	for name, fsys := range filesystems(t) {
		t.Run(name, func(t *testing.T) {
			f, err := fsys.Create("values.yaml")
			require.NoError(t, err)
			_, err = f.Write([]byte("image:\n  tag: 1.2.3\n"))
			require.NoError(t, err)
			require.NoError(t, f.Close())

			f, err = fsys.OpenFile("values.yaml", os.O_RDONLY, 0)
			require.NoError(t, err)
			defer f.Close()

			info, err := f.Stat()
			require.NoError(t, err)
			assert.Equal(t, int64(20), info.Size())

			buf := make([]byte, 5)
			_, err = f.ReadAt(buf, 9)
			require.NoError(t, err)
			assert.Equal(t, "tag: ", string(buf))

			_, err = f.Seek(0, io.SeekStart)
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, "image:\n  tag: 1.2.3\n", string(data))

			n, err := f.Read(buf)
			assert.Zero(t, n)
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestErrors(t *testing.T) {
	fsys := NewInMemoryFS()

	_, err := fsys.ReadFile("missing.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), `"missing.yaml"`)

	_, err = fsys.Open("missing.yaml")
	assert.Error(t, err)

	ok, err := fsys.Exists("missing.yaml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTempDir(t *testing.T) {
	fsys := NewInMemoryFS()
	dir, err := fsys.TempDir("", "chart-")
	require.NoError(t, err)
	assert.NotEmpty(t, dir)

	ok, err := fsys.Exists(dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSub(t *testing.T) {
	base := NewInMemoryFS()
	require.NoError(t, base.WriteFile("apps/web/Chart.yaml", []byte("name: web"), 0o644))

	sub, err := base.Sub("apps/web")
	require.NoError(t, err)

	data, err := sub.ReadFile("Chart.yaml")
	require.NoError(t, err)
	assert.Equal(t, "name: web", string(data))

	require.NoError(t, sub.WriteFile("values.yaml", []byte("image: {}"), 0o644))
	ok, err := base.Exists("apps/web/values.yaml")
	require.NoError(t, err)
	assert.True(t, ok)
}
