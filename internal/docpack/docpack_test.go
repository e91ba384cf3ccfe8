package docpack

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		code     PathErrorCode
	}{
		{"simple", "enrich/config.json", "enrich/config.json", ""},
		{"dot prefix", "./scenarios/plan.json", "scenarios/plan.json", ""},
		{"double slash", "a//b", "a/b", ""},
		{"empty", "", "", ErrCodeEmptyPath},
		{"root", ".", "", ErrCodeEmptyPath},
		{"absolute", "/etc/passwd", "", ErrCodeAbsolutePath},
		{"parent", "../x.json", "", ErrCodeParentTraversal},
		{"inner parent", "a/../b.json", "", ErrCodeParentTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanRel(tt.input)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, got)
				return
			}
			require.Error(t, err)
			var pe *PathError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
			assert.True(t, IsPathError(err))
		})
	}
}

func TestOpenRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Open(file)
	require.Error(t, err)

	_, err = Open(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestWriteAndReadJSON(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	in := map[string]any{"b": 1, "a": "x"}
	require.NoError(t, root.WriteJSON("enrich/out.json", in))

	data, err := root.ReadFile("enrich/out.json")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"x\",\n  \"b\": 1\n}\n", string(data))

	var out map[string]any
	require.NoError(t, root.ReadJSON("enrich/out.json", &out))
	assert.Equal(t, "x", out["a"])

	entries, err := os.ReadDir(root.Path("enrich"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadJSONErrors(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	var v map[string]any
	err = root.ReadJSON("missing.json", &v)
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
	assert.Contains(t, err.Error(), "missing.json")

	require.NoError(t, root.WriteFile("bad.json", []byte("{")))
	err = root.ReadJSON("bad.json", &v)
	require.Error(t, err)
	assert.False(t, IsNotExist(err))
	assert.Contains(t, err.Error(), "parse bad.json")
}

func TestWriteFileRejectsTraversal(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	err = root.WriteFile("../escape.json", []byte("{}"))
	require.Error(t, err)
	assert.True(t, IsPathError(err))
}

func TestAppendLine(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, root.AppendLine(HistoryPath, []byte(`{"step":"validate"}`)))
	require.NoError(t, root.AppendLine(HistoryPath, []byte("{\"step\":\"plan\"}\n")))

	data, err := root.ReadFile(HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, "{\"step\":\"validate\"}\n{\"step\":\"plan\"}\n", string(data))
}

func TestExistsAndModTime(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	assert.False(t, root.Exists("a.txt"))
	_, ok := root.ModTime("a.txt")
	assert.False(t, ok)

	require.NoError(t, root.WriteFile("a.txt", []byte("x")))
	assert.True(t, root.Exists("a.txt"))

	stamp := time.Unix(1700000000, 0)
	require.NoError(t, os.Chtimes(root.Path("a.txt"), stamp, stamp))
	mt, ok := root.ModTime("a.txt")
	require.True(t, ok)
	assert.Equal(t, stamp.UnixNano(), mt)
}

func TestNowMillis(t *testing.T) {
	assert.Positive(t, NowMillis(nil))
	assert.Equal(t, int64(1500), EpochMillis(time.UnixMilli(1500)))
}

func TestLoadManifest(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = root.LoadManifest()
	assert.True(t, IsNotExist(err))

	require.NoError(t, root.WriteFile(ManifestPath, []byte(`{"binary_name": " ls ", "binary_path": "/bin/ls", "created_at": "x"}`)))
	m, err := root.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, "ls", m.BinaryName)
	assert.Equal(t, "/bin/ls", m.BinaryPath)
	assert.Equal(t, "man/ls.1", ManPagePath(m.BinaryName))

	require.NoError(t, root.WriteFile(ManifestPath, []byte(`{"binary_path": "/bin/ls"}`)))
	_, err = root.LoadManifest()
	assert.ErrorContains(t, err, "binary_name is empty")
}
