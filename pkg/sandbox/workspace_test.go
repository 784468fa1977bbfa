package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeWorkspaceWritesFilenameAndFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{"data/input.csv": []byte("a,b\n1,2\n")}

	require.NoError(t, materializeWorkspace(dir, "main.py", []byte("print(1)"), files))

	code, err := os.ReadFile(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(code))

	data, err := os.ReadFile(filepath.Join(dir, "data/input.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestCollectOutputFilesExcludesInputs(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{"input.txt": []byte("in")}
	require.NoError(t, materializeWorkspace(dir, "main.py", []byte("code"), files))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result.json"), []byte(`{"ok":true}`), 0o600))

	outputs, err := collectOutputFiles(dir, inputSet("main.py", files))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, `{"ok":true}`, string(outputs["result.json"]))
}

func TestInputSetIncludesFilenameAndFileKeys(t *testing.T) {
	set := inputSet("main.py", map[string][]byte{"a.txt": nil, "b.txt": nil})
	assert.Len(t, set, 3)
	_, ok := set["main.py"]
	assert.True(t, ok)
}
