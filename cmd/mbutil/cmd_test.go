package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestImportExportMetadata(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "tiles")
	writeFile(t, filepath.Join(input, "0", "0", "0.png"), pngHeader)
	writeFile(t, filepath.Join(input, "1", "1", "0.png"), pngHeader)

	container := filepath.Join(dir, "world.mbtiles")
	_, err := execute(t, "import", input, container, "--name", "world", "--batch-size", "1")
	require.NoError(t, err)

	out, err := execute(t, "metadata", container)
	require.NoError(t, err)
	assert.Contains(t, out, "name: world\n")
	assert.Contains(t, out, "format: png\n")
	assert.Contains(t, out, "maxzoom: 1\n")

	out, err = execute(t, "metadata", container, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "world"`)

	output := filepath.Join(dir, "out")
	_, err = execute(t, "export", container, output, "--scheme", "tms")
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(output, "1", "1", "1.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, b)
}

func TestImportDefaultOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "tiles")
	writeFile(t, filepath.Join(input, "0", "0", "0.png"), pngHeader)

	_, err := execute(t, "import", input+string(filepath.Separator))
	require.NoError(t, err)
	assert.FileExists(t, input+".mbtiles")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "tiles")
	writeFile(t, filepath.Join(input, "0", "0", "0.jpg"), []byte("\xff\xd8\xff\xe0"))
	cfg := filepath.Join(dir, "mbutil.toml")
	writeFile(t, cfg, []byte("image_format = \"jpg\"\nname = \"from config\"\n"))

	container := filepath.Join(dir, "tiles.mbtiles")
	_, err := execute(t, "--config", cfg, "import", input, container)
	require.NoError(t, err)

	out, err := execute(t, "metadata", container)
	require.NoError(t, err)
	assert.Contains(t, out, "name: from config\n")
	assert.Contains(t, out, "format: jpg\n")
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "import")
	assert.Error(t, err)

	_, err = execute(t, "import", filepath.Join(dir, "missing"), filepath.Join(dir, "x.mbtiles"))
	assert.Error(t, err)

	_, err = execute(t, "--scheme", "ags", "metadata", filepath.Join(dir, "x.mbtiles"))
	assert.Error(t, err)

	_, err = execute(t, "metadata", filepath.Join(dir, "missing.mbtiles"))
	assert.Error(t, err)
}

func TestErrorLeftToCaller(t *testing.T) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"import", filepath.Join(t.TempDir(), "missing")})
	require.Error(t, cmd.Execute())
	assert.Empty(t, errOut.String())
	assert.Empty(t, out.String())
}
