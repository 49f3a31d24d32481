package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestPackage_DefaultExcludes(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	writeTree(t, src, map[string]string{
		"backend/main.py":                  "app",
		"backend/__pycache__/main.pyc":     "bytecode",
		"frontend/build/index.html":        "<html>",
		"frontend/node_modules/react/x.js": "js",
		"node_modules/left-pad/index.js":   "js",
		".git/HEAD":                        "ref",
		".github/workflows/ci.yml":         "ci",
		"env/bin/python":                   "venv",
		".tridyme-config.json":             "{}",
		".tridyme-secrets.json":            "{}",
		".env":                             "RENDER_TOKEN=rnd_from_dotenv",
		".env.production":                  "GCP_PROJECT=p1",
		"backend/.env":                     "SECRET=1",
		"render.yaml":                      "services: []",
	})

	res, err := Package(Options{Source: src, WorkDir: work, Name: "demo"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(work, "demo.zip"), res.Path)
	assert.Equal(t, []string{
		".tridyme-config.json",
		"backend/main.py",
		"frontend/build/index.html",
		"render.yaml",
	}, zipEntries(t, res.Path))
	assert.Equal(t, 4, res.Files)

	_, err = os.Stat(filepath.Join(work, "staging"))
	assert.True(t, os.IsNotExist(err), "staging directory must be removed")
}

func TestPackage_DeployIgnore(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	writeTree(t, src, map[string]string{
		"backend/main.py":    "app",
		"backend/tests/t.py": "test",
		"docs/readme.md":     "docs",
		"docs/keep.md":       "keep",
		IgnoreFileName:       "# comment\nbackend/tests\ndocs\n!docs/keep.md\n",
	})

	res, err := Package(Options{Source: src, WorkDir: work, Name: "demo"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		IgnoreFileName,
		"backend/main.py",
		"docs/keep.md",
	}, zipEntries(t, res.Path))
}

func TestPackage_ExtraExcludes(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":   "a",
		"big.bin": "b",
	})

	res, err := Package(Options{Source: src, WorkDir: work, Name: "demo", Exclude: []string{"*.bin"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, zipEntries(t, res.Path))
}

func TestPackage_WorkDirInsideSourceIsSkipped(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"main.py": "app"})
	work := filepath.Join(src, ".work")
	require.NoError(t, os.MkdirAll(work, 0o755))

	res, err := Package(Options{Source: src, WorkDir: work, Name: "demo", Exclude: []string{".work"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, zipEntries(t, res.Path))
}

func TestPackage_RequiresName(t *testing.T) {
	_, err := Package(Options{Source: t.TempDir(), WorkDir: t.TempDir()})
	assert.Error(t, err)
}

func TestPackage_InvalidPattern(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{IgnoreFileName: "[\n"})
	_, err := Package(Options{Source: src, WorkDir: t.TempDir(), Name: "demo"})
	assert.Error(t, err)
}
