package python

import (
	"testing"

	"github.com/stretchr/testify/require"

	"launchcore/internal/importgraph"
)

func buildGraph(t *testing.T, files map[string]string) *importgraph.FileGraph {
	t.Helper()
	p := New()
	var names []string
	for name := range files {
		names = append(names, name)
	}
	read := func(path string) ([]byte, error) { return []byte(files[path]), nil }
	parserFor := func(path string) importgraph.LanguageParser { return p }
	return importgraph.Build(names, read, parserFor)
}

func TestAbsoluteImportResolves(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"pkg/__init__.py": ``,
		"pkg/a.py":        `x = 1`,
		"pkg/b.py":        "import pkg.a",
	})
	require.False(t, g.AnyUnparsable())
	reached := g.ReverseBFS([]string{"pkg/a.py"})
	require.True(t, reached["pkg/b.py"])
}

func TestRelativeFromImportResolves(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"pkg/__init__.py": ``,
		"pkg/a.py":        `x = 1`,
		"pkg/b.py":        "from . import a",
	})
	require.False(t, g.AnyUnparsable())
	reached := g.ReverseBFS([]string{"pkg/a.py"})
	require.True(t, reached["pkg/b.py"])
}

func TestUnresolvedModuleDropped(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"pkg/b.py": "import numpy",
	})
	require.False(t, g.AnyUnparsable())
	require.Equal(t, map[string]bool{"pkg/b.py": true}, g.ReverseBFS([]string{"pkg/b.py"}))
}

func TestIsTestFileConventions(t *testing.T) {
	p := New()
	require.True(t, p.IsTestFile("pkg/test_a.py"))
	require.True(t, p.IsTestFile("pkg/a_test.py"))
	require.True(t, p.IsTestFile("tests/a.py"))
	require.False(t, p.IsTestFile("pkg/a.py"))
}
