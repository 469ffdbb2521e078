package jsts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"launchcore/internal/importgraph"
)

// buildGraph mirrors the way internal/launch/tests.go assembles a FileGraph:
// every file is read from an in-memory fixture map and routed to this
// package's parser.
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

// TestSelectionReachesOnlyDependentTest covers a package with src/a.ts,
// src/b.ts importing ./a, and __tests__/a.test.ts importing ../src/a.
// Changing src/a.ts reaches b.ts and a.test.ts, and a.test.ts is the only
// test file among them, so it is the only test selected.
func TestSelectionReachesOnlyDependentTest(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"src/a.ts":            `export const a = 1;`,
		"src/b.ts":            `import { a } from "./a";`,
		"__tests__/a.test.ts": `import { a } from "../src/a";`,
	})

	require.False(t, g.AnyUnparsable())
	require.True(t, g.IsTestFile("__tests__/a.test.ts"))
	require.False(t, g.IsTestFile("src/a.ts"))

	reached := g.ReverseBFS([]string{"src/a.ts"})
	require.True(t, reached["src/a.ts"])
	require.True(t, reached["__tests__/a.test.ts"])
	require.True(t, reached["src/b.ts"])
	require.False(t, g.IsTestFile("src/b.ts"))
}

// TestUnparsableFileIsFailSafe covers the second half of seed scenario 4:
// adding an unparsable src/broken.ts makes the whole package's test set
// the fail-safe answer, which is testselect's job to apply — here we only
// assert the FileGraph correctly reports the file as unparsable.
func TestUnparsableFileIsFailSafe(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"src/a.ts":      `export const a = 1;`,
		"src/broken.ts": `import { from "./a" this is not valid at all (((`,
	})

	require.True(t, g.AnyUnparsable())
	require.True(t, g.IsUnparsable("src/broken.ts"))
}

func TestDynamicImportAndRequireResolve(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"src/a.ts": `export const a = 1;`,
		"src/b.ts": `const a = require("./a"); async function f() { await import("./a"); }`,
	})

	reached := g.ReverseBFS([]string{"src/a.ts"})
	require.True(t, reached["src/b.ts"])
}

func TestBareSpecifierDropped(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"src/a.ts": `import React from "react"; export const a = 1;`,
	})
	require.False(t, g.AnyUnparsable())
	require.Equal(t, map[string]bool{"src/a.ts": true}, g.ReverseBFS([]string{"src/a.ts"}))
}

// TestBareSpecifierResolvesViaWorkspaceNameMap covers the case dropped by
// TestBareSpecifierDropped turning into a resolved edge once the specifier's
// package name is in the workspace name map passed in via WorkspacePackages.
func TestBareSpecifierResolvesViaWorkspaceNameMap(t *testing.T) {
	p := &Parser{WorkspacePackages: map[string]string{"@org/shared": "../shared"}}
	files := map[string]string{
		"src/a.ts":            `import { util } from "@org/shared"; export const a = util;`,
		"../shared/index.ts": `export const util = 1;`,
	}
	var names []string
	for name := range files {
		names = append(names, name)
	}
	read := func(path string) ([]byte, error) { return []byte(files[path]), nil }
	parserFor := func(path string) importgraph.LanguageParser { return p }
	g := importgraph.Build(names, read, parserFor)

	require.False(t, g.AnyUnparsable())
	reached := g.ReverseBFS([]string{"../shared/index.ts"})
	require.True(t, reached["src/a.ts"])
}

func TestIsTestFileConventions(t *testing.T) {
	p := New()
	require.True(t, p.IsTestFile("src/a.test.ts"))
	require.True(t, p.IsTestFile("src/a.spec.tsx"))
	require.True(t, p.IsTestFile("__tests__/a.ts"))
	require.False(t, p.IsTestFile("src/a.ts"))
}
