// Package testselect implements the Test Selector: combining a
// ChangeSet with per-package FileGraphs to compute the minimum test set that
// covers a changed-file set.
package testselect

import (
	"sort"

	"launchcore/internal/changeset"
	"launchcore/internal/importgraph"
	"launchcore/internal/pkggraph"
)

// PackageInput is everything the selector needs for one package.
type PackageInput struct {
	ID pkggraph.ID
	// ChangedFiles are the changed files (relative to the package root)
	// whose language is enabled.
	ChangedFiles []string
	// HasUnsupportedLanguageChange is true if any changed file in this
	// package belongs to a language not in test_selection.languages — that
	// forces the package's full test set to run rather than a subset.
	HasUnsupportedLanguageChange bool
	// Graph is the package's FileGraph, or nil if the package has no
	// sources in any enabled language.
	Graph *importgraph.FileGraph
	// AllTestFiles is every test file in the package (used as the
	// fail-safe fallback and when Graph is nil but the package still has
	// package-kind KindDirect/KindDependency membership in the ChangeSet).
	AllTestFiles []string
}

// Select computes, for each package in the ChangeSet, the set of test files
// that must run. A package with kind changeset.KindDependency (no files of
// its own changed, only a dependency) runs no tests: its PackageInput's
// ChangedFiles is empty and HasUnsupportedLanguageChange is false, which
// selects nothing.
func Select(cs changeset.ChangeSet, inputs []PackageInput) map[pkggraph.ID][]string {
	result := make(map[pkggraph.ID][]string, len(inputs))
	for _, in := range inputs {
		if _, affected := cs.Kinds[in.ID]; !affected {
			continue
		}
		result[in.ID] = selectForPackage(in)
	}
	return result
}

func selectForPackage(in PackageInput) []string {
	if len(in.ChangedFiles) == 0 && !in.HasUnsupportedLanguageChange {
		return nil
	}
	if in.HasUnsupportedLanguageChange || in.Graph == nil || in.Graph.AnyUnparsable() {
		return sortedCopy(in.AllTestFiles)
	}

	reached := in.Graph.ReverseBFS(in.ChangedFiles)
	var tests []string
	for f := range reached {
		if in.Graph.IsTestFile(f) {
			tests = append(tests, f)
		}
	}
	sort.Strings(tests)
	return tests
}

func sortedCopy(files []string) []string {
	out := append([]string(nil), files...)
	sort.Strings(out)
	return out
}
