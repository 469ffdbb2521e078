// Package rust implements the Rust import-edge extractor, using the rust
// grammar from the same github.com/smacker/go-tree-sitter module already
// wired in for JavaScript and Python — see DESIGN.md.
package rust

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"launchcore/internal/importgraph"
)

// Parser implements importgraph.LanguageParser for Rust sources.
// CrateRoots maps a Cargo workspace member crate name to the relative path
// of its crate-root file (normally "src/lib.rs"), letting `use other_crate::x`
// resolve across package boundaries within the same FileGraph build.
type Parser struct {
	CrateRoots map[string]string
}

// New returns a rust import parser.
func New() *Parser { return &Parser{CrateRoots: map[string]string{}} }

func (p *Parser) Extensions() []string { return []string{".rs"} }

// IsTestFile matches files under tests/ and files ending _test.rs.
// Classification is by path only: a file holding a #[cfg(test)] module is
// not treated as a test file.
func (p *Parser) IsTestFile(file string) bool {
	if strings.HasSuffix(file, "_test.rs") {
		return true
	}
	for _, seg := range strings.Split(path.Dir(file), "/") {
		if seg == "tests" {
			return true
		}
	}
	return false
}

func (p *Parser) ParseFile(file string, content []byte, allFiles []string) importgraph.FileResult {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil || tree.RootNode() == nil {
		return importgraph.FileResult{Unparsable: true, Warning: "rust: failed to parse " + file}
	}
	root := tree.RootNode()

	mods := extractModDecls(root, content)
	uses := extractUsePaths(root, content)
	edges := resolveMods(file, mods, allFiles)
	edges = append(edges, resolveUses(file, uses, allFiles, p.CrateRoots)...)

	if root.HasError() {
		return importgraph.FileResult{Unparsable: true, Warning: "rust: syntax error in " + file, Edges: edges}
	}
	return importgraph.FileResult{Edges: edges}
}

// extractModDecls finds `mod foo;` declarations (module declarations with no
// inline body — those resolve to another file; `mod foo { ... }` stays in
// the same file and is not an edge).
func extractModDecls(root *sitter.Node, content []byte) []string {
	var names []string
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		if n.Type() != "mod_item" {
			continue
		}
		hasBody := false
		var name string
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "identifier":
				name = child.Content(content)
			case "declaration_list":
				hasBody = true
			}
		}
		if !hasBody && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// extractUsePaths finds `use a::b::c;` forms, returning the dotted path
// (without any trailing `{...}` group members, which this extractor treats
// as importing the parent module).
func extractUsePaths(root *sitter.Node, content []byte) []string {
	var paths []string
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		if n.Type() != "use_declaration" {
			continue
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "scoped_identifier", "scoped_use_list", "identifier", "use_wildcard":
				if s := flattenUsePath(child, content); s != "" {
					paths = append(paths, s)
				}
			}
		}
	}
	return paths
}

func flattenUsePath(n *sitter.Node, content []byte) string {
	switch n.Type() {
	case "identifier", "crate", "self", "super":
		return n.Content(content)
	case "scoped_identifier":
		var parts []string
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "::" {
				continue
			}
			if s := flattenUsePath(c, content); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "::")
	case "scoped_use_list", "use_wildcard":
		if n.ChildCount() > 0 {
			return flattenUsePath(n.Child(0), content)
		}
	}
	return ""
}

func resolveMods(file string, names []string, allFiles []string) []importgraph.Edge {
	set := make(map[string]bool, len(allFiles))
	for _, f := range allFiles {
		set[f] = true
	}
	dir := path.Dir(file)
	var edges []importgraph.Edge
	for _, name := range names {
		flat := path.Join(dir, name+".rs")
		nested := path.Join(dir, name, "mod.rs")
		switch {
		case set[flat]:
			edges = append(edges, importgraph.Edge{From: file, To: flat})
		case set[nested]:
			edges = append(edges, importgraph.Edge{From: file, To: nested})
		}
	}
	return edges
}

// resolveUses resolves `use crate::x::y`, `use self::x`, `use super::x`, and
// `use other_crate::x` against the crate root / current directory / parent
// directory / another workspace crate's root, dropping anything else
// (external crates)
func resolveUses(file string, usePaths []string, allFiles []string, crateRoots map[string]string) []importgraph.Edge {
	set := make(map[string]bool, len(allFiles))
	for _, f := range allFiles {
		set[f] = true
	}
	dir := path.Dir(file)
	crateRoot := findCrateRoot(file, allFiles)

	var edges []importgraph.Edge
	for _, up := range usePaths {
		segs := strings.Split(up, "::")
		if len(segs) == 0 {
			continue
		}
		var base string
		var rest []string
		switch segs[0] {
		case "crate":
			base, rest = path.Dir(crateRoot), segs[1:]
		case "self":
			base, rest = dir, segs[1:]
		case "super":
			base, rest = path.Dir(dir), segs[1:]
		default:
			if root, ok := crateRoots[segs[0]]; ok {
				base, rest = path.Dir(root), segs[1:]
			} else {
				continue // external crate: dropped
			}
		}
		if len(rest) == 0 {
			continue
		}
		candidate := path.Join(append([]string{base}, rest[:len(rest)-1]...)...)
		file1 := path.Join(candidate, rest[len(rest)-1]+".rs")
		file2 := path.Join(candidate, rest[len(rest)-1], "mod.rs")
		switch {
		case set[file1]:
			edges = append(edges, importgraph.Edge{From: file, To: file1})
		case set[file2]:
			edges = append(edges, importgraph.Edge{From: file, To: file2})
		}
	}
	return edges
}

func findCrateRoot(file string, allFiles []string) string {
	for _, candidate := range []string{"src/lib.rs", "src/main.rs"} {
		for _, f := range allFiles {
			if f == candidate {
				return candidate
			}
		}
	}
	_ = file
	return "src/lib.rs"
}
