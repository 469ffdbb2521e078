// Package python implements the Python import-edge extractor,
// using the same tree-sitter-based approach as jsts (grounded on
// kai-core/parse.go's use of github.com/smacker/go-tree-sitter/python),
// generalized from symbol extraction to import-statement extraction.
package python

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"launchcore/internal/importgraph"
)

// Parser implements importgraph.LanguageParser for Python sources.
type Parser struct {
	// Roots lists directories (relative to the package root) that are
	// themselves package roots even without an __init__.py, letting callers
	// pre-declare namespace packages. May be nil.
	Roots []string
}

// New returns a python import parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Extensions() []string { return []string{".py"} }

// IsTestFile matches test_*.py, *_test.py, and anything under tests/.
func (p *Parser) IsTestFile(file string) bool {
	base := path.Base(file)
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
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
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil || tree.RootNode() == nil {
		return importgraph.FileResult{Unparsable: true, Warning: "python: failed to parse " + file}
	}
	root := tree.RootNode()
	modules := extractImports(root, content)
	edges := resolveAll(file, modules, allFiles, p.Roots)
	if root.HasError() {
		return importgraph.FileResult{Unparsable: true, Warning: "python: syntax error in " + file, Edges: edges}
	}
	return importgraph.FileResult{Edges: edges}
}

// importedModule is a dotted module name plus whether it came from a
// relative "from . import x" / "from .pkg import x" form, and how many
// leading dots it had (relative level).
type importedModule struct {
	dotted        string
	relativeLevel int // 0 = absolute
}

func extractImports(root *sitter.Node, content []byte) []importedModule {
	var out []importedModule
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		switch n.Type() {
		case "import_statement":
			// import a.b.c [as d][, e.f]
			for i := 0; i < int(n.ChildCount()); i++ {
				child := n.Child(i)
				if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
					if dn := firstDottedName(child, content); dn != "" {
						out = append(out, importedModule{dotted: dn})
					}
				}
			}
		case "import_from_statement":
			out = append(out, parseImportFrom(n, content)...)
		}
	}
	return out
}

func parseImportFrom(n *sitter.Node, content []byte) []importedModule {
	level := 0
	module := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "import_prefix":
			level += strings.Count(child.Content(content), ".")
		case "dotted_name":
			if module == "" {
				module = child.Content(content)
			}
		case "relative_import":
			level += strings.Count(child.Content(content), ".")
			if dn := firstDottedName(child, content); dn != "" {
				module = dn
			}
		}
	}
	if module == "" && level == 0 {
		return nil
	}
	return []importedModule{{dotted: module, relativeLevel: level}}
}

func firstDottedName(n *sitter.Node, content []byte) string {
	if n.Type() == "dotted_name" {
		return n.Content(content)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if s := firstDottedName(n.Child(i), content); s != "" {
			return s
		}
	}
	return ""
}

// resolveAll maps each imported module to a file in allFiles, using a
// package-root search: absolute names are looked up from the package root,
// from the directory above the chain of __init__.py directories that holds
// file, and from each of roots. A dotted name resolves to <name>.py or
// <name>/__init__.py; the directories along the dotted path are not checked
// for __init__.py.
func resolveAll(file string, modules []importedModule, allFiles []string, roots []string) []importgraph.Edge {
	set := make(map[string]bool, len(allFiles))
	for _, f := range allFiles {
		set[f] = true
	}
	dir := path.Dir(file)
	searchRoot := dir
	for searchRoot != "." && set[path.Join(searchRoot, "__init__.py")] {
		searchRoot = path.Dir(searchRoot)
	}

	var edges []importgraph.Edge
	for _, m := range modules {
		if m.relativeLevel > 0 {
			base := dir
			for i := 1; i < m.relativeLevel; i++ {
				base = path.Dir(base)
			}
			if target, ok := resolveDotted(base, m.dotted, set); ok {
				edges = append(edges, importgraph.Edge{From: file, To: target})
			}
			continue
		}
		for _, root := range append([]string{".", searchRoot}, roots...) {
			if target, ok := resolveDotted(root, m.dotted, set); ok {
				edges = append(edges, importgraph.Edge{From: file, To: target})
				break
			}
		}
	}
	return edges
}

func resolveDotted(base, dotted string, set map[string]bool) (string, bool) {
	if dotted == "" {
		candidate := path.Join(base, "__init__.py")
		if set[candidate] {
			return candidate, true
		}
		return "", false
	}
	p := path.Join(base, strings.ReplaceAll(dotted, ".", "/"))
	if set[p+".py"] {
		return p + ".py", true
	}
	if set[path.Join(p, "__init__.py")] {
		return path.Join(p, "__init__.py"), true
	}
	return "", false
}
