// Package jsts implements the JS/TS import-edge extractor, following
// kai-core/parse/{parse,calls}.go's tree-sitter usage: parse with the
// JavaScript grammar (it accepts TSX/JSX-adjacent syntax used by plain
// .ts/.tsx in practice — import/require/export statement shapes are
// shared) and walk the AST for import_statement, dynamic import(), and
// require() call nodes.
package jsts

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"launchcore/internal/importgraph"
)

var resolutionExts = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// Parser implements importgraph.LanguageParser for JavaScript and
// TypeScript sources. WorkspacePackages maps an npm/pnpm/yarn workspace
// member's package name to the relative path of its package root, letting a
// bare specifier like `import "@org/shared"` resolve to a sibling workspace
// package instead of being dropped as external.
type Parser struct {
	WorkspacePackages map[string]string
}

// New returns a jsts import parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}
}

// IsTestFile matches *.test.*, *.spec.*, and anything under __tests__/.
func (p *Parser) IsTestFile(file string) bool {
	base := path.Base(file)
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(path.Dir(file), "/") {
		if seg == "__tests__" {
			return true
		}
	}
	return false
}

func (p *Parser) ParseFile(file string, content []byte, allFiles []string) importgraph.FileResult {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil || tree.RootNode() == nil {
		return importgraph.FileResult{Unparsable: true, Warning: "jsts: failed to parse " + file}
	}
	root := tree.RootNode()
	if root.HasError() {
		// Lexical recovery: tree-sitter still produces a best-effort tree
		// around the error, so we still try to extract whatever imports it
		// found rather than discarding the whole file outright — but a
		// syntax error anywhere in the file makes the edge set suspect, so
		// the caller is told via Unparsable and treated fail-safe.
		specifiers := extractSpecifiers(root, content)
		return importgraph.FileResult{Unparsable: true, Warning: "jsts: syntax error in " + file, Edges: resolveAll(file, specifiers, allFiles, p.WorkspacePackages)}
	}

	specifiers := extractSpecifiers(root, content)
	return importgraph.FileResult{Edges: resolveAll(file, specifiers, allFiles, p.WorkspacePackages)}
}

// extractSpecifiers walks the AST for import_statement, dynamic import(...),
// and require(...) call nodes, returning the raw module specifier strings.
func extractSpecifiers(root *sitter.Node, content []byte) []string {
	var out []string
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		switch n.Type() {
		case "import_statement", "export_statement":
			if s := findStringChild(n, content); s != "" {
				out = append(out, s)
			}
		case "call_expression":
			if n.ChildCount() < 2 {
				continue
			}
			callee := n.Child(0)
			args := n.Child(1)
			if callee == nil || args == nil || args.Type() != "arguments" {
				continue
			}
			isImport := callee.Type() == "import"
			isRequire := callee.Type() == "identifier" && callee.Content(content) == "require"
			if !isImport && !isRequire {
				continue
			}
			if s := findStringChild(args, content); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func findStringChild(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" || child.Type() == "string_fragment" {
			return strings.Trim(child.Content(content), "\"'`")
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if s := findStringChild(node.Child(i), content); s != "" {
			return s
		}
	}
	return ""
}

// resolveAll resolves every raw specifier found in file against allFiles,
// resolution algorithm, dropping unresolved bare specifiers.
func resolveAll(file string, specifiers []string, allFiles []string, wsPackages map[string]string) []importgraph.Edge {
	set := make(map[string]bool, len(allFiles))
	for _, f := range allFiles {
		set[f] = true
	}
	dir := path.Dir(file)

	var edges []importgraph.Edge
	for _, spec := range specifiers {
		if target, ok := resolveSpecifier(dir, spec, set, wsPackages); ok {
			edges = append(edges, importgraph.Edge{From: file, To: target})
		}
	}
	return edges
}

func resolveSpecifier(dir, spec string, set map[string]bool, wsPackages map[string]string) (string, bool) {
	if !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "/") {
		return resolveBareSpecifier(spec, set, wsPackages)
	}
	base := path.Clean(path.Join(dir, spec))
	return resolveCandidate(base, set)
}

// resolveBareSpecifier resolves a bare specifier (e.g. "@org/shared" or
// "@org/shared/sub/path") against the nearest package.json's workspace name
// map. A name absent from wsPackages is an external registry dependency and
// is dropped, unresolved.
func resolveBareSpecifier(spec string, set map[string]bool, wsPackages map[string]string) (string, bool) {
	name, rest := splitPackageSpecifier(spec)
	root, ok := wsPackages[name]
	if !ok {
		return "", false
	}
	base := path.Clean(path.Join(root, rest))
	return resolveCandidate(base, set)
}

// splitPackageSpecifier splits a bare specifier into its npm package name
// (the leading @scope/name pair for scoped packages, or just the first
// segment otherwise) and any subpath following it.
func splitPackageSpecifier(spec string) (name, rest string) {
	segs := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(segs) >= 2 {
		return segs[0] + "/" + segs[1], strings.Join(segs[2:], "/")
	}
	return segs[0], strings.Join(segs[1:], "/")
}

func resolveCandidate(base string, set map[string]bool) (string, bool) {
	if set[base] {
		return base, true
	}
	for _, ext := range resolutionExts {
		if set[base+ext] {
			return base + ext, true
		}
	}
	for _, ext := range resolutionExts {
		candidate := path.Join(base, "index"+ext)
		if set[candidate] {
			return candidate, true
		}
	}
	return "", false
}
