// Package importgraph builds the per-language FileGraph the Test Selector
// consumes: a directed graph of import edges over a package's
// source files, plus the distinguished set of test files.
package importgraph

// Edge is a directed import edge discovered while parsing one file.
type Edge struct {
	From string // source file, relative to the package root
	To   string // resolved target file, relative to the package root
}

// FileResult is what a LanguageParser reports for one source file.
type FileResult struct {
	Edges      []Edge
	Unparsable bool // true if the file failed to parse; partial edges may be reported, but Build adds no edges for an unparsable file
	Warning    string
}

// LanguageParser is the per-language import-edge extractor interface, so
// other language families can plug in without changing the Test Selector.
type LanguageParser interface {
	// Extensions lists the file extensions (with leading dot) this parser
	// claims, used to route files to a parser.
	Extensions() []string

	// IsTestFile reports whether path (relative to the package root) is a
	// test file by this language's naming conventions.
	IsTestFile(path string) bool

	// ParseFile extracts import edges from one file's content. allFiles is
	// every source file in the package, for resolving bare/package-relative
	// specifiers against what actually exists.
	ParseFile(path string, content []byte, allFiles []string) FileResult
}

// FileGraph is the reachability graph over one package's source files,
// built from the edges every LanguageParser reported.
type FileGraph struct {
	forward    map[string][]string
	reverse    map[string][]string
	testFiles  map[string]bool
	unparsable map[string]bool
	files      map[string]bool
}

// Build assembles a FileGraph from the per-file results of parsing every
// file in a package with the appropriate LanguageParser. read loads a
// file's content by path, relative to the package root.
func Build(files []string, read func(path string) ([]byte, error), parserFor func(path string) LanguageParser) *FileGraph {
	g := &FileGraph{
		forward:    make(map[string][]string),
		reverse:    make(map[string][]string),
		testFiles:  make(map[string]bool),
		unparsable: make(map[string]bool),
		files:      make(map[string]bool, len(files)),
	}
	for _, f := range files {
		g.files[f] = true
	}
	for _, f := range files {
		p := parserFor(f)
		if p == nil {
			continue
		}
		if p.IsTestFile(f) {
			g.testFiles[f] = true
		}
		content, err := read(f)
		if err != nil {
			g.unparsable[f] = true
			continue
		}
		result := p.ParseFile(f, content, files)
		if result.Unparsable {
			g.unparsable[f] = true
			continue
		}
		for _, e := range result.Edges {
			if !g.files[e.To] {
				continue // dropped: target isn't a known source file (external/unresolved)
			}
			g.forward[e.From] = append(g.forward[e.From], e.To)
			g.reverse[e.To] = append(g.reverse[e.To], e.From)
		}
	}
	return g
}

// IsTestFile reports whether path was identified as a test file.
func (g *FileGraph) IsTestFile(path string) bool { return g.testFiles[path] }

// IsUnparsable reports whether path failed to parse.
func (g *FileGraph) IsUnparsable(path string) bool { return g.unparsable[path] }

// AnyUnparsable reports whether any file in the graph failed to parse.
func (g *FileGraph) AnyUnparsable() bool { return len(g.unparsable) > 0 }

// TestFiles returns every file identified as a test file.
func (g *FileGraph) TestFiles() []string {
	out := make([]string, 0, len(g.testFiles))
	for f := range g.testFiles {
		out = append(out, f)
	}
	return out
}

// Files returns every file known to the graph.
func (g *FileGraph) Files() []string {
	out := make([]string, 0, len(g.files))
	for f := range g.files {
		out = append(out, f)
	}
	return out
}

// ReverseBFS returns the seeds themselves plus every file reachable from
// them by following import edges backwards (i.e. every file that, directly
// or transitively, imports a seed file). Used by the Test Selector to find
// tests that reach a changed file; a changed test file reaches itself.
func (g *FileGraph) ReverseBFS(seeds []string) map[string]bool {
	visited := make(map[string]bool, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, pred := range g.reverse[n] {
			if !visited[pred] {
				visited[pred] = true
				queue = append(queue, pred)
			}
		}
	}
	return visited
}
