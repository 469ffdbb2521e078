package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"launchcore/internal/cachestore"
	"launchcore/internal/fingerprint"
	"launchcore/internal/taskgraph"
)

// Status is the outcome of one TaskNode's execution.
type Status int

const (
	StatusSuccess Status = iota
	StatusCacheHit
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCacheHit:
		return "cache_hit"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsSuccess reports whether s represents a node whose dependents may proceed.
func (s Status) IsSuccess() bool { return s == StatusSuccess || s == StatusCacheHit }

// Result is one TaskNode's final outcome.
type Result struct {
	ID          taskgraph.ID
	Status      Status
	Duration    time.Duration
	Fingerprint fingerprint.Digest
	Err         error
}

// EventKind tags a dispatched Event.
type EventKind int

const (
	EventWaveStarted EventKind = iota
	EventStarted
	EventOutput
	EventCompleted
	EventFailed
	EventSkipped
	EventAllCompleted
)

// Event is a progress notification emitted as the scheduler runs, driving
// a live execution-plan / streaming view for callers.
type Event struct {
	Kind   EventKind
	Node   taskgraph.ID
	Wave   int
	Stream string // "stdout" or "stderr", set only for EventOutput
	Line   string
	Err    error
}

// Executor runs one TaskNode's command. Implementations own spawning the
// child process in the package directory with the captured environment and
// reporting whole lines as they complete — the scheduler never interleaves
// partial lines across nodes because it only ever sees complete ones.
type Executor interface {
	// Fingerprint computes node's content digest for cache lookups.
	Fingerprint(ctx context.Context, node *taskgraph.Node) (fingerprint.Digest, error)
	// Run executes node's command. onLine is called once per complete
	// stdout/stderr line. It returns the process exit status and the raw
	// bytes of every declared output file, keyed by relative path.
	Run(ctx context.Context, node *taskgraph.Node, onLine func(stream, line string)) (exitStatus int, stdout, stderr []byte, outputs map[string][]byte, err error)
}

// Options configures one Run call.
type Options struct {
	Concurrency     int  // worker pool size; <=0 defaults to 1
	ContinueOnError bool // without --fail-fast
	UseCache        bool
	DryRun          bool
	// GracePeriod records the SIGTERM-to-SIGKILL wait for the run. Neither
	// the scheduler nor the Executor interface reads it; an Executor that
	// owns child processes is given its grace period when it is built. The
	// scheduler itself only propagates ctx.
	GracePeriod time.Duration
}

// Run executes every node in graph honoring edge ordering, dispatching up to
// Options.Concurrency nodes at once. It follows a ready-set/indegree
// dispatch loop, trading weighted chunk packing for a plain one-node-per-slot
// worker pool with cache lookups wired in, since dispatch here has no notion
// of per-node weight or permit budgets.
func Run(ctx context.Context, graph *taskgraph.Graph, exec Executor, cache *cachestore.Store, opts Options, emit func(Event)) ([]Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	nodes := graph.Nodes()
	indeg := make(map[taskgraph.ID]int, len(nodes))
	dependents := make(map[taskgraph.ID][]taskgraph.ID, len(nodes))
	byID := make(map[taskgraph.ID]*taskgraph.Node, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = len(n.EdgesIn)
		byID[n.ID] = n
		for _, dep := range n.EdgesIn {
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var mu sync.Mutex
	results := make(map[taskgraph.ID]Result, len(nodes))
	skipped := make(map[taskgraph.ID]bool)
	draining := false
	var firstFailure taskgraph.ID
	haveFailure := false

	var ready []taskgraph.ID
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	reportedWaves := make(map[int]bool)

	type completion struct {
		id  taskgraph.ID
		res Result
	}
	completions := make(chan completion, len(nodes))
	inflight := 0

	launch := func(id taskgraph.ID) {
		node := byID[id]
		if !reportedWaves[node.Wave] {
			reportedWaves[node.Wave] = true
			emit(Event{Kind: EventWaveStarted, Wave: node.Wave})
		}
		emit(Event{Kind: EventStarted, Node: id, Wave: node.Wave})
		go func() {
			res := runNode(ctx, node, exec, cache, opts, func(stream, line string) {
				emit(Event{Kind: EventOutput, Node: id, Wave: node.Wave, Stream: stream, Line: line})
			})
			completions <- completion{id: id, res: res}
		}()
	}

	dispatch := func() {
		mu.Lock()
		defer mu.Unlock()
		for inflight < concurrency && len(ready) > 0 {
			sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })
			id := ready[0]
			ready = ready[1:]

			if draining {
				markSkipped(id, byID, dependents, indeg, results, skipped, emit)
				continue
			}
			inflight++
			launch(id)
		}
	}

	dispatch()

	for {
		mu.Lock()
		done := inflight == 0 && len(ready) == 0
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-ctx.Done():
			return collectResults(results), ctx.Err()
		case c := <-completions:
			mu.Lock()
			inflight--
			results[c.id] = c.res
			node := byID[c.id]

			if c.res.Status.IsSuccess() {
				emit(Event{Kind: EventCompleted, Node: c.id, Wave: node.Wave})
				for _, dependent := range dependents[c.id] {
					indeg[dependent]--
					if indeg[dependent] == 0 {
						ready = append(ready, dependent)
					}
				}
			} else {
				if !haveFailure {
					haveFailure = true
					firstFailure = c.id
				}
				emit(Event{Kind: EventFailed, Node: c.id, Wave: node.Wave, Err: c.res.Err})
				if !opts.ContinueOnError {
					draining = true
				}
				// Dependents of a failed node never reach indeg zero through
				// the success path above, so they are swept up as skipped
				// once the loop drains, whether or not --fail-fast is set.
			}
			mu.Unlock()
			dispatch()
		}
	}

	// Anything still without a result has a failed (possibly transitive)
	// prerequisite and will never become ready.
	for _, n := range nodes {
		mu.Lock()
		_, has := results[n.ID]
		mu.Unlock()
		if !has {
			markSkipped(n.ID, byID, dependents, indeg, results, skipped, emit)
		}
	}

	emit(Event{Kind: EventAllCompleted})

	out := collectResults(results)
	if haveFailure {
		return out, fmt.Errorf("scheduler: task %s failed: %w", firstFailure, results[firstFailure].Err)
	}
	return out, nil
}

// markSkipped marks id and every dependent reachable only through it as
// skipped, recursing through the dependency graph.
func markSkipped(id taskgraph.ID, byID map[taskgraph.ID]*taskgraph.Node, dependents map[taskgraph.ID][]taskgraph.ID, indeg map[taskgraph.ID]int, results map[taskgraph.ID]Result, skipped map[taskgraph.ID]bool, emit func(Event)) {
	if skipped[id] {
		return
	}
	skipped[id] = true
	node := byID[id]
	results[id] = Result{ID: id, Status: StatusSkipped}
	emit(Event{Kind: EventSkipped, Node: id, Wave: node.Wave})
	for _, dependent := range dependents[id] {
		indeg[dependent]--
		if indeg[dependent] == 0 {
			markSkipped(dependent, byID, dependents, indeg, results, skipped, emit)
		}
	}
}

func collectResults(results map[taskgraph.ID]Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// runNode executes a single node: fingerprint, consult cache, run-or-replay,
// insert on success.
func runNode(ctx context.Context, node *taskgraph.Node, exec Executor, cache *cachestore.Store, opts Options, onLine func(stream, line string)) Result {
	start := time.Now()
	res := Result{ID: node.ID}

	fp, err := exec.Fingerprint(ctx, node)
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("fingerprinting %s: %w", node.ID, err)
		res.Duration = time.Since(start)
		return res
	}
	res.Fingerprint = fp

	if opts.UseCache && node.Spec.Cache && cache != nil {
		if entry, hit, err := cache.Lookup(fp); err == nil && hit {
			if err := entry.Replay(ctx, cache, func(string, []byte) error { return nil }, lineWriter{onLine, "stdout"}, lineWriter{onLine, "stderr"}); err != nil {
				res.Status = StatusFailed
				res.Err = fmt.Errorf("replaying cached outputs for %s: %w", node.ID, err)
				res.Duration = time.Since(start)
				return res
			}
			res.Status = StatusCacheHit
			res.Duration = time.Since(start)
			return res
		}
	}

	if opts.DryRun {
		res.Status = StatusSuccess
		res.Duration = time.Since(start)
		return res
	}

	exitStatus, stdout, stderr, outputs, err := exec.Run(ctx, node, onLine)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}
	if exitStatus != 0 {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%s exited with status %d", node.ID, exitStatus)
		res.Duration = time.Since(start)
		return res
	}

	if node.Spec.Cache && cache != nil {
		if _, err := cache.Insert(fp, exitStatus, stdout, stderr, node.Spec.Outputs, outputs); err != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("caching outputs for %s: %w", node.ID, err)
			res.Duration = time.Since(start)
			return res
		}
	}

	res.Status = StatusSuccess
	res.Duration = time.Since(start)
	return res
}

// lineWriter adapts the scheduler's per-line onLine callback to the
// io.Writer Entry.Replay expects, so a cache-hit's captured stdout/stderr
// surfaces through the same event stream as a live run's.
type lineWriter struct {
	onLine func(stream, line string)
	stream string
}

func (w lineWriter) Write(p []byte) (int, error) {
	if w.onLine != nil && len(p) > 0 {
		for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
			w.onLine(w.stream, line)
		}
	}
	return len(p), nil
}
