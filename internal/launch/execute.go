package launch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"launchcore/internal/cachestore"
	"launchcore/internal/fingerprint"
	"launchcore/internal/launchconfig"
	"launchcore/internal/scheduler"
	"launchcore/internal/taskgraph"
)

// nodeExecutor is the default scheduler.Executor: it spawns each TaskNode's
// command as a child process in its package directory with an allowlisted
// environment, the way script-weaver's core.Executor isolates task
// environments, adapted here to stream whole lines through the scheduler's
// onLine callback instead of buffering output entirely in memory.
type nodeExecutor struct {
	ws          *Workspace
	gracePeriod time.Duration
	globCache   *lru.Cache[taskgraph.ID, []string]
}

func newNodeExecutor(ws *Workspace, gracePeriod time.Duration) *nodeExecutor {
	cache, _ := lru.New[taskgraph.ID, []string](4096)
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Second
	}
	return &nodeExecutor{ws: ws, gracePeriod: gracePeriod, globCache: cache}
}

// expandInputs resolves node.Spec.Inputs glob patterns against the package
// root into literal file paths, memoized per (package, task) for the
// lifetime of one run ( "Glob expansion costs": memoize within a run,
// never across runs since the filesystem may have changed).
func (e *nodeExecutor) expandInputs(pkgRoot string, node *taskgraph.Node) ([]string, error) {
	if cached, ok := e.globCache.Get(node.ID); ok {
		return cached, nil
	}
	files, err := e.ws.FS.Walk(pkgRoot, node.Spec.Inputs, nil)
	if err != nil {
		return nil, fmt.Errorf("launch: expanding inputs for %s: %w", node.ID, err)
	}
	e.globCache.Add(node.ID, files)
	return files, nil
}

func (e *nodeExecutor) Fingerprint(_ context.Context, node *taskgraph.Node) (fingerprint.Digest, error) {
	pkg, ok := e.ws.Packages.Package(node.ID.Package)
	if !ok {
		return fingerprint.Digest{}, fmt.Errorf("launch: unknown package %s", node.ID.Package)
	}
	inputs, err := e.expandInputs(pkg.Root, node)
	if err != nil {
		return fingerprint.Digest{}, err
	}
	env := capturedEnv(node.Spec.Env)
	return fingerprint.Compute(e.ws.FS, pkg.Root, inputs, node.Spec.Command, env)
}

// capturedEnv resolves each declared name against the host environment,
// recording Unset distinctly from an empty value.
func capturedEnv(names []string) []fingerprint.EnvVar {
	out := make([]fingerprint.EnvVar, 0, len(names))
	for _, name := range names {
		value, ok := os.LookupEnv(name)
		out = append(out, fingerprint.EnvVar{Name: name, Value: value, Unset: !ok})
	}
	return out
}

func (e *nodeExecutor) Run(ctx context.Context, node *taskgraph.Node, onLine func(stream, line string)) (int, []byte, []byte, map[string][]byte, error) {
	pkg, ok := e.ws.Packages.Package(node.ID.Package)
	if !ok {
		return 0, nil, nil, nil, fmt.Errorf("launch: unknown package %s", node.ID.Package)
	}
	absRoot := filepath.Join(e.ws.FS.Root(), pkg.Root)

	cmd := exec.CommandContext(ctx, "sh", "-c", node.Spec.Command)
	cmd.Dir = absRoot
	cmd.Env = buildIsolatedEnv(node.Spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("launch: wiring stdout for %s: %w", node.ID, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("launch: wiring stderr for %s: %w", node.ID, err)
	}

	if err := cmd.Start(); err != nil {
		return 0, nil, nil, nil, fmt.Errorf("launch: starting %s: %w", node.ID, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdoutPipe, &stdoutBuf, "stdout", onLine)
	go streamLines(&wg, stderrPipe, &stderrBuf, "stderr", onLine)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		// Cancellation bound: SIGTERM the process group, give
		// it gracePeriod to exit on its own, then SIGKILL.
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
		timer := time.NewTimer(e.gracePeriod)
		select {
		case waitErr = <-done:
			timer.Stop()
		case <-timer.C:
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			waitErr = <-done
		}
	case waitErr = <-done:
	}
	wg.Wait()

	exitStatus := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitStatus = exitErr.ExitCode()
		} else {
			return 0, stdoutBuf.Bytes(), stderrBuf.Bytes(), nil, fmt.Errorf("launch: running %s: %w", node.ID, waitErr)
		}
	}

	outputs, err := collectOutputs(e.ws, pkg.Root, node.Spec.Outputs)
	if err != nil {
		return exitStatus, stdoutBuf.Bytes(), stderrBuf.Bytes(), nil, err
	}
	return exitStatus, stdoutBuf.Bytes(), stderrBuf.Bytes(), outputs, nil
}

func streamLines(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, stream string, onLine func(stream, line string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(stream, line)
		}
	}
}

// buildIsolatedEnv starts from an empty environment and adds only the names
// that appear in the TaskSpec's declared env list, matching script-weaver's
// allowlist executor rather than passing the host environment through.
func buildIsolatedEnv(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok {
			out = append(out, name+"="+value)
		}
	}
	return out
}

// collectOutputs reads every output glob's matched files back into memory
// for the scheduler to hand to cachestore.Insert, keyed by path relative to
// the package root.
func collectOutputs(ws *Workspace, pkgRoot string, outputGlobs []string) (map[string][]byte, error) {
	if len(outputGlobs) == 0 {
		return nil, nil
	}
	files, err := ws.FS.Walk(pkgRoot, outputGlobs, nil)
	if err != nil {
		return nil, fmt.Errorf("launch: walking outputs: %w", err)
	}
	out := make(map[string][]byte, len(files))
	for _, f := range files {
		data, err := ws.FS.Read(filepath.Join(pkgRoot, f))
		if err != nil {
			return nil, fmt.Errorf("launch: reading output %s: %w", f, err)
		}
		out[f] = data
	}
	return out, nil
}

// NodeOutcome is one TaskNode's recorded result in a RunReport (
// "RunReport records, per node: outcome, duration, fingerprint, cache
// action").
type NodeOutcome struct {
	ID          taskgraph.ID
	Outcome     string // success | cache_hit | failure | skipped; no node is reported as cancelled
	CacheAction string // hit | miss_insert | miss_no_cache; empty for skipped nodes
	DurationMs  int64
	Fingerprint string
	Err         string
}

// RunReport is the return value of Execute.
type RunReport struct {
	Nodes []NodeOutcome
}

// ExecuteOptions configures Execute beyond the plan and cache.
type ExecuteOptions struct {
	Concurrency     int
	ContinueOnError bool
	DryRun          bool
	GracePeriod     time.Duration
}

// Execute drives plan to completion via the Wave Scheduler, consulting cache
// when cfg enables it.
func Execute(ctx context.Context, ws *Workspace, plan *taskgraph.Graph, cfg *launchconfig.Config, cache *cachestore.Store, opts ExecuteOptions, emit func(scheduler.Event)) (*RunReport, error) {
	ex := newNodeExecutor(ws, opts.GracePeriod)
	schedOpts := scheduler.Options{
		Concurrency:     opts.Concurrency,
		ContinueOnError: opts.ContinueOnError,
		UseCache:        cfg.Tasks.Cache.Enabled,
		DryRun:          opts.DryRun,
		GracePeriod:     opts.GracePeriod,
	}
	results, runErr := scheduler.Run(ctx, plan, ex, cache, schedOpts, emit)

	report := &RunReport{Nodes: make([]NodeOutcome, 0, len(results))}
	for _, r := range results {
		out := NodeOutcome{
			ID:          r.ID,
			DurationMs:  r.Duration.Milliseconds(),
			Fingerprint: r.Fingerprint.String(),
		}
		switch r.Status {
		case scheduler.StatusSuccess:
			out.Outcome = "success"
			if n, ok := plan.Node(r.ID); ok && n.Spec.Cache && cache != nil && !opts.DryRun {
				out.CacheAction = "miss_insert"
			} else {
				out.CacheAction = "miss_no_cache"
			}
		case scheduler.StatusCacheHit:
			out.Outcome = "cache_hit"
			out.CacheAction = "hit"
		case scheduler.StatusFailed:
			out.Outcome = "failure"
			out.CacheAction = "miss_no_cache"
			if r.Err != nil {
				out.Err = r.Err.Error()
			}
		case scheduler.StatusSkipped:
			out.Outcome = "skipped"
		}
		report.Nodes = append(report.Nodes, out)
	}
	sort.Slice(report.Nodes, func(i, j int) bool { return report.Nodes[i].ID.String() < report.Nodes[j].ID.String() })

	if runErr != nil && ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, runErr
}

// Render produces a human-readable summary of a RunReport, in the spirit of
// taskgraph.Graph.ExecutionPlan.
func (r *RunReport) Render() string {
	out := ""
	for _, n := range r.Nodes {
		out += fmt.Sprintf("%-8s %-12s %6dms  %s\n", n.Outcome, n.CacheAction, n.DurationMs, n.ID)
		if n.Err != "" {
			out += fmt.Sprintf("           %s\n", n.Err)
		}
	}
	return out
}
