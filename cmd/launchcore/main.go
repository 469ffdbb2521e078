// Package main provides the launchcore CLI: a thin cobra front end over the
// planner/executor API in internal/launch ( treats option parsing
// and config-file loading as external collaborators of the core; this is
// that collaborator, grounded on ivcs's cmd/ivcs/main.go command layout).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"launchcore/internal/cachestore"
	"launchcore/internal/changeset"
	"launchcore/internal/fsadapter/osfs"
	"launchcore/internal/launch"
	"launchcore/internal/launchconfig"
	"launchcore/internal/pkggraph"
	"launchcore/internal/revision/gitrevision"
	"launchcore/internal/scheduler"
)

var (
	workspaceRoot string
	configPath    string
	fromRev       string
	toRev         string
	failFast      bool
	dryRun        bool
	concurrency   int
	affectedOnly  bool
	jsonOut       bool
)

var rootCmd = &cobra.Command{
	Use:   "launchcore",
	Short: "Task orchestration core: plan and run build/test/lint across a polyglot workspace",
}

var planCmd = &cobra.Command{
	Use:   "plan <task> [task...]",
	Short: "Expand tasks over packages into a task DAG and print the execution plan",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

var runCmd = &cobra.Command{
	Use:   "run <task> [task...]",
	Short: "Plan and execute tasks via the wave scheduler, consulting the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Print the ChangeSet between two revisions",
	RunE:  runChanges,
}

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Print the minimal test set covering the changes between two revisions",
	RunE:  runTests,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "root", ".", "workspace root")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "launchcore.yaml", "path to the tasks/monorepo config file")
	rootCmd.PersistentFlags().StringVar(&fromRev, "from", "HEAD", "base revision")
	rootCmd.PersistentFlags().StringVar(&toRev, "to", "", "target revision (empty: working tree)")

	runCmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop dispatching new nodes after the first failure")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without executing any command")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker pool size (0: use tasks.concurrency from config)")
	runCmd.Flags().BoolVar(&affectedOnly, "affected", false, "restrict the plan to packages affected by --from..--to")
	planCmd.Flags().BoolVar(&affectedOnly, "affected", false, "restrict the plan to packages affected by --from..--to")
	testsCmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON instead of a line-per-test list")

	rootCmd.AddCommand(planCmd, runCmd, changesCmd, testsCmd)
}

func main() {
	// Loading a developer .env (concurrency/cache-dir overrides) is the
	// CLI's job, not the core's — config loading stays out of the core
	// entirely. A missing .env is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "launchcore:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to 's taxonomy. Planning/discovery/config
// errors and runtime failures are both surfaced as plain errors by the
// packages that detect them; the CLI only needs to special-case
// cancellation, since everything else already carries a distinguishable
// message and exits 1 by cobra's default.
func exitCodeFor(err error) int {
	if err == context.Canceled {
		return 130
	}
	return 1
}

func loadConfig() (*launchconfig.Config, error) {
	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", configPath, err)
	}
	defer f.Close()
	cfg, err := launchconfig.Decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openWorkspace() (*launch.Workspace, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, err
	}
	fsys, err := osfs.New(abs)
	if err != nil {
		return nil, fmt.Errorf("opening workspace root: %w", err)
	}
	return launch.BuildWorkspace(fsys, ".")
}

func selectedPackages(ws *launch.Workspace, cfg *launchconfig.Config) ([]pkggraph.ID, error) {
	if !affectedOnly {
		ids := make([]pkggraph.ID, 0, len(ws.Packages.Packages()))
		for _, p := range ws.Packages.Packages() {
			ids = append(ids, p.ID)
		}
		return ids, nil
	}
	cs, err := detectChangeSet(ws, cfg)
	if err != nil {
		return nil, err
	}
	return cs.Packages(), nil
}

func detectChangeSet(ws *launch.Workspace, cfg *launchconfig.Config) (changeset.ChangeSet, error) {
	adapter, err := gitrevision.Open(ws.FS.Root())
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	return launch.DetectChanges(ws, adapter, fromRev, toRev, cfg)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	packages, err := selectedPackages(ws, cfg)
	if err != nil {
		return err
	}
	plan, err := launch.Plan(ws, cfg, args, packages)
	if err != nil {
		return err
	}
	fmt.Print(plan.ExecutionPlan())
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	packages, err := selectedPackages(ws, cfg)
	if err != nil {
		return err
	}
	plan, err := launch.Plan(ws, cfg, args, packages)
	if err != nil {
		return err
	}

	var cache *cachestore.Store
	if cfg.Tasks.Cache.Enabled {
		dir := cfg.Tasks.Cache.Dir
		if dir == "" {
			dir = filepath.Join(ws.FS.Root(), ".launchcore", "cache")
		}
		cache, err = cachestore.Open(dir)
		if err != nil {
			return fmt.Errorf("opening cache store: %w", err)
		}
		defer cache.Close()
		if stats, err := cache.Sweep(0, cfg.Tasks.Cache.MaxBytes); err == nil && stats.EntriesRemoved > 0 {
			fmt.Fprintf(os.Stderr, "launchcore: swept %d stale cache entries\n", stats.EntriesRemoved)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	concurrencyWant := concurrency
	if concurrencyWant <= 0 {
		concurrencyWant = cfg.Tasks.Concurrency
	}

	report, err := launch.Execute(ctx, ws, plan, cfg, cache, launch.ExecuteOptions{
		Concurrency:     concurrencyWant,
		ContinueOnError: !failFast,
		DryRun:          dryRun,
		GracePeriod:     10 * time.Second,
	}, emitEvent)
	if report != nil {
		fmt.Print(report.Render())
	}
	if err != nil {
		return err
	}
	for _, n := range report.Nodes {
		if n.Outcome == "failure" {
			os.Exit(1)
		}
	}
	return nil
}

func emitEvent(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.EventStarted:
		fmt.Fprintf(os.Stderr, "[%s] started\n", ev.Node)
	case scheduler.EventOutput:
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", ev.Node, ev.Stream, ev.Line)
	case scheduler.EventFailed:
		fmt.Fprintf(os.Stderr, "[%s] failed: %v\n", ev.Node, ev.Err)
	}
}

func runChanges(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	cs, err := detectChangeSet(ws, cfg)
	if err != nil {
		return err
	}
	for _, id := range cs.Packages() {
		fmt.Printf("%-10s %s\n", cs.Kinds[id], id)
	}
	for _, f := range cs.SharedFiles {
		fmt.Printf("%-10s %s\n", "shared", f)
	}
	return nil
}

func runTests(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	adapter, err := gitrevision.Open(ws.FS.Root())
	if err != nil {
		return err
	}
	cs, err := launch.DetectChanges(ws, adapter, fromRev, toRev, cfg)
	if err != nil {
		return err
	}
	changedFiles, err := adapter.ChangedFiles(fromRev, toRev)
	if err != nil {
		return err
	}
	untracked, err := adapter.UntrackedFiles()
	if err != nil {
		return err
	}
	byPackage := changeset.FilesByPackage(ws.Packages, append(changedFiles, untracked...))

	tests, err := launch.SelectTests(ws, cs, cfg, byPackage)
	if err != nil {
		return err
	}
	for _, id := range cs.Packages() {
		for _, t := range tests[id] {
			if jsonOut {
				fmt.Printf("{\"package\":%q,\"test\":%q}\n", id, t)
			} else {
				fmt.Printf("%s: %s\n", id, t)
			}
		}
	}
	return nil
}
