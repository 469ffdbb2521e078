// Package launchconfig defines the declarative configuration surface the
// core consumes: task pipeline definitions, cache settings, monorepo change
// policy, and enabled test-selection languages. Decode only turns
// already-read bytes into structs, grounded on modulematch.LoadRules's
// yaml.v3 struct tags — reading the file from disk is left to the CLI.
package launchconfig

import (
	"fmt"
	"io"
	"runtime"

	"gopkg.in/yaml.v3"

	"launchcore/internal/taskgraph"
)

// TaskSpec is one entry of tasks.pipeline.
type TaskSpec struct {
	Command           string   `yaml:"command"`
	DependsOn         []string `yaml:"depends_on"`
	DependsOnPackages bool     `yaml:"depends_on_packages"`
	Inputs            []string `yaml:"inputs"`
	Outputs           []string `yaml:"outputs"`
	Env               []string `yaml:"env"`
	Cache             bool     `yaml:"cache"`
}

// UnmarshalYAML decodes a TaskSpec, defaulting Cache to true iff outputs
// are declared when the cache key is absent from the document — an
// omitted cache: key is not the same as an explicit cache: false.
func (t *TaskSpec) UnmarshalYAML(value *yaml.Node) error {
	type rawTaskSpec struct {
		Command           string   `yaml:"command"`
		DependsOn         []string `yaml:"depends_on"`
		DependsOnPackages bool     `yaml:"depends_on_packages"`
		Inputs            []string `yaml:"inputs"`
		Outputs           []string `yaml:"outputs"`
		Env               []string `yaml:"env"`
		Cache             *bool    `yaml:"cache"`
	}
	var raw rawTaskSpec
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = TaskSpec{
		Command:           raw.Command,
		DependsOn:         raw.DependsOn,
		DependsOnPackages: raw.DependsOnPackages,
		Inputs:            raw.Inputs,
		Outputs:           raw.Outputs,
		Env:               raw.Env,
	}
	if raw.Cache != nil {
		t.Cache = *raw.Cache
	} else {
		t.Cache = len(raw.Outputs) > 0
	}
	return nil
}

// CacheConfig is tasks.cache.*.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// TasksConfig is the tasks.* block.
type TasksConfig struct {
	Concurrency int                 `yaml:"concurrency"`
	Pipeline    map[string]TaskSpec `yaml:"pipeline"`
	Cache       CacheConfig         `yaml:"cache"`
}

// MonorepoConfig is the monorepo.* block.
type MonorepoConfig struct {
	IgnoreChanges    []string `yaml:"ignoreChanges"`
	SharedAffectsAll bool     `yaml:"shared_affects_all"`
}

// TestSelectionConfig is the test_selection.* block.
type TestSelectionConfig struct {
	Languages []string `yaml:"languages"`
}

// Config is the whole decoded configuration surface.
type Config struct {
	Tasks         TasksConfig         `yaml:"tasks"`
	Monorepo      MonorepoConfig      `yaml:"monorepo"`
	TestSelection TestSelectionConfig `yaml:"test_selection"`
}

// ErrUnknownDependency is returned by Validate when a TaskSpec's depends_on
// names a task absent from the pipeline table — a configuration error,
// surfaced before any execution begins.
type ErrUnknownDependency struct {
	Task       string
	Dependency string
}

func (e *ErrUnknownDependency) Error() string {
	return fmt.Sprintf("launchconfig: task %q depends_on unknown task %q", e.Task, e.Dependency)
}

// Decode parses a YAML document already in hand into a Config and applies
// the documented defaults (tasks.concurrency defaults to the CPU count).
// It performs no disk or network I/O.
func Decode(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(false)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("launchconfig: decoding config: %w", err)
	}
	if cfg.Tasks.Concurrency <= 0 {
		cfg.Tasks.Concurrency = runtime.NumCPU()
	}
	return &cfg, nil
}

// Validate checks every TaskSpec's depends_on against the pipeline table.
func (c *Config) Validate() error {
	for name, spec := range c.Tasks.Pipeline {
		for _, dep := range spec.DependsOn {
			if _, ok := c.Tasks.Pipeline[dep]; !ok {
				return &ErrUnknownDependency{Task: name, Dependency: dep}
			}
		}
	}
	return nil
}

// Pipeline converts the decoded tasks.pipeline table into the taskgraph
// package's Spec map, the shape taskgraph.Build consumes.
func (c *Config) Pipeline() map[string]taskgraph.Spec {
	out := make(map[string]taskgraph.Spec, len(c.Tasks.Pipeline))
	for name, spec := range c.Tasks.Pipeline {
		out[name] = taskgraph.Spec{
			Name:              name,
			Command:           spec.Command,
			DependsOn:         spec.DependsOn,
			DependsOnPackages: spec.DependsOnPackages,
			Inputs:            spec.Inputs,
			Outputs:           spec.Outputs,
			Env:               spec.Env,
			Cache:             spec.Cache,
		}
	}
	return out
}
