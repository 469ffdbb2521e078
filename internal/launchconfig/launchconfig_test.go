package launchconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
tasks:
  concurrency: 4
  pipeline:
    build:
      command: "cargo build"
      inputs: ["src/**"]
      outputs: ["target/**"]
      cache: true
    test:
      command: "cargo test"
      depends_on: ["build"]
      cache: false
  cache:
    enabled: true
    dir: ".cache"
    max_bytes: 1073741824
monorepo:
  ignoreChanges: ["**/*.md"]
  shared_affects_all: false
test_selection:
  languages: ["rust", "ts"]
`

func TestDecodePopulatesEveryField(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Tasks.Concurrency)
	require.Contains(t, cfg.Tasks.Pipeline, "build")
	assert.Equal(t, "cargo build", cfg.Tasks.Pipeline["build"].Command)
	assert.True(t, cfg.Tasks.Pipeline["build"].Cache)
	assert.Equal(t, []string{"build"}, cfg.Tasks.Pipeline["test"].DependsOn)

	assert.True(t, cfg.Tasks.Cache.Enabled)
	assert.Equal(t, int64(1073741824), cfg.Tasks.Cache.MaxBytes)

	assert.False(t, cfg.Monorepo.SharedAffectsAll)
	assert.Equal(t, []string{"**/*.md"}, cfg.Monorepo.IgnoreChanges)
	assert.Equal(t, []string{"rust", "ts"}, cfg.TestSelection.Languages)
}

func TestDecodeDefaultsConcurrencyToCPUCount(t *testing.T) {
	cfg, err := Decode(strings.NewReader("tasks:\n  pipeline: {}\n"))
	require.NoError(t, err)
	assert.Greater(t, cfg.Tasks.Concurrency, 0)
}

func TestTaskSpecCacheDefaultsToOutputsDeclared(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
tasks:
  pipeline:
    build:
      command: "cargo build"
      outputs: ["target/**"]
    lint:
      command: "cargo clippy"
`))
	require.NoError(t, err)

	assert.True(t, cfg.Tasks.Pipeline["build"].Cache, "omitted cache: with outputs declared defaults to true")
	assert.False(t, cfg.Tasks.Pipeline["lint"].Cache, "omitted cache: with no outputs declared defaults to false")
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
tasks:
  pipeline:
    test:
      depends_on: ["lint"]
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	var unknownDep *ErrUnknownDependency
	require.ErrorAs(t, err, &unknownDep)
	assert.Equal(t, "lint", unknownDep.Dependency)
}

func TestPipelineConvertsToTaskgraphSpecs(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	specs := cfg.Pipeline()
	require.Contains(t, specs, "build")
	assert.Equal(t, "build", specs["build"].Name)
	assert.Equal(t, []string{"src/**"}, specs["build"].Inputs)
	assert.True(t, specs["build"].Cache)
}
