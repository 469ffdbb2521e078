package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchcore/internal/fsadapter/memfs"
	"launchcore/internal/pkggraph"
)

func TestDiscoverCargoWorkspace(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("Cargo.toml", []byte(`[workspace]
members = ["core", "web"]
`), false)
	fsys.WriteFile("core/Cargo.toml", []byte(`[package]
name = "core"
version = "0.1.0"
`), false)
	fsys.WriteFile("web/Cargo.toml", []byte(`[package]
name = "web"
version = "0.1.0"

[dependencies]
core = { path = "../core" }
`), false)

	d := New(fsys)
	pkgs, err := d.Discover(".")
	require.NoError(t, err)
	require.Len(t, pkgs, 2)

	var web pkggraph.Package
	for _, p := range pkgs {
		if p.ID.Name == "web" {
			web = p
		}
	}
	require.NotEmpty(t, web.Deps)
	assert.Equal(t, "core", web.Deps[0].Name)
}

func TestDiscoverNpmWorkspace(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("package.json", []byte(`{"name":"root","workspaces":["packages/*"]}`), false)
	fsys.WriteFile("packages/a/package.json", []byte(`{"name":"a","version":"1.0.0"}`), false)
	fsys.WriteFile("packages/b/package.json", []byte(`{"name":"b","version":"1.0.0","dependencies":{"a":"workspace:*"}}`), false)

	d := New(fsys)
	pkgs, err := d.Discover(".")
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
}

func TestDiscoverUnknownDependencyDropped(t *testing.T) {
	fsys := memfs.New()
	fsys.WriteFile("Cargo.toml", []byte(`[workspace]
members = ["core"]
`), false)
	fsys.WriteFile("core/Cargo.toml", []byte(`[package]
name = "core"

[dependencies]
external = { path = "../../outside" }
`), false)

	d := New(fsys)
	pkgs, err := d.Discover(".")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Empty(t, pkgs[0].Deps)
}
