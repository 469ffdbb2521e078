// Package gitrevision is the default revision.Adapter, backed by
// github.com/go-git/go-git/v5 rather than shelling out to the git binary.
package gitrevision

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Adapter wraps a go-git repository as a revision.Adapter.
type Adapter struct {
	repo *git.Repository
}

// Open opens the git repository rooted at path.
func Open(path string) (*Adapter, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitrevision: opening repository: %w", err)
	}
	return &Adapter{repo: repo}, nil
}

func (a *Adapter) resolve(rev string) (*object.Commit, error) {
	hash, err := a.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("gitrevision: resolving %q: %w", rev, err)
	}
	commit, err := a.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("gitrevision: loading commit for %q: %w", rev, err)
	}
	return commit, nil
}

// ChangedFiles returns the paths that differ between fromRev and toRev.
// toRev == "" means the current working tree: the paths that differ between
// fromRev and HEAD, followed by every path the worktree status reports as
// not unmodified.
func (a *Adapter) ChangedFiles(fromRev, toRev string) ([]string, error) {
	fromCommit, err := a.resolve(fromRev)
	if err != nil {
		return nil, err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("gitrevision: tree for %q: %w", fromRev, err)
	}

	var local []string
	if toRev == "" {
		local, err = a.diffWorkingTree(fromTree)
		if err != nil {
			return nil, err
		}
		toRev = "HEAD"
	}

	toCommit, err := a.resolve(toRev)
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("gitrevision: tree for %q: %w", toRev, err)
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("gitrevision: computing diff: %w", err)
	}
	return append(pathsOf(changes), local...), nil
}

func (a *Adapter) diffWorkingTree(fromTree *object.Tree) ([]string, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitrevision: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("gitrevision: status: %w", err)
	}
	seen := make(map[string]bool)
	var out []string
	for path, s := range status {
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	_ = fromTree // the working-tree diff path intentionally ignores fromTree: status already reports every local modification
	return out, nil
}

func pathsOf(changes object.Changes) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			continue
		}
		var p string
		switch action {
		case merkletrieDelete:
			p = c.From.Name
		default:
			p = c.To.Name
			if p == "" {
				p = c.From.Name
			}
		}
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// merkletrieDelete mirrors merkletrie.Delete's numeric value (2) without
// importing the merkletrie package solely for this constant.
const merkletrieDelete = 2

// CurrentHead returns the HEAD revision ID.
func (a *Adapter) CurrentHead() (string, error) {
	head, err := a.repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitrevision: resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// IsDirty reports whether the working tree has uncommitted modifications.
func (a *Adapter) IsDirty() (bool, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("gitrevision: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("gitrevision: status: %w", err)
	}
	return !status.IsClean(), nil
}

// UntrackedFiles returns paths present on disk but not tracked by git.
func (a *Adapter) UntrackedFiles() ([]string, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitrevision: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("gitrevision: status: %w", err)
	}
	var out []string
	for path, s := range status {
		if s.Worktree == git.Untracked {
			out = append(out, path)
		}
	}
	return out, nil
}
