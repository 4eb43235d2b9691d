// Package git reads commit ranges with go-git and rewrites history with the
// git CLI.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// Repo is a repository on disk.
type Repo struct {
	GitPath string        // git executable, "git" if empty
	Timeout time.Duration // per git command, 30s if zero

	root string
	mu   sync.Mutex
	repo *gitlib.Repository
}

// Open finds the repository containing path.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	root := abs
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &Repo{root: root, repo: repo}, nil
}

// Root returns the top level of the working tree.
func (r *Repo) Root() string {
	return r.root
}

// CurrentBranch returns the checked out branch, or "" when HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// CommitRange returns the commits of branch that are not part of parent,
// oldest first. With an empty parent every commit reachable from branch is
// returned.
func (r *Repo) CommitRange(branch, parent string) ([]model.CommitInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tip, err := r.branchCommit(branch)
	if err != nil {
		return nil, err
	}

	var ignore []plumbing.Hash
	if parent != "" {
		base, err := r.branchCommit(parent)
		if err != nil {
			return nil, err
		}
		bases, err := tip.MergeBase(base)
		if err != nil {
			return nil, fmt.Errorf("merge-base %s %s: %w", branch, parent, err)
		}
		for _, b := range bases {
			ignore = append(ignore, b.Hash)
		}
	}

	var out []model.CommitInfo
	iter := object.NewCommitPreorderIter(tip, nil, ignore)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		out = append(out, model.CommitInfo{SHA: c.Hash.String(), Message: summary(c)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", branch, err)
	}
	slices.Reverse(out)
	if out == nil {
		out = []model.CommitInfo{}
	}
	return out, nil
}

// LocalCommits returns the commits on current that no stack branch owns:
// nothing when current is trunk or tracked by gt, otherwise everything on
// top of trunk.
func (r *Repo) LocalCommits(current, trunk string, tracked bool) ([]model.CommitInfo, error) {
	if current == "" || current == trunk || tracked {
		return []model.CommitInfo{}, nil
	}
	return r.CommitRange(current, trunk)
}

func (r *Repo) branchCommit(branch string) (*object.Commit, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("branch %q not found", branch)
		}
		return nil, fmt.Errorf("resolve %s: %w", branch, err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", branch, err)
	}
	return c, nil
}

func summary(c *object.Commit) string {
	return strings.SplitN(strings.TrimSpace(c.Message), "\n", 2)[0]
}

// run executes git in the repository root with extra environment variables.
func (r *Repo) run(ctx context.Context, env []string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := r.GitPath
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = r.root
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	logs.Debug().Strs("args", args).Err(err).Msg("git")
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git %s: timed out after %s", args[0], timeout)
		}
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}
