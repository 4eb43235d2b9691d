package forge

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// lookupTimeout bounds a single PR lookup.
const lookupTimeout = 10 * time.Second

// Forge looks up pull/merge requests on GitHub or GitLab.
type Forge interface {
	Kind() string // "gitlab" | "github"
	// FetchPR returns the PR for branch, or nil when there is none or the
	// forge CLI is unavailable.
	FetchPR(ctx context.Context, branch string) (*model.PRInfo, error)
}

// Detect returns the appropriate Forge for the repo at repoRoot,
// or nil if the remote is unrecognised or no remote exists.
func Detect(repoRoot string) Forge {
	out, err := exec.Command("git", "-C", repoRoot, "remote", "get-url", "origin").Output()
	if err != nil {
		return nil
	}
	remote := strings.ToLower(strings.TrimSpace(string(out)))

	switch {
	case strings.Contains(remote, "github.com"):
		return &gitHub{dir: repoRoot}
	case strings.Contains(remote, "gitlab"):
		return &gitLab{dir: repoRoot}
	default:
		// Last-resort probe: if glab is configured for this repo, treat as GitLab.
		probe := exec.Command("glab", "repo", "view")
		probe.Dir = repoRoot
		if probe.Run() == nil {
			return &gitLab{dir: repoRoot}
		}
		return nil
	}
}

// run executes a forge CLI in dir and returns stdout.
func run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}
