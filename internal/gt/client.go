// Package gt runs the Graphite CLI.
package gt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// DefaultTimeout bounds every gt invocation unless the client overrides it.
const DefaultTimeout = 30 * time.Second

// Client runs gt in a repository.
type Client struct {
	Path    string        // gt executable, "gt" if empty
	Dir     string        // repository the commands run in
	Timeout time.Duration // per command, DefaultTimeout if zero
}

// run executes gt --no-interactive args and returns stdout. On failure the
// error carries stderr, or the process error when stderr is empty.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := c.Path
	if bin == "" {
		bin = "gt"
	}
	all := append([]string{"--no-interactive"}, args...)

	cmd := exec.CommandContext(ctx, bin, all...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logs.Debug().
		Strs("args", args).
		Dur("took", time.Since(start)).
		Err(err).
		Msg("gt")

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("gt %s: timed out after %s", args[0], timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", fmt.Errorf("gt %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

// Trunk returns the name of the trunk branch.
func (c *Client) Trunk(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "trunk")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Stack reads trunk and the branch list concurrently and returns the parsed
// snapshot, without PRs or local commits. Branch parents are linked and the
// current branch falls back to trunk.
func (c *Client) Stack(ctx context.Context) (model.StackState, error) {
	var (
		wg             sync.WaitGroup
		trunk, logOut  string
		trunkErr, lErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		trunk, trunkErr = c.Trunk(ctx)
	}()
	go func() {
		defer wg.Done()
		logOut, lErr = c.run(ctx, "log", "short")
	}()
	wg.Wait()

	if trunkErr != nil {
		return model.StackState{}, trunkErr
	}
	if lErr != nil {
		return model.StackState{}, lErr
	}

	branches := ParseLogShort(logOut, trunk)
	model.LinkParents(branches)

	current := trunk
	for _, b := range branches {
		if b.IsCurrent {
			current = b.Name
			break
		}
	}
	return model.StackState{
		Trunk:         trunk,
		CurrentBranch: current,
		Branches:      branches,
		LocalCommits:  []model.CommitInfo{},
	}, nil
}

// Sync pulls trunk and cleans up merged branches.
func (c *Client) Sync(ctx context.Context) error {
	_, err := c.run(ctx, "repo", "sync", "--force")
	return err
}

// SubmitStack pushes every branch of the stack and opens or updates PRs.
func (c *Client) SubmitStack(ctx context.Context) error {
	_, err := c.run(ctx, "stack", "submit", "--no-edit")
	return err
}

func (c *Client) Restack(ctx context.Context) error {
	_, err := c.run(ctx, "restack")
	return err
}

func (c *Client) Checkout(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "checkout", branch)
	return err
}

// Create makes a new branch on top of the current one, committing all
// changes in the working tree.
func (c *Client) Create(ctx context.Context, name string) error {
	_, err := c.run(ctx, "create", name, "--all")
	return err
}

// Move re-parents branch onto onto, rebasing its descendants along.
func (c *Client) Move(ctx context.Context, branch, onto string) error {
	_, err := c.run(ctx, "move", "--source", branch, "--onto", onto)
	return err
}
