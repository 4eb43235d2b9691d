// Package host answers stack view requests by running gt and git, and pushes
// snapshots back.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/model"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

// Stack is the Graphite side of the host.
type Stack interface {
	Stack(ctx context.Context) (model.StackState, error)
	Sync(ctx context.Context) error
	SubmitStack(ctx context.Context) error
	Restack(ctx context.Context) error
	Checkout(ctx context.Context, branch string) error
	Create(ctx context.Context, name string) error
	Move(ctx context.Context, branch, onto string) error
}

// Repository is the git side of the host.
type Repository interface {
	CurrentBranch() (string, error)
	CommitRange(branch, parent string) ([]model.CommitInfo, error)
	LocalCommits(current, trunk string, tracked bool) ([]model.CommitInfo, error)
	Rebase(ctx context.Context, branch, parent string, actions []model.CommitAction) error
}

// PRLookup finds the PR of a branch. forge.Forge implements it.
type PRLookup interface {
	FetchPR(ctx context.Context, branch string) (*model.PRInfo, error)
}

// Pusher delivers messages to the view.
type Pusher interface {
	Push(protocol.Inbound)
}

// PushFunc adapts a function to Pusher.
type PushFunc func(protocol.Inbound)

func (f PushFunc) Push(m protocol.Inbound) { f(m) }

// Notifier shows one-shot notifications.
type Notifier interface {
	Notify(level, message string)
}

// Prompter asks the user for a line of text. ok is false when the user
// cancelled.
type Prompter interface {
	Prompt(ctx context.Context, title string) (value string, ok bool)
}

// Options wires a Host. PRs may be nil.
type Options struct {
	Stack    Stack
	Repo     Repository
	PRs      PRLookup
	Pusher   Pusher
	Notifier Notifier
	Prompter Prompter
}

// Host runs requests on background goroutines. Mutating requests are
// single-flight: one at a time, each followed by a fresh snapshot.
type Host struct {
	opts Options

	busy atomic.Bool
	wg   sync.WaitGroup

	// pushMu orders the final snapshot of a mutation after any busy
	// re-assertion from a concurrent refresh.
	pushMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a host. Close cancels any running work.
func New(opts Options) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{opts: opts, ctx: ctx, cancel: cancel}
}

// Close cancels running commands and waits for them to finish.
func (h *Host) Close() {
	h.cancel()
	h.wg.Wait()
}

// Wait blocks until every request handed to Handle so far has finished.
func (h *Host) Wait() {
	h.wg.Wait()
}

// Busy reports whether a mutating request is running.
func (h *Host) Busy() bool {
	return h.busy.Load()
}

// Handle starts work for m and returns immediately.
func (h *Host) Handle(m protocol.Outbound) {
	logs.Debug().Str("kind", string(m.Kind())).Msg("request")

	switch m := m.(type) {
	case protocol.Ready:
		h.spawn(func(ctx context.Context) { h.pushState(ctx) })
	case protocol.Refresh:
		h.spawn(func(ctx context.Context) {
			h.opts.Pusher.Push(protocol.Loading{Loading: true})
			h.pushState(ctx)
			// the snapshot clears the view's busy flag; keep it while a
			// mutation still holds the gate
			h.pushMu.Lock()
			if h.busy.Load() {
				h.opts.Pusher.Push(protocol.Loading{Loading: true})
			}
			h.pushMu.Unlock()
		})
	case protocol.GetCommits:
		h.spawn(func(ctx context.Context) { h.getCommits(m) })
	default:
		if protocol.Mutating(m) {
			h.mutate(m)
			return
		}
		logs.Debug().Str("kind", string(m.Kind())).Msg("ignored request")
	}
}

// Refresh pushes a new snapshot unless a mutating request is running, which
// will push its own when done.
func (h *Host) Refresh() {
	if h.busy.Load() {
		return
	}
	h.spawn(func(ctx context.Context) { h.pushState(ctx) })
}

func (h *Host) spawn(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(h.ctx)
	}()
}

func (h *Host) mutate(m protocol.Outbound) {
	if !h.busy.CompareAndSwap(false, true) {
		logs.Warn().Str("kind", string(m.Kind())).Msg("rejected while busy")
		h.notify(protocol.LevelWarn, "Another operation is in progress")
		return
	}
	h.spawn(func(ctx context.Context) {
		released := false
		release := func() {
			if !released {
				released = true
				h.busy.Store(false)
			}
		}
		defer release()

		op, ok := h.prepare(ctx, m)
		if !ok {
			return
		}

		h.opts.Pusher.Push(protocol.Loading{Loading: true})
		if err := op.run(ctx); err != nil {
			logs.Error().Err(err).Str("kind", string(m.Kind())).Msg("operation failed")
			h.notify(protocol.LevelError, fmt.Sprintf("%s failed: %s", op.title, err))
		} else {
			logs.Info().Str("kind", string(m.Kind())).Msg(op.done)
			h.notify(protocol.LevelInfo, op.done)
		}

		st := h.LoadState(ctx)
		h.pushMu.Lock()
		release()
		h.opts.Pusher.Push(protocol.State{State: st})
		h.pushMu.Unlock()
	})
}

type operation struct {
	title string
	done  string
	run   func(ctx context.Context) error
}

// prepare turns m into an operation. ok is false when there is nothing to
// run, as when the user cancels the branch name prompt.
func (h *Host) prepare(ctx context.Context, m protocol.Outbound) (operation, bool) {
	s := h.opts.Stack
	switch m := m.(type) {
	case protocol.Sync:
		return operation{"Sync", "Synced with remote", s.Sync}, true
	case protocol.SubmitStack:
		return operation{"Submit", "Stack submitted", s.SubmitStack}, true
	case protocol.Restack:
		return operation{"Restack", "Stack restacked", s.Restack}, true
	case protocol.Checkout:
		return operation{"Checkout", "Checked out " + m.Branch, func(ctx context.Context) error {
			if m.Branch == "" {
				return errors.New("no branch given")
			}
			return s.Checkout(ctx, m.Branch)
		}}, true
	case protocol.CreateBranch:
		name, ok := h.askBranchName(ctx)
		if !ok {
			return operation{}, false
		}
		return operation{"Create branch", "Created " + name, func(ctx context.Context) error {
			return s.Create(ctx, name)
		}}, true
	case protocol.ReorderBranches:
		return operation{"Reorder", "Branches reordered", func(ctx context.Context) error {
			return h.reorderBranches(ctx, m.Order)
		}}, true
	case protocol.ReorderCommits:
		return operation{"Commit update", "Commits updated on " + m.Branch, func(ctx context.Context) error {
			return h.reorderCommits(ctx, m)
		}}, true
	}
	return operation{}, false
}

// reorderBranches moves every branch onto its predecessor in the trunk-first
// order, then restacks.
func (h *Host) reorderBranches(ctx context.Context, order []string) error {
	if len(order) < 2 {
		return errors.New("nothing to reorder")
	}
	for i := 1; i < len(order); i++ {
		if err := h.opts.Stack.Move(ctx, order[i], order[i-1]); err != nil {
			return fmt.Errorf("move %s onto %s: %w", order[i], order[i-1], err)
		}
	}
	return h.opts.Stack.Restack(ctx)
}

func (h *Host) reorderCommits(ctx context.Context, m protocol.ReorderCommits) error {
	if m.Branch == "" {
		return errors.New("no branch given")
	}
	if len(m.CommitActions) == 0 {
		return errors.New("no commits given")
	}
	if err := h.opts.Repo.Rebase(ctx, m.Branch, m.Parent, m.CommitActions); err != nil {
		return err
	}
	return h.opts.Stack.Restack(ctx)
}

func (h *Host) askBranchName(ctx context.Context) (string, bool) {
	if h.opts.Prompter == nil {
		logs.Warn().Msg("no prompter to ask for a branch name")
		return "", false
	}
	title := "New branch name"
	for {
		name, ok := h.opts.Prompter.Prompt(ctx, title)
		if !ok {
			return "", false
		}
		if err := ValidateBranchName(name); err != nil {
			title = "New branch name (" + err.Error() + ")"
			continue
		}
		return name, true
	}
}

// ValidateBranchName rejects empty names and names containing whitespace.
func ValidateBranchName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.New("name cannot contain spaces")
	}
	return nil
}

func (h *Host) getCommits(m protocol.GetCommits) {
	commits, err := h.opts.Repo.CommitRange(m.Branch, m.Parent)
	if err != nil {
		logs.Warn().Err(err).Str("branch", m.Branch).Str("parent", m.Parent).Msg("commit range")
		commits = []model.CommitInfo{}
	}
	h.opts.Pusher.Push(protocol.Commits{Branch: m.Branch, Commits: commits})
}

func (h *Host) pushState(ctx context.Context) {
	h.opts.Pusher.Push(protocol.State{State: h.LoadState(ctx)})
}

// LoadState builds a snapshot. Any failure reading the stack is reported in
// the snapshot itself.
func (h *Host) LoadState(ctx context.Context) model.StackState {
	st, err := h.opts.Stack.Stack(ctx)
	if err != nil {
		logs.Error().Err(err).Msg("read stack")
		return model.ErrorState(err.Error())
	}

	if h.opts.PRs != nil {
		h.enrichPRs(ctx, st.Branches)
	}

	st.LocalCommits = []model.CommitInfo{}
	if cur, err := h.opts.Repo.CurrentBranch(); err != nil {
		logs.Warn().Err(err).Msg("current branch")
	} else {
		_, tracked := st.Branch(cur)
		local, err := h.opts.Repo.LocalCommits(cur, st.Trunk, tracked)
		if err != nil {
			logs.Warn().Err(err).Str("branch", cur).Msg("local commits")
		} else {
			st.LocalCommits = local
		}
	}
	return st
}

func (h *Host) enrichPRs(ctx context.Context, branches []model.BranchInfo) {
	var wg sync.WaitGroup
	for i := range branches {
		if branches[i].IsTrunk {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pr, err := h.opts.PRs.FetchPR(ctx, branches[i].Name)
			if err != nil {
				logs.Debug().Err(err).Str("branch", branches[i].Name).Msg("pr lookup")
				return
			}
			branches[i].PR = pr
		}(i)
	}
	wg.Wait()
}

func (h *Host) notify(level, msg string) {
	if h.opts.Notifier != nil {
		h.opts.Notifier.Notify(level, msg)
	}
}
