package core

import (
	"errors"
	"slices"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// Session owns every store behind one stack view. Create one per view; all
// methods must be called from the same goroutine.
type Session struct {
	state    model.StackState
	hasState bool
	busy     bool

	plans *Plans
	cache *Cache
	drag  Interpreter
	send  *Dispatcher

	submitErrs map[string]error
}

// NewSession returns a session that sends requests to out.
func NewSession(out Sender) *Session {
	plans := NewPlans()
	return &Session{
		plans:      plans,
		cache:      NewCache(plans),
		send:       NewDispatcher(out),
		submitErrs: make(map[string]error),
	}
}

// Start announces the view to the host, which answers with a snapshot.
func (s *Session) Start() {
	s.busy = true
	s.send.Ready()
}

func (s *Session) State() model.StackState { return s.state }

// HasState reports whether a snapshot has been received yet.
func (s *Session) HasState() bool { return s.hasState }

// Busy reports whether the host said it is working.
func (s *Session) Busy() bool { return s.busy }

func (s *Session) IsExpanded(branch string) bool { return s.cache.IsExpanded(branch) }

func (s *Session) IsLoadingCommits(branch string) bool { return s.cache.IsLoading(branch) }

func (s *Session) Commits(branch string) ([]model.CommitInfo, bool) { return s.cache.Commits(branch) }

func (s *Session) Pending(branch string) []PlanEntry { return s.plans.Pending(branch) }

// HasChanges reports whether branch has unapplied commit edits.
func (s *Session) HasChanges(branch string) bool { return s.plans.IsDirty(branch) }

// SubmitError returns the message to show under branch after a rejected
// apply, or "".
func (s *Session) SubmitError(branch string) string {
	err, ok := s.submitErrs[branch]
	if !ok {
		return ""
	}
	if errors.Is(err, ErrNoRetainedCommits) {
		return "Cannot drop all commits in a branch"
	}
	return err.Error()
}

func (s *Session) Refresh()      { s.send.Refresh() }
func (s *Session) Sync()         { s.send.Sync() }
func (s *Session) SubmitStack()  { s.send.SubmitStack() }
func (s *Session) Restack()      { s.send.Restack() }
func (s *Session) CreateBranch() { s.send.CreateBranch() }

// ToggleExpand expands or collapses branch, requesting its commits the first
// time it is expanded. Trunk cannot be expanded.
func (s *Session) ToggleExpand(branch string) {
	b, ok := s.state.Branch(branch)
	if !ok || b.IsTrunk {
		return
	}
	if _, fetch := s.cache.ToggleExpand(branch); fetch {
		s.send.GetCommits(branch, b.ParentName)
	}
}

// Checkout switches to branch unless it is trunk or already current.
func (s *Session) Checkout(branch string) {
	s.Click(ClickTarget{Branch: branch, Control: ControlBody})
}

// Click routes a click on a branch card to the control that owns it.
func (s *Session) Click(t ClickTarget) {
	b, ok := s.state.Branch(t.Branch)
	if !ok {
		return
	}
	switch t.Control {
	case ControlBody:
		if ShouldCheckout(t, b.IsTrunk, b.IsCurrent) {
			s.send.Checkout(b.Name)
		}
	case ControlExpand:
		s.ToggleExpand(b.Name)
	case ControlSquash:
		s.ToggleAction(b.Name, t.Index, model.ActionFixup)
	case ControlDrop:
		s.ToggleAction(b.Name, t.Index, model.ActionDrop)
	case ControlApply:
		s.ApplyCommitChanges(b.Name)
	case ControlReset:
		s.ResetCommitChanges(b.Name)
	}
}

// ToggleAction marks the commit at index with action, or back to pick.
func (s *Session) ToggleAction(branch string, index int, action model.Action) {
	s.plans.ToggleAction(branch, index, action)
	delete(s.submitErrs, branch)
}

// ApplyCommitChanges sends the pending plan of branch to the host. A plan
// that drops every commit is kept back and reported by SubmitError.
func (s *Session) ApplyCommitChanges(branch string) {
	b, ok := s.state.Branch(branch)
	if !ok || b.IsTrunk {
		return
	}
	if err := s.send.ApplyCommitChanges(s.plans, branch, b.ParentName); err != nil {
		s.submitErrs[branch] = err
		return
	}
	delete(s.submitErrs, branch)
}

// ResetCommitChanges discards the pending edits of branch.
func (s *Session) ResetCommitChanges(branch string) {
	s.plans.Reset(branch)
	delete(s.submitErrs, branch)
}

// BeginDrag starts dragging p. Trunk cannot be dragged.
func (s *Session) BeginDrag(p DragPayload) {
	if p.Kind == PayloadBranch {
		if b, ok := s.state.Branch(p.Branch); !ok || b.IsTrunk {
			return
		}
	}
	s.drag.BeginDrag(p)
}

func (s *Session) CancelDrag() { s.drag.CancelDrag() }

func (s *Session) Dragging() (DragPayload, bool) { return s.drag.Dragging() }

// Drop completes the drag in progress over target.
func (s *Session) Drop(target DropTarget, pos Position) {
	g, ok := s.drag.ResolveDrop(target, pos, s.state.Names(), s.state.Trunk)
	if !ok {
		return
	}
	switch g := g.(type) {
	case BranchReorder:
		s.send.ReorderBranches(g.Order)
	case CommitReorder:
		s.plans.Reorder(g.Branch, g.From, g.To)
		delete(s.submitErrs, g.Branch)
	}
}

// MoveBranch moves branch one slot towards the top of the list (delta < 0)
// or the bottom (delta > 0).
func (s *Session) MoveBranch(branch string, delta int) {
	names := s.state.Names()
	i := slices.Index(names, branch)
	if i < 0 || delta == 0 {
		return
	}
	j := i + sign(delta)
	if j < 0 || j >= len(names) {
		return
	}
	s.BeginDrag(BranchPayload(branch))
	s.Drop(BranchPayload(names[j]), positionFor(delta))
}

// MoveCommit moves the commit at index of branch one slot up or down.
func (s *Session) MoveCommit(branch string, index, delta int) {
	n := len(s.plans.Pending(branch))
	j := index + sign(delta)
	if delta == 0 || index < 0 || index >= n || j < 0 || j >= n {
		return
	}
	s.BeginDrag(CommitPayload(branch, index))
	s.Drop(CommitPayload(branch, j), positionFor(delta))
}

func positionFor(delta int) Position {
	if delta < 0 {
		return Before
	}
	return After
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
