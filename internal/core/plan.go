// Package core is the interaction state machine behind the stack view: the
// commit cache, per-branch edit plans, gesture interpretation, outbound
// requests and reconciliation of host pushes.
package core

import (
	"errors"
	"slices"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

var (
	// ErrNoRetainedCommits is returned when a plan would drop every commit
	// of its branch.
	ErrNoRetainedCommits = errors.New("cannot drop all commits in a branch")
	// ErrNoPlan is returned when a branch has no edit plan.
	ErrNoPlan = errors.New("no edit plan for branch")
)

// PlanEntry is one commit in an edit plan.
type PlanEntry struct {
	Commit model.CommitInfo
	Action model.Action
}

type plan struct {
	baseline []model.CommitInfo
	pending  []PlanEntry
}

// Plans holds the pending edit plan of every branch whose commits have been
// fetched.
type Plans struct {
	plans map[string]*plan
}

// NewPlans returns an empty plan store.
func NewPlans() *Plans {
	return &Plans{plans: make(map[string]*plan)}
}

// Initialize replaces the plan for branch with an identity plan over commits.
func (p *Plans) Initialize(branch string, commits []model.CommitInfo) {
	p.plans[branch] = &plan{
		baseline: slices.Clone(commits),
		pending:  identity(commits),
	}
}

// Reset discards pending edits, restoring the identity plan.
func (p *Plans) Reset(branch string) {
	pl, ok := p.plans[branch]
	if !ok {
		return
	}
	pl.pending = identity(pl.baseline)
}

// Has reports whether a plan exists for branch.
func (p *Plans) Has(branch string) bool {
	_, ok := p.plans[branch]
	return ok
}

// Pending returns a copy of the pending plan for branch.
func (p *Plans) Pending(branch string) []PlanEntry {
	pl, ok := p.plans[branch]
	if !ok {
		return nil
	}
	return slices.Clone(pl.pending)
}

// ToggleAction sets the entry at index to target, or back to pick when it
// already has that action. Out of range indexes and unknown branches are
// ignored.
func (p *Plans) ToggleAction(branch string, index int, target model.Action) {
	if target != model.ActionFixup && target != model.ActionDrop {
		return
	}
	pl, ok := p.plans[branch]
	if !ok || index < 0 || index >= len(pl.pending) {
		return
	}
	e := &pl.pending[index]
	if e.Action == target {
		e.Action = model.ActionPick
	} else {
		e.Action = target
	}
}

// Reorder moves the entry at from so that it ends up at position to of the
// resulting sequence. to is clamped to the valid range.
func (p *Plans) Reorder(branch string, from, to int) {
	pl, ok := p.plans[branch]
	if !ok || from < 0 || from >= len(pl.pending) {
		return
	}
	e := pl.pending[from]
	rest := slices.Delete(pl.pending, from, from+1)
	to = max(0, min(to, len(rest)))
	pl.pending = slices.Insert(rest, to, e)
}

// IsDirty reports whether the pending plan differs from the fetched commits
// in length, order or any non-pick action.
func (p *Plans) IsDirty(branch string) bool {
	pl, ok := p.plans[branch]
	if !ok {
		return false
	}
	if len(pl.pending) != len(pl.baseline) {
		return true
	}
	for i, e := range pl.pending {
		if e.Commit.SHA != pl.baseline[i].SHA || e.Action != model.ActionPick {
			return true
		}
	}
	return false
}

// BuildSubmission returns the plan as an ordered action list. A plan that
// drops every commit, including an empty plan, is rejected.
func (p *Plans) BuildSubmission(branch string) ([]model.CommitAction, error) {
	pl, ok := p.plans[branch]
	if !ok {
		return nil, ErrNoPlan
	}
	out := make([]model.CommitAction, len(pl.pending))
	retained := false
	for i, e := range pl.pending {
		out[i] = model.CommitAction{SHA: e.Commit.SHA, Action: e.Action}
		if e.Action != model.ActionDrop {
			retained = true
		}
	}
	if !retained {
		return nil, ErrNoRetainedCommits
	}
	return out, nil
}

// Clear drops every plan.
func (p *Plans) Clear() {
	clear(p.plans)
}

func identity(commits []model.CommitInfo) []PlanEntry {
	entries := make([]PlanEntry, len(commits))
	for i, c := range commits {
		entries[i] = PlanEntry{Commit: c, Action: model.ActionPick}
	}
	return entries
}
