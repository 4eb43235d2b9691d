package core

import (
	"slices"
)

// Position says which half of a drop target the pointer was released over.
type Position int

const (
	Before Position = iota
	After
)

// PositionFromY returns Before when y lies above the vertical midpoint of a
// target spanning [top, top+height), After otherwise.
func PositionFromY(y, top, height int) Position {
	if 2*(y-top) < height {
		return Before
	}
	return After
}

// PayloadKind identifies what is being dragged.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadBranch
	PayloadCommit
)

// DragPayload is recorded when a drag starts. Index is only meaningful for
// commit payloads.
type DragPayload struct {
	Kind   PayloadKind
	Branch string
	Index  int
}

// BranchPayload is the payload for dragging a branch row.
func BranchPayload(branch string) DragPayload {
	return DragPayload{Kind: PayloadBranch, Branch: branch}
}

// CommitPayload is the payload for dragging a commit row.
func CommitPayload(branch string, index int) DragPayload {
	return DragPayload{Kind: PayloadCommit, Branch: branch, Index: index}
}

// DropTarget is what the pointer was released over.
type DropTarget = DragPayload

// Gesture is the outcome of a completed drag.
type Gesture interface {
	gesture()
}

// BranchReorder asks the host to restack into Order, trunk first.
type BranchReorder struct {
	Order []string
}

// CommitReorder moves a commit within the pending plan of Branch.
type CommitReorder struct {
	Branch string
	From   int
	To     int
}

func (BranchReorder) gesture() {}
func (CommitReorder) gesture() {}

// Interpreter turns two-phase drag gestures into reorder intents.
type Interpreter struct {
	drag *DragPayload
}

// BeginDrag records the payload of a drag in progress.
func (in *Interpreter) BeginDrag(p DragPayload) {
	in.drag = &p
}

// CancelDrag forgets any drag in progress.
func (in *Interpreter) CancelDrag() {
	in.drag = nil
}

// Dragging returns the payload of the drag in progress.
func (in *Interpreter) Dragging() (DragPayload, bool) {
	if in.drag == nil {
		return DragPayload{}, false
	}
	return *in.drag, true
}

// ResolveDrop completes the drag in progress. ok is false when the drop is a
// no-op.
func (in *Interpreter) ResolveDrop(target DropTarget, pos Position, order []string, trunk string) (Gesture, bool) {
	if in.drag == nil {
		return nil, false
	}
	src := *in.drag
	in.drag = nil

	switch target.Kind {
	case PayloadBranch:
		if src.Kind != PayloadBranch {
			return nil, false
		}
		newOrder, ok := BranchDropOrder(order, trunk, src.Branch, target.Branch, pos)
		if !ok {
			return nil, false
		}
		return BranchReorder{Order: newOrder}, true
	case PayloadCommit:
		if src.Kind != PayloadCommit || src.Branch != target.Branch {
			return nil, false
		}
		to, ok := CommitDropIndex(src.Index, target.Index, pos)
		if !ok {
			return nil, false
		}
		return CommitReorder{Branch: target.Branch, From: src.Index, To: to}, true
	}
	return nil, false
}

// BranchDropOrder computes the trunk-first order that results from dropping
// source before or after target in the child-first order. Drops onto trunk,
// onto the source itself or involving unknown branches are rejected.
func BranchDropOrder(order []string, trunk, source, target string, pos Position) ([]string, bool) {
	if source == "" || source == target || target == trunk || source == trunk {
		return nil, false
	}
	from := slices.Index(order, source)
	if from < 0 {
		return nil, false
	}
	rest := slices.Delete(slices.Clone(order), from, from+1)
	at := slices.Index(rest, target)
	if at < 0 {
		return nil, false
	}
	if pos == After {
		at++
	}
	next := slices.Insert(rest, at, source)
	slices.Reverse(next)
	return next, true
}

// CommitDropIndex converts a drop onto the commit at target into the
// destination index expected by Plans.Reorder.
func CommitDropIndex(from, target int, pos Position) (int, bool) {
	if from == target {
		return 0, false
	}
	at := target
	if pos == After {
		at++
	}
	if from < at {
		at--
	}
	if at == from {
		return 0, false
	}
	return at, true
}

// Control is the part of a branch card that received a click.
type Control int

const (
	ControlBody Control = iota
	ControlExpand
	ControlDragHandle
	ControlCommitRow
	ControlCommitList
	ControlSquash
	ControlDrop
	ControlApply
	ControlReset
)

// ClickTarget describes a click on a branch card. Index is the commit index
// for commit-level controls.
type ClickTarget struct {
	Branch  string
	Control Control
	Index   int
}

// ShouldCheckout reports whether a click on branch should check it out.
// Clicks on nested controls never do, nor do clicks on trunk or the branch
// already checked out.
func ShouldCheckout(b ClickTarget, isTrunk, isCurrent bool) bool {
	return b.Control == ControlBody && !isTrunk && !isCurrent
}
