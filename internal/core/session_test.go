package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bennycortese/graphite-control-plane/internal/model"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

type recorder struct {
	sent []protocol.Outbound
}

func (r *recorder) Send(m protocol.Outbound) { r.sent = append(r.sent, m) }

func (r *recorder) reset() { r.sent = nil }

func stack() model.StackState {
	branches := []model.BranchInfo{
		{Name: "feat-c"},
		{Name: "feat-b", IsCurrent: true},
		{Name: "feat-a"},
		{Name: "main", IsTrunk: true},
	}
	model.LinkParents(branches)
	return model.StackState{Trunk: "main", CurrentBranch: "feat-b", Branches: branches}
}

func newSession(t *testing.T) (*Session, *recorder) {
	t.Helper()
	r := &recorder{}
	s := NewSession(r)
	s.Start()
	s.Receive(protocol.State{State: stack()})
	require.Equal(t, []protocol.Outbound{protocol.Ready{}}, r.sent)
	r.reset()
	return s, r
}

func expandWith(s *Session, branch string, cs []model.CommitInfo) {
	s.ToggleExpand(branch)
	s.Receive(protocol.Commits{Branch: branch, Commits: cs})
}

func TestStartIsBusyUntilState(t *testing.T) {
	r := &recorder{}
	s := NewSession(r)
	s.Start()
	assert.True(t, s.Busy())
	assert.False(t, s.HasState())

	s.Receive(protocol.State{State: stack()})
	assert.False(t, s.Busy())
	assert.True(t, s.HasState())
}

func TestLoadingOnlyTouchesBusy(t *testing.T) {
	s, _ := newSession(t)
	expandWith(s, "feat-a", commits("a1", "a2"))
	s.ToggleAction("feat-a", 0, model.ActionDrop)

	s.Receive(protocol.Loading{Loading: true})
	assert.True(t, s.Busy())
	assert.True(t, s.HasChanges("feat-a"))

	s.Receive(protocol.Loading{Loading: false})
	assert.False(t, s.Busy())
	assert.True(t, s.HasChanges("feat-a"))
}

func TestExpandFetchesOnce(t *testing.T) {
	s, r := newSession(t)

	s.ToggleExpand("feat-b")
	assert.Equal(t, []protocol.Outbound{protocol.GetCommits{Branch: "feat-b", Parent: "feat-a"}}, r.sent)
	assert.True(t, s.IsLoadingCommits("feat-b"))

	s.Receive(protocol.Commits{Branch: "feat-b", Commits: commits("b1")})
	assert.False(t, s.IsLoadingCommits("feat-b"))

	r.reset()
	s.ToggleExpand("feat-b")
	s.ToggleExpand("feat-b")
	assert.Empty(t, r.sent, "cached commits are reused after collapse")
	assert.True(t, s.IsExpanded("feat-b"))
}

func TestCommitsFromBeforeRefreshAreDropped(t *testing.T) {
	s, r := newSession(t)
	s.ToggleExpand("feat-a")
	s.ToggleExpand("feat-a")

	s.Receive(protocol.State{State: stack()})
	s.Receive(protocol.Commits{Branch: "feat-a", Commits: commits("old1", "old2")})
	_, cached := s.Commits("feat-a")
	assert.False(t, cached)

	r.reset()
	s.ToggleExpand("feat-a")
	require.Len(t, r.sent, 1)
	assert.Equal(t, "feat-a", r.sent[0].(protocol.GetCommits).Branch)
}

func TestStaleReplyKeepsEdits(t *testing.T) {
	s, _ := newSession(t)
	s.ToggleExpand("feat-b")
	s.Receive(protocol.State{State: stack()}) // refetches feat-b

	s.Receive(protocol.Commits{Branch: "feat-b", Commits: commits("old")})
	assert.True(t, s.IsLoadingCommits("feat-b"))

	s.Receive(protocol.Commits{Branch: "feat-b", Commits: commits("b1", "b2")})
	s.ToggleAction("feat-b", 1, model.ActionDrop)
	require.True(t, s.HasChanges("feat-b"))

	s.Receive(protocol.Commits{Branch: "feat-b", Commits: commits("b1", "b2")})
	assert.True(t, s.HasChanges("feat-b"), "unrequested reply leaves the plan alone")
}

func TestTrunkHasNoCommitAffordances(t *testing.T) {
	s, r := newSession(t)
	s.ToggleExpand("main")
	s.Click(ClickTarget{Branch: "main", Control: ControlBody})
	s.BeginDrag(BranchPayload("main"))
	s.Drop(BranchPayload("feat-c"), Before)
	s.ApplyCommitChanges("main")

	assert.Empty(t, r.sent)
	assert.False(t, s.IsExpanded("main"))
}

func TestClickCheckout(t *testing.T) {
	s, r := newSession(t)

	s.Click(ClickTarget{Branch: "feat-c", Control: ControlBody})
	s.Click(ClickTarget{Branch: "feat-b", Control: ControlBody})
	s.Click(ClickTarget{Branch: "feat-c", Control: ControlDragHandle})
	s.Click(ClickTarget{Branch: "feat-c", Control: ControlCommitRow})

	assert.Equal(t, []protocol.Outbound{protocol.Checkout{Branch: "feat-c"}}, r.sent)
}

func TestClickExpandDoesNotCheckout(t *testing.T) {
	s, r := newSession(t)
	s.Click(ClickTarget{Branch: "feat-c", Control: ControlExpand})

	require.Len(t, r.sent, 1)
	assert.IsType(t, protocol.GetCommits{}, r.sent[0])
}

func TestBranchDropSendsTrunkFirstOrder(t *testing.T) {
	s, r := newSession(t)

	s.BeginDrag(BranchPayload("feat-c"))
	s.Drop(BranchPayload("feat-a"), After)

	assert.Equal(t, []protocol.Outbound{
		protocol.ReorderBranches{Order: []string{"main", "feat-c", "feat-a", "feat-b"}},
	}, r.sent)
	assert.Equal(t, []string{"feat-c", "feat-b", "feat-a", "main"}, s.State().Names(), "no optimistic reorder")
}

func TestMoveBranch(t *testing.T) {
	s, r := newSession(t)

	s.MoveBranch("feat-b", -1)
	s.MoveBranch("feat-a", 1)  // onto trunk
	s.MoveBranch("feat-c", -1) // already on top

	assert.Equal(t, []protocol.Outbound{
		protocol.ReorderBranches{Order: []string{"main", "feat-a", "feat-c", "feat-b"}},
	}, r.sent)
}

func TestCommitDropReordersPlan(t *testing.T) {
	s, r := newSession(t)
	expandWith(s, "feat-a", commits("a1", "a2", "a3"))
	r.reset()

	s.BeginDrag(CommitPayload("feat-a", 0))
	s.Drop(CommitPayload("feat-a", 2), After)

	assert.Empty(t, r.sent)
	assert.True(t, s.HasChanges("feat-a"))
	var got []string
	for _, e := range s.Pending("feat-a") {
		got = append(got, e.Commit.SHA)
	}
	assert.Equal(t, []string{"a2", "a3", "a1"}, got)
}

func TestMoveCommit(t *testing.T) {
	s, _ := newSession(t)
	expandWith(s, "feat-a", commits("a1", "a2", "a3"))

	s.MoveCommit("feat-a", 0, 1)
	s.MoveCommit("feat-a", 0, -1)
	var got []string
	for _, e := range s.Pending("feat-a") {
		got = append(got, e.Commit.SHA)
	}
	assert.Equal(t, []string{"a2", "a1", "a3"}, got)
}

func TestApplySendsPlan(t *testing.T) {
	s, r := newSession(t)
	expandWith(s, "feat-a", commits("a1", "a2"))
	r.reset()

	s.Click(ClickTarget{Branch: "feat-a", Control: ControlSquash, Index: 1})
	s.Click(ClickTarget{Branch: "feat-a", Control: ControlApply})

	assert.Equal(t, []protocol.Outbound{protocol.ReorderCommits{
		Branch: "feat-a",
		Parent: "main",
		CommitActions: []model.CommitAction{
			{SHA: "a1", Action: model.ActionPick},
			{SHA: "a2", Action: model.ActionFixup},
		},
	}}, r.sent)
}

func TestApplyDropAllStaysLocal(t *testing.T) {
	s, r := newSession(t)
	expandWith(s, "feat-a", commits("a1", "a2"))
	r.reset()

	s.Click(ClickTarget{Branch: "feat-a", Control: ControlDrop, Index: 0})
	s.Click(ClickTarget{Branch: "feat-a", Control: ControlDrop, Index: 1})
	s.ApplyCommitChanges("feat-a")

	assert.Empty(t, r.sent)
	assert.Equal(t, "Cannot drop all commits in a branch", s.SubmitError("feat-a"))
	assert.Empty(t, s.SubmitError("feat-b"))

	s.Click(ClickTarget{Branch: "feat-a", Control: ControlReset})
	assert.Empty(t, s.SubmitError("feat-a"))
	assert.False(t, s.HasChanges("feat-a"))
}

func TestStatePushClearsPlans(t *testing.T) {
	s, r := newSession(t)
	expandWith(s, "feat-a", commits("a1", "a2"))
	expandWith(s, "feat-c", commits("c1"))
	s.ToggleExpand("feat-c")
	s.ToggleAction("feat-a", 0, model.ActionFixup)
	s.MoveCommit("feat-a", 0, 1)
	require.True(t, s.HasChanges("feat-a"))
	r.reset()

	next := stack()
	next.Branches = append(next.Branches[:1], next.Branches[2:]...) // feat-b merged
	model.LinkParents(next.Branches)
	s.Receive(protocol.State{State: next})

	for _, b := range next.Branches {
		assert.False(t, s.HasChanges(b.Name), b.Name)
		_, cached := s.Commits(b.Name)
		assert.False(t, cached, b.Name)
	}
	assert.Nil(t, s.Pending("feat-a"))

	// still-expanded branches fetch again against their new parent
	assert.Equal(t, []protocol.Outbound{protocol.GetCommits{Branch: "feat-a", Parent: "main"}}, r.sent)
	assert.True(t, s.IsLoadingCommits("feat-a"))

	s.Receive(protocol.Commits{Branch: "feat-a", Commits: commits("a9")})
	assert.False(t, s.HasChanges("feat-a"))
	require.Len(t, s.Pending("feat-a"), 1)
	assert.Equal(t, "a9", s.Pending("feat-a")[0].Commit.SHA)
}

func TestStatePushPrunesVanishedExpansions(t *testing.T) {
	s, r := newSession(t)
	expandWith(s, "feat-b", commits("b1"))
	r.reset()

	next := stack()
	next.Branches = next.Branches[2:]
	s.Receive(protocol.State{State: next})

	assert.False(t, s.IsExpanded("feat-b"))
	assert.Empty(t, r.sent)
}

func TestStatePushCancelsDrag(t *testing.T) {
	s, r := newSession(t)
	s.BeginDrag(BranchPayload("feat-c"))
	s.Receive(protocol.State{State: stack()})
	s.Drop(BranchPayload("feat-a"), After)
	assert.Empty(t, r.sent)
}

func TestUnknownInboundIgnored(t *testing.T) {
	s, r := newSession(t)
	expandWith(s, "feat-a", commits("a1"))
	r.reset()

	s.Receive(protocol.Unknown{Type: "telemetry"})
	s.Receive(protocol.Notify{Level: protocol.LevelInfo, Message: "hi"})

	assert.Empty(t, r.sent)
	_, cached := s.Commits("feat-a")
	assert.True(t, cached)
}

func TestBulkActions(t *testing.T) {
	s, r := newSession(t)
	s.Sync()
	s.SubmitStack()
	s.Restack()
	s.CreateBranch()
	s.Refresh()

	assert.Equal(t, []protocol.Outbound{
		protocol.Sync{}, protocol.SubmitStack{}, protocol.Restack{}, protocol.CreateBranch{}, protocol.Refresh{},
	}, r.sent)
}

func TestErrorSnapshot(t *testing.T) {
	s, _ := newSession(t)
	s.Receive(protocol.State{State: model.ErrorState("gt: command not found")})

	assert.Equal(t, "gt: command not found", s.State().Error)
	assert.Empty(t, s.State().Branches)
	assert.False(t, s.Busy())
}
