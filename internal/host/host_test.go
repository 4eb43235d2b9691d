package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bennycortese/graphite-control-plane/internal/model"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

type fakeStack struct {
	mu    sync.Mutex
	calls []string

	stackFn   func() (model.StackState, error)
	restackFn func(ctx context.Context) error
	moveErr   error
}

func (f *fakeStack) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeStack) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStack) Stack(ctx context.Context) (model.StackState, error) {
	if f.stackFn != nil {
		return f.stackFn()
	}
	branches := []model.BranchInfo{{Name: "feat"}, {Name: "main", IsTrunk: true}}
	model.LinkParents(branches)
	return model.StackState{Trunk: "main", CurrentBranch: "feat", Branches: branches}, nil
}

func (f *fakeStack) Sync(ctx context.Context) error        { f.record("sync"); return nil }
func (f *fakeStack) SubmitStack(ctx context.Context) error { f.record("submit"); return nil }
func (f *fakeStack) Restack(ctx context.Context) error {
	f.record("restack")
	if f.restackFn != nil {
		return f.restackFn(ctx)
	}
	return nil
}
func (f *fakeStack) Checkout(ctx context.Context, b string) error { f.record("checkout " + b); return nil }
func (f *fakeStack) Create(ctx context.Context, n string) error   { f.record("create " + n); return nil }
func (f *fakeStack) Move(ctx context.Context, b, onto string) error {
	f.record("move " + b + " " + onto)
	return f.moveErr
}

type fakeRepo struct {
	current   string
	rangeFn   func(branch, parent string) ([]model.CommitInfo, error)
	rebaseErr error
	rebased   []model.CommitAction
}

func (r *fakeRepo) CurrentBranch() (string, error) { return r.current, nil }

func (r *fakeRepo) CommitRange(branch, parent string) ([]model.CommitInfo, error) {
	if r.rangeFn != nil {
		return r.rangeFn(branch, parent)
	}
	return []model.CommitInfo{{SHA: "c1", Message: "one"}}, nil
}

func (r *fakeRepo) LocalCommits(current, trunk string, tracked bool) ([]model.CommitInfo, error) {
	if tracked || current == trunk {
		return []model.CommitInfo{}, nil
	}
	return []model.CommitInfo{{SHA: "l1", Message: "local"}}, nil
}

func (r *fakeRepo) Rebase(ctx context.Context, branch, parent string, actions []model.CommitAction) error {
	r.rebased = actions
	return r.rebaseErr
}

type recorder struct {
	mu      sync.Mutex
	pushed  []protocol.Inbound
	notices []protocol.Notify
}

func (r *recorder) Push(m protocol.Inbound) {
	r.mu.Lock()
	r.pushed = append(r.pushed, m)
	r.mu.Unlock()
}

func (r *recorder) Notify(level, msg string) {
	r.mu.Lock()
	r.notices = append(r.notices, protocol.Notify{Level: level, Message: msg})
	r.mu.Unlock()
}

func (r *recorder) Pushed() []protocol.Inbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Inbound(nil), r.pushed...)
}

func (r *recorder) Notices() []protocol.Notify {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Notify(nil), r.notices...)
}

type promptFunc func(ctx context.Context, title string) (string, bool)

func (f promptFunc) Prompt(ctx context.Context, title string) (string, bool) { return f(ctx, title) }

func newHost(t *testing.T, s *fakeStack, r *fakeRepo, p Prompter) (*Host, *recorder) {
	t.Helper()
	rec := &recorder{}
	h := New(Options{Stack: s, Repo: r, Pusher: rec, Notifier: rec, Prompter: p})
	t.Cleanup(h.Close)
	return h, rec
}

func lastState(t *testing.T, pushed []protocol.Inbound) model.StackState {
	t.Helper()
	for i := len(pushed) - 1; i >= 0; i-- {
		if st, ok := pushed[i].(protocol.State); ok {
			return st.State
		}
	}
	t.Fatal("no state pushed")
	return model.StackState{}
}

func TestReadyPushesState(t *testing.T) {
	h, rec := newHost(t, &fakeStack{}, &fakeRepo{current: "feat"}, nil)
	h.Handle(protocol.Ready{})
	h.Wait()

	pushed := rec.Pushed()
	require.Len(t, pushed, 1)
	st := lastState(t, pushed)
	assert.Equal(t, "feat", st.CurrentBranch)
	assert.NotNil(t, st.LocalCommits)
	assert.Empty(t, st.LocalCommits)
}

func TestRefreshShowsLoading(t *testing.T) {
	h, rec := newHost(t, &fakeStack{}, &fakeRepo{current: "feat"}, nil)
	h.Handle(protocol.Refresh{})
	h.Wait()

	pushed := rec.Pushed()
	require.Len(t, pushed, 2)
	assert.Equal(t, protocol.Loading{Loading: true}, pushed[0])
	assert.IsType(t, protocol.State{}, pushed[1])
}

func TestStateErrorSnapshot(t *testing.T) {
	s := &fakeStack{stackFn: func() (model.StackState, error) {
		return model.StackState{}, errors.New("not a graphite repo")
	}}
	h, rec := newHost(t, s, &fakeRepo{}, nil)
	h.Handle(protocol.Ready{})
	h.Wait()

	st := lastState(t, rec.Pushed())
	assert.Equal(t, "not a graphite repo", st.Error)
	assert.Equal(t, "main", st.Trunk)
	assert.Empty(t, st.Branches)
}

func TestLocalCommitsForUntrackedBranch(t *testing.T) {
	h, rec := newHost(t, &fakeStack{}, &fakeRepo{current: "scratch"}, nil)
	h.Handle(protocol.Ready{})
	h.Wait()

	st := lastState(t, rec.Pushed())
	assert.Equal(t, []model.CommitInfo{{SHA: "l1", Message: "local"}}, st.LocalCommits)
}

type fakePRs struct{}

func (fakePRs) FetchPR(ctx context.Context, branch string) (*model.PRInfo, error) {
	return &model.PRInfo{Number: 42, Status: model.PROpen}, nil
}

func TestPRsAreAttachedToNonTrunkBranches(t *testing.T) {
	rec := &recorder{}
	h := New(Options{Stack: &fakeStack{}, Repo: &fakeRepo{current: "feat"}, PRs: fakePRs{}, Pusher: rec})
	defer h.Close()

	st := h.LoadState(context.Background())
	require.NotNil(t, st.Branches[0].PR)
	assert.Equal(t, 42, st.Branches[0].PR.Number)
	assert.Nil(t, st.Branches[1].PR)
}

func TestGetCommits(t *testing.T) {
	var gotBranch, gotParent string
	r := &fakeRepo{rangeFn: func(b, p string) ([]model.CommitInfo, error) {
		gotBranch, gotParent = b, p
		return []model.CommitInfo{{SHA: "x"}}, nil
	}}
	h, rec := newHost(t, &fakeStack{}, r, nil)
	h.Handle(protocol.GetCommits{Branch: "feat", Parent: "main"})
	h.Wait()

	assert.Equal(t, "feat", gotBranch)
	assert.Equal(t, "main", gotParent)
	assert.Equal(t, []protocol.Inbound{protocol.Commits{Branch: "feat", Commits: []model.CommitInfo{{SHA: "x"}}}}, rec.Pushed())
}

func TestGetCommitsFailureDegradesToEmpty(t *testing.T) {
	r := &fakeRepo{rangeFn: func(b, p string) ([]model.CommitInfo, error) {
		return nil, errors.New("bad ref")
	}}
	h, rec := newHost(t, &fakeStack{}, r, nil)
	h.Handle(protocol.GetCommits{Branch: "feat", Parent: "main"})
	h.Wait()

	assert.Equal(t, []protocol.Inbound{protocol.Commits{Branch: "feat", Commits: []model.CommitInfo{}}}, rec.Pushed())
	assert.Empty(t, rec.Notices())
}

func TestMutationEndsWithState(t *testing.T) {
	s := &fakeStack{}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, nil)
	h.Handle(protocol.Checkout{Branch: "feat"})
	h.Wait()

	assert.Equal(t, []string{"checkout feat"}, s.Calls())
	pushed := rec.Pushed()
	require.Len(t, pushed, 2)
	assert.Equal(t, protocol.Loading{Loading: true}, pushed[0])
	assert.IsType(t, protocol.State{}, pushed[1])
	assert.Equal(t, []protocol.Notify{{Level: protocol.LevelInfo, Message: "Checked out feat"}}, rec.Notices())
	assert.False(t, h.Busy())
}

func TestFailedMutationStillRefreshes(t *testing.T) {
	s := &fakeStack{restackFn: func(ctx context.Context) error { return errors.New("conflict in a.go") }}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, nil)
	h.Handle(protocol.Restack{})
	h.Wait()

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, protocol.LevelError, notices[0].Level)
	assert.Contains(t, notices[0].Message, "conflict in a.go")
	lastState(t, rec.Pushed())
	assert.False(t, h.Busy())
}

func TestSingleFlight(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	s := &fakeStack{restackFn: func(ctx context.Context) error {
		close(started)
		<-unblock
		return nil
	}}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, nil)

	h.Handle(protocol.Restack{})
	<-started
	assert.True(t, h.Busy())

	h.Handle(protocol.Sync{})
	h.Handle(protocol.Checkout{Branch: "feat"})

	notices := rec.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, protocol.LevelWarn, notices[0].Level)
	assert.Equal(t, "Another operation is in progress", notices[0].Message)

	// reads are not gated
	h.Handle(protocol.GetCommits{Branch: "feat", Parent: "main"})

	close(unblock)
	h.Wait()

	assert.Equal(t, []string{"restack"}, s.Calls())
	assert.False(t, h.Busy())

	h.Handle(protocol.Sync{})
	h.Wait()
	assert.Equal(t, []string{"restack", "sync"}, s.Calls())
}

func TestWatcherRefreshSkippedWhileBusy(t *testing.T) {
	unblock := make(chan struct{})
	started := make(chan struct{})
	s := &fakeStack{restackFn: func(ctx context.Context) error {
		close(started)
		<-unblock
		return nil
	}}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, nil)

	h.Handle(protocol.Restack{})
	<-started
	h.Refresh()
	close(unblock)
	h.Wait()

	states := 0
	for _, m := range rec.Pushed() {
		if _, ok := m.(protocol.State); ok {
			states++
		}
	}
	assert.Equal(t, 1, states)
}

func TestRefreshDuringMutationStaysBusy(t *testing.T) {
	unblock := make(chan struct{})
	started := make(chan struct{})
	s := &fakeStack{restackFn: func(ctx context.Context) error {
		close(started)
		<-unblock
		return nil
	}}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, nil)

	h.Handle(protocol.Restack{})
	<-started
	h.Handle(protocol.Refresh{})

	require.Eventually(t, func() bool { return len(rec.Pushed()) == 4 }, time.Second, 5*time.Millisecond)
	pushed := rec.Pushed()
	assert.IsType(t, protocol.State{}, pushed[2])
	assert.Equal(t, protocol.Loading{Loading: true}, pushed[3])

	close(unblock)
	h.Wait()
	pushed = rec.Pushed()
	assert.IsType(t, protocol.State{}, pushed[len(pushed)-1])
}

func TestCreateBranchPrompts(t *testing.T) {
	var titles []string
	answers := []string{"  ", "has space", "feat-new"}
	p := promptFunc(func(ctx context.Context, title string) (string, bool) {
		titles = append(titles, title)
		a := answers[0]
		answers = answers[1:]
		return a, true
	})
	s := &fakeStack{}
	h, _ := newHost(t, s, &fakeRepo{current: "feat"}, p)
	h.Handle(protocol.CreateBranch{})
	h.Wait()

	assert.Equal(t, []string{"create feat-new"}, s.Calls())
	require.Len(t, titles, 3)
	assert.Contains(t, titles[1], "empty")
	assert.Contains(t, titles[2], "spaces")
}

func TestCreateBranchCancelled(t *testing.T) {
	p := promptFunc(func(ctx context.Context, title string) (string, bool) { return "", false })
	s := &fakeStack{}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, p)
	h.Handle(protocol.CreateBranch{})
	h.Wait()

	assert.Empty(t, s.Calls())
	assert.Empty(t, rec.Pushed())
	assert.False(t, h.Busy())
}

func TestReorderBranches(t *testing.T) {
	s := &fakeStack{}
	h, _ := newHost(t, s, &fakeRepo{current: "feat"}, nil)
	h.Handle(protocol.ReorderBranches{Order: []string{"main", "b", "a"}})
	h.Wait()

	assert.Equal(t, []string{"move b main", "move a b", "restack"}, s.Calls())
}

func TestReorderBranchesStopsOnFailure(t *testing.T) {
	s := &fakeStack{moveErr: errors.New("cycle")}
	h, rec := newHost(t, s, &fakeRepo{current: "feat"}, nil)
	h.Handle(protocol.ReorderBranches{Order: []string{"main", "b", "a"}})
	h.Wait()

	assert.Equal(t, []string{"move b main"}, s.Calls())
	require.Len(t, rec.Notices(), 1)
	assert.Equal(t, protocol.LevelError, rec.Notices()[0].Level)
}

func TestReorderCommits(t *testing.T) {
	s := &fakeStack{}
	r := &fakeRepo{current: "feat"}
	h, _ := newHost(t, s, r, nil)
	actions := []model.CommitAction{{SHA: "c2", Action: model.ActionPick}, {SHA: "c1", Action: model.ActionFixup}}
	h.Handle(protocol.ReorderCommits{Branch: "feat", Parent: "main", CommitActions: actions})
	h.Wait()

	assert.Equal(t, actions, r.rebased)
	assert.Equal(t, []string{"restack"}, s.Calls())
}

func TestReorderCommitsRebaseFailureSkipsRestack(t *testing.T) {
	s := &fakeStack{}
	r := &fakeRepo{current: "feat", rebaseErr: errors.New("conflict")}
	h, rec := newHost(t, s, r, nil)
	h.Handle(protocol.ReorderCommits{Branch: "feat", CommitActions: []model.CommitAction{{SHA: "c1", Action: model.ActionPick}}})
	h.Wait()

	assert.Empty(t, s.Calls())
	lastState(t, rec.Pushed())
}

func TestUnknownRequestIgnored(t *testing.T) {
	s := &fakeStack{}
	h, rec := newHost(t, s, &fakeRepo{}, nil)
	h.Handle(protocol.Unknown{Type: "openBrowser"})
	h.Handle(protocol.PromptReply{ID: "x"})
	h.Wait()

	assert.Empty(t, rec.Pushed())
	assert.Empty(t, s.Calls())
}

func TestValidateBranchName(t *testing.T) {
	assert.NoError(t, ValidateBranchName("feat/login"))
	assert.Error(t, ValidateBranchName(""))
	assert.Error(t, ValidateBranchName("   "))
	assert.Error(t, ValidateBranchName("a b"))
	assert.Error(t, ValidateBranchName("a\tb"))
}

func TestCloseCancelsRunningWork(t *testing.T) {
	s := &fakeStack{restackFn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	rec := &recorder{}
	h := New(Options{Stack: s, Repo: &fakeRepo{}, Pusher: rec, Notifier: rec})
	h.Handle(protocol.Restack{})

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}
