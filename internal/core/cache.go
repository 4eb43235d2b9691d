package core

import (
	"slices"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// Cache tracks which branches are expanded, the commits fetched for them and
// which fetches are still in flight. It owns the edit plans so that a commit
// list and its plan always change together.
//
// Replies carry no request id. pending counts the fetches sent since the last
// ClearAll; stale counts the ones sent before it, whose replies are dropped.
type Cache struct {
	expanded map[string]bool
	commits  map[string][]model.CommitInfo
	pending  map[string]int
	stale    map[string]int
	plans    *Plans
}

// NewCache returns an empty cache backed by plans.
func NewCache(plans *Plans) *Cache {
	return &Cache{
		expanded: make(map[string]bool),
		commits:  make(map[string][]model.CommitInfo),
		pending:  make(map[string]int),
		stale:    make(map[string]int),
		plans:    plans,
	}
}

// ToggleExpand flips the expansion of branch. needFetch is true when the
// branch was expanded with no cached commits and no fetch already in flight;
// the caller is then expected to request them.
func (c *Cache) ToggleExpand(branch string) (expanded, needFetch bool) {
	if c.expanded[branch] {
		delete(c.expanded, branch)
		return false, false
	}
	c.expanded[branch] = true
	if _, ok := c.commits[branch]; ok || c.pending[branch] > 0 {
		return true, false
	}
	c.pending[branch]++
	return true, true
}

// MarkLoading records an outstanding fetch for branch.
func (c *Cache) MarkLoading(branch string) {
	c.pending[branch]++
}

// OnCommitsReceived stores commits for branch and initializes its plan. It
// reports false and drops the reply when it answers a fetch sent before the
// last ClearAll, or when no fetch is outstanding.
func (c *Cache) OnCommitsReceived(branch string, commits []model.CommitInfo) bool {
	if c.stale[branch] > 0 {
		countDown(c.stale, branch)
		return false
	}
	if c.pending[branch] == 0 {
		return false
	}
	countDown(c.pending, branch)
	if commits == nil {
		commits = []model.CommitInfo{}
	}
	c.commits[branch] = slices.Clone(commits)
	c.plans.Initialize(branch, commits)
	return true
}

// ClearAll empties the commit cache, every plan and every loading mark.
// Fetches still in flight become stale. Expansion state is kept.
func (c *Cache) ClearAll() {
	clear(c.commits)
	for b, n := range c.pending {
		c.stale[b] += n
	}
	clear(c.pending)
	c.plans.Clear()
}

func countDown(m map[string]int, key string) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}

// Retain drops expansion state for branches not accepted by keep.
func (c *Cache) Retain(keep func(branch string) bool) {
	for b := range c.expanded {
		if !keep(b) {
			delete(c.expanded, b)
		}
	}
}

// Expanded returns the expanded branches, sorted.
func (c *Cache) Expanded() []string {
	out := make([]string, 0, len(c.expanded))
	for b := range c.expanded {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}

func (c *Cache) IsExpanded(branch string) bool { return c.expanded[branch] }

func (c *Cache) IsLoading(branch string) bool { return c.pending[branch] > 0 }

// Commits returns the cached commits for branch and whether any are cached.
func (c *Cache) Commits(branch string) ([]model.CommitInfo, bool) {
	cs, ok := c.commits[branch]
	return cs, ok
}
