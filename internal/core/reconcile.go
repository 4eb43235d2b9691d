package core

import (
	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/model"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

// Receive applies a message pushed by the host. Unknown kinds are ignored.
func (s *Session) Receive(m protocol.Inbound) {
	switch m := m.(type) {
	case protocol.State:
		s.applyState(m.State)
	case protocol.Loading:
		s.busy = m.Loading
	case protocol.Commits:
		if !s.cache.OnCommitsReceived(m.Branch, m.Commits) {
			logs.Debug().Str("branch", m.Branch).Msg("dropped stale commits")
		}
	}
}

// applyState replaces the snapshot. Cached commits and plans are discarded
// since the branches may have been rewritten; branches that stay expanded
// fetch their commits again.
func (s *Session) applyState(st model.StackState) {
	s.cache.ClearAll()
	clear(s.submitErrs)
	s.drag.CancelDrag()

	s.state = st
	s.hasState = true
	s.busy = false

	s.cache.Retain(func(name string) bool {
		b, ok := st.Branch(name)
		return ok && !b.IsTrunk
	})
	for _, name := range s.cache.Expanded() {
		b, _ := st.Branch(name)
		s.cache.MarkLoading(name)
		s.send.GetCommits(name, b.ParentName)
	}
}
