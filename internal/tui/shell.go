package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

// Shell forwards host output into a running program. It implements
// host.Pusher, host.Notifier and host.Prompter.
type Shell struct {
	mu      sync.RWMutex
	program *tea.Program
}

func NewShell() *Shell {
	return &Shell{}
}

// Attach sets the program messages are sent to.
func (s *Shell) Attach(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

func (s *Shell) send(msg tea.Msg) bool {
	s.mu.RLock()
	p := s.program
	s.mu.RUnlock()
	if p == nil {
		logs.Debug().Msgf("no program attached, dropping %T", msg)
		return false
	}
	p.Send(msg)
	return true
}

func (s *Shell) Push(m protocol.Inbound) {
	s.send(pushMsg{m: m})
}

func (s *Shell) Notify(level, message string) {
	s.send(notifyMsg{level: level, text: message})
}

// Prompt opens the input modal and blocks until it is answered or ctx ends.
func (s *Shell) Prompt(ctx context.Context, title string) (string, bool) {
	reply := make(chan promptAnswer, 1)
	if !s.send(promptMsg{title: title, reply: reply}) {
		return "", false
	}
	select {
	case a := <-reply:
		return a.value, a.ok
	case <-ctx.Done():
		s.send(promptClosedMsg{reply: reply})
		return "", false
	}
}
