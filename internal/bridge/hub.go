// Package bridge serves the stack view protocol over websockets so that a
// remote view can drive the host.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

// PromptTimeout is how long a prompt waits for a reply before it counts as
// cancelled.
const PromptTimeout = 2 * time.Minute

// Hub fans host messages out to every connected client and routes prompt
// replies back. It implements host.Pusher, host.Notifier and host.Prompter.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}

	promptMu sync.Mutex
	prompts  map[string]chan protocol.PromptReply

	promptTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{
		subscribers:   make(map[chan []byte]struct{}),
		prompts:       make(map[string]chan protocol.PromptReply),
		promptTimeout: PromptTimeout,
	}
}

// Subscribe registers a client. The returned function unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 32)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Push broadcasts m to every client.
func (h *Hub) Push(m protocol.Inbound) {
	data, err := protocol.Encode(m)
	if err != nil {
		logs.Error().Err(err).Str("kind", string(m.Kind())).Msg("encode push")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- data:
		default:
			logs.Warn().Str("kind", string(m.Kind())).Msg("client too slow, message dropped")
		}
	}
}

// Notify broadcasts a notification.
func (h *Hub) Notify(level, message string) {
	h.Push(protocol.Notify{Level: level, Message: message})
}

// Prompt asks every client for a value and returns the first reply.
func (h *Hub) Prompt(ctx context.Context, title string) (string, bool) {
	id := uuid.NewString()
	ch := make(chan protocol.PromptReply, 1)

	h.promptMu.Lock()
	h.prompts[id] = ch
	h.promptMu.Unlock()
	defer func() {
		h.promptMu.Lock()
		delete(h.prompts, id)
		h.promptMu.Unlock()
	}()

	h.Push(protocol.Prompt{ID: id, Title: title})

	timer := time.NewTimer(h.promptTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.Cancelled {
			return "", false
		}
		return reply.Value, true
	case <-timer.C:
		logs.Warn().Str("prompt", id).Msg("prompt timed out")
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Reply resolves a pending prompt. Replies to unknown or answered prompts are
// ignored.
func (h *Hub) Reply(r protocol.PromptReply) {
	h.promptMu.Lock()
	ch, ok := h.prompts[r.ID]
	if ok {
		delete(h.prompts, r.ID)
	}
	h.promptMu.Unlock()
	if ok {
		ch <- r
	}
}
