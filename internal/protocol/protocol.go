// Package protocol defines the tagged messages exchanged between the stack
// view and the host that runs gt and git on its behalf.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// Kind is the "type" tag of an envelope.
type Kind string

// Host to view.
const (
	KindState   Kind = "state"
	KindLoading Kind = "loading"
	KindCommits Kind = "commits"
	KindNotify  Kind = "notify"
	KindPrompt  Kind = "prompt"
)

// View to host.
const (
	KindReady           Kind = "ready"
	KindRefresh         Kind = "refresh"
	KindSync            Kind = "sync"
	KindSubmitStack     Kind = "submitStack"
	KindRestack         Kind = "restack"
	KindCheckout        Kind = "checkout"
	KindCreateBranch    Kind = "createBranch"
	KindGetCommits      Kind = "getCommits"
	KindReorderBranches Kind = "reorderBranches"
	KindReorderCommits  Kind = "reorderCommits"
	KindPromptReply     Kind = "promptReply"
)

// Envelope is the wire form of every message.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is anything that can be put in an envelope.
type Message interface {
	Kind() Kind
}

// Inbound is a message pushed from the host to the view.
type Inbound interface {
	Message
	inbound()
}

// Outbound is a request sent from the view to the host.
type Outbound interface {
	Message
	outbound()
}

// State carries a full stack snapshot.
type State struct {
	State model.StackState
}

// Loading toggles the busy indicator.
type Loading struct {
	Loading bool
}

// Commits answers a GetCommits request.
type Commits struct {
	Branch  string             `json:"branch"`
	Commits []model.CommitInfo `json:"commits"`
}

// Notification levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Notify is a one-shot notification for shells that cannot show the host's
// own notifications.
type Notify struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Prompt asks a remote shell for a line of text.
type Prompt struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type (
	Ready        struct{}
	Refresh      struct{}
	Sync         struct{}
	SubmitStack  struct{}
	Restack      struct{}
	CreateBranch struct{}
)

// Checkout switches the working copy to Branch.
type Checkout struct {
	Branch string `json:"branch"`
}

// GetCommits asks for the commits of Branch on top of Parent. An empty Parent
// means every commit reachable from Branch.
type GetCommits struct {
	Branch string `json:"branch"`
	Parent string `json:"parent"`
}

// ReorderBranches carries the desired stack order, trunk first.
type ReorderBranches struct {
	Order []string `json:"order"`
}

// ReorderCommits carries the edit plan for one branch.
type ReorderCommits struct {
	Branch        string               `json:"branch"`
	Parent        string               `json:"parent"`
	CommitActions []model.CommitAction `json:"commitActions"`
}

// PromptReply answers a Prompt.
type PromptReply struct {
	ID        string `json:"id"`
	Value     string `json:"value"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Unknown is any message whose kind is not recognised. Receivers ignore it.
type Unknown struct {
	Type    Kind
	Payload json.RawMessage
}

func (State) Kind() Kind           { return KindState }
func (Loading) Kind() Kind         { return KindLoading }
func (Commits) Kind() Kind         { return KindCommits }
func (Notify) Kind() Kind          { return KindNotify }
func (Prompt) Kind() Kind          { return KindPrompt }
func (Ready) Kind() Kind           { return KindReady }
func (Refresh) Kind() Kind         { return KindRefresh }
func (Sync) Kind() Kind            { return KindSync }
func (SubmitStack) Kind() Kind     { return KindSubmitStack }
func (Restack) Kind() Kind         { return KindRestack }
func (Checkout) Kind() Kind        { return KindCheckout }
func (CreateBranch) Kind() Kind    { return KindCreateBranch }
func (GetCommits) Kind() Kind      { return KindGetCommits }
func (ReorderBranches) Kind() Kind { return KindReorderBranches }
func (ReorderCommits) Kind() Kind  { return KindReorderCommits }
func (PromptReply) Kind() Kind     { return KindPromptReply }
func (u Unknown) Kind() Kind       { return u.Type }

func (State) inbound()   {}
func (Loading) inbound() {}
func (Commits) inbound() {}
func (Notify) inbound()  {}
func (Prompt) inbound()  {}
func (Unknown) inbound() {}

func (Ready) outbound()           {}
func (Refresh) outbound()         {}
func (Sync) outbound()            {}
func (SubmitStack) outbound()     {}
func (Restack) outbound()         {}
func (Checkout) outbound()        {}
func (CreateBranch) outbound()    {}
func (GetCommits) outbound()      {}
func (ReorderBranches) outbound() {}
func (ReorderCommits) outbound()  {}
func (PromptReply) outbound()     {}
func (Unknown) outbound()         {}

// Mutating reports whether o changes the repository and therefore has to go
// through the host's single-flight gate.
func Mutating(o Outbound) bool {
	switch o.(type) {
	case Sync, SubmitStack, Restack, Checkout, CreateBranch, ReorderBranches, ReorderCommits:
		return true
	}
	return false
}

// Encode wraps m in an envelope and marshals it.
func Encode(m Message) ([]byte, error) {
	var payload any
	switch m := m.(type) {
	case State:
		payload = m.State
	case Loading:
		payload = m.Loading
	case Unknown:
		return json.Marshal(Envelope{Type: m.Type, Payload: m.Payload})
	case Ready, Refresh, Sync, SubmitStack, Restack, CreateBranch:
		payload = nil
	default:
		payload = m
	}

	env := Envelope{Type: m.Kind()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// DecodeInbound parses a host-to-view envelope. Unrecognised kinds decode to
// Unknown without error.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case KindState:
		var s model.StackState
		if err := unmarshalPayload(env, &s); err != nil {
			return nil, err
		}
		return State{State: s}, nil
	case KindLoading:
		var b bool
		if err := unmarshalPayload(env, &b); err != nil {
			return nil, err
		}
		return Loading{Loading: b}, nil
	case KindCommits:
		var c Commits
		if err := unmarshalPayload(env, &c); err != nil {
			return nil, err
		}
		return c, nil
	case KindNotify:
		var n Notify
		if err := unmarshalPayload(env, &n); err != nil {
			return nil, err
		}
		return n, nil
	case KindPrompt:
		var p Prompt
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
}

// DecodeOutbound parses a view-to-host envelope. Unrecognised kinds decode to
// Unknown without error.
func DecodeOutbound(data []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case KindReady:
		return Ready{}, nil
	case KindRefresh:
		return Refresh{}, nil
	case KindSync:
		return Sync{}, nil
	case KindSubmitStack:
		return SubmitStack{}, nil
	case KindRestack:
		return Restack{}, nil
	case KindCreateBranch:
		return CreateBranch{}, nil
	case KindCheckout:
		var m Checkout
		return decodeInto(env, m)
	case KindGetCommits:
		var m GetCommits
		return decodeInto(env, m)
	case KindReorderBranches:
		var m ReorderBranches
		return decodeInto(env, m)
	case KindReorderCommits:
		var m ReorderCommits
		return decodeInto(env, m)
	case KindPromptReply:
		var m PromptReply
		return decodeInto(env, m)
	default:
		return Unknown{Type: env.Type, Payload: env.Payload}, nil
	}
}

func decodeInto[T Outbound](env Envelope, m T) (Outbound, error) {
	if err := unmarshalPayload(env, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalPayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("decode %s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return nil
}
