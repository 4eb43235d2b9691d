package tui

import (
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/bennycortese/graphite-control-plane/internal/core"
	"github.com/bennycortese/graphite-control-plane/internal/model"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

const flashDuration = 4 * time.Second

// — messages ————————————————————————————————————————————————————————————————

type pushMsg struct {
	m protocol.Inbound
}

type notifyMsg struct {
	level string
	text  string
}

type flashExpiredMsg struct {
	id int
}

type promptAnswer struct {
	value string
	ok    bool
}

type promptMsg struct {
	title string
	reply chan<- promptAnswer
}

type promptClosedMsg struct {
	reply chan<- promptAnswer
}

// — zones ———————————————————————————————————————————————————————————————————

type button string

const (
	buttonSync    button = "sync"
	buttonSubmit  button = "submit"
	buttonRestack button = "restack"
	buttonRefresh button = "refresh"
	buttonAdd     button = "add"
)

// target is a clickable region: a top bar button or a control of a branch
// card.
type target struct {
	button button
	click  core.ClickTarget
}

func buttonTarget(b button) target { return target{button: b} }

func branchTarget(branch string, c core.Control) target {
	return target{click: core.ClickTarget{Branch: branch, Control: c}}
}

func commitTarget(branch string, c core.Control, index int) target {
	return target{click: core.ClickTarget{Branch: branch, Control: c, Index: index}}
}

func (t target) id() string {
	if t.button != "" {
		return "button:" + string(t.button)
	}
	return fmt.Sprintf("%d:%d:%s", t.click.Control, t.click.Index, t.click.Branch)
}

// dropTarget maps a zone to what a drag released over it lands on.
func (t target) dropTarget() (core.DropTarget, bool) {
	if t.button != "" {
		return core.DropTarget{}, false
	}
	switch t.click.Control {
	case core.ControlBody, core.ControlDragHandle, core.ControlExpand:
		return core.BranchPayload(t.click.Branch), true
	case core.ControlCommitRow, core.ControlSquash, core.ControlDrop:
		return core.CommitPayload(t.click.Branch, t.click.Index), true
	}
	return core.DropTarget{}, false
}

// row is a selectable line: a branch card (index -1) or one of its commits.
type row struct {
	branch string
	index  int
}

// — model ———————————————————————————————————————————————————————————————————

// Model is the stack view.
type Model struct {
	session *core.Session
	zones   *zone.Manager
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model

	width  int
	height int
	cursor int

	pressed bool
	press   target

	flash   notifyMsg
	flashID int

	prompt *promptMsg
}

// New returns a view that sends its requests to out.
func New(out core.Sender) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Line

	ti := textinput.New()
	ti.Placeholder = "e.g. feat-add-login"
	ti.CharLimit = 100

	return Model{
		session: core.NewSession(out),
		zones:   zone.New(),
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		input:   ti,
	}
}

// — tea.Model ———————————————————————————————————————————————————————————————

func (m Model) Init() tea.Cmd {
	m.session.Start()
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pushMsg:
		sel, ok := m.selected()
		m.session.Receive(msg.m)
		if ok && !m.selectRow(sel) {
			m.selectRow(row{branch: sel.branch, index: -1})
		}
		m.clampCursor()
		return m, nil

	case notifyMsg:
		m.flashID++
		m.flash = msg
		id := m.flashID
		return m, tea.Tick(flashDuration, func(time.Time) tea.Msg {
			return flashExpiredMsg{id: id}
		})

	case flashExpiredMsg:
		if msg.id == m.flashID {
			m.flash = notifyMsg{}
		}
		return m, nil

	case promptMsg:
		if m.prompt != nil {
			m.prompt.reply <- promptAnswer{}
		}
		m.prompt = &msg
		m.input.Reset()
		m.input.Focus()
		return m, textinput.Blink

	case promptClosedMsg:
		if m.prompt != nil && m.prompt.reply == msg.reply {
			m.prompt = nil
			m.input.Blur()
		}
		return m, nil

	case tea.MouseMsg:
		if m.prompt != nil {
			return m, nil
		}
		return m.updateMouse(msg)

	case tea.KeyMsg:
		if m.prompt != nil {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)
	}

	if m.prompt != nil {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.answer(promptAnswer{})
		return m, tea.Quit
	case "esc":
		m.answer(promptAnswer{})
		return m, nil
	case "enter":
		m.answer(promptAnswer{value: m.input.Value(), ok: true})
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) answer(a promptAnswer) {
	m.prompt.reply <- a
	m.prompt = nil
	m.input.Blur()
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	sel, hasSel := m.selected()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		s.CancelDrag()
		m.pressed = false
	case key.Matches(msg, m.keys.Up):
		m.cursor--
	case key.Matches(msg, m.keys.Down):
		m.cursor++
	case key.Matches(msg, m.keys.Refresh):
		s.Refresh()
	case key.Matches(msg, m.keys.Sync):
		s.Sync()
	case key.Matches(msg, m.keys.Submit):
		s.SubmitStack()
	case key.Matches(msg, m.keys.Restack):
		s.Restack()
	case key.Matches(msg, m.keys.Create):
		s.CreateBranch()
	case !hasSel:
	case key.Matches(msg, m.keys.Checkout):
		if sel.index < 0 {
			s.Checkout(sel.branch)
		}
	case key.Matches(msg, m.keys.Expand):
		s.ToggleExpand(sel.branch)
		m.selectRow(row{branch: sel.branch, index: -1})
	case key.Matches(msg, m.keys.Collapse):
		if s.IsExpanded(sel.branch) {
			s.ToggleExpand(sel.branch)
		}
		m.selectRow(row{branch: sel.branch, index: -1})
	case key.Matches(msg, m.keys.Squash):
		if sel.index >= 0 {
			s.ToggleAction(sel.branch, sel.index, model.ActionFixup)
		}
	case key.Matches(msg, m.keys.Drop):
		if sel.index >= 0 {
			s.ToggleAction(sel.branch, sel.index, model.ActionDrop)
		}
	case key.Matches(msg, m.keys.MoveUp):
		m.move(sel, -1)
	case key.Matches(msg, m.keys.MoveDown):
		m.move(sel, 1)
	case key.Matches(msg, m.keys.Apply):
		if s.HasChanges(sel.branch) {
			s.ApplyCommitChanges(sel.branch)
		}
	case key.Matches(msg, m.keys.Reset):
		s.ResetCommitChanges(sel.branch)
	}
	m.clampCursor()
	return m, nil
}

// move shifts the selected branch or commit one slot. The cursor follows a
// commit; a branch moves once the host pushes the restacked snapshot.
func (m *Model) move(sel row, delta int) {
	if sel.index < 0 {
		m.session.MoveBranch(sel.branch, delta)
		return
	}
	n := len(m.session.Pending(sel.branch))
	to := sel.index + delta
	if to < 0 || to >= n {
		return
	}
	m.session.MoveCommit(sel.branch, sel.index, delta)
	m.selectRow(row{branch: sel.branch, index: to})
}

// — mouse ———————————————————————————————————————————————————————————————————

func (m Model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		if t, _, ok := m.hit(msg); ok {
			m.pressAt(t)
		}
	case tea.MouseActionRelease:
		t, z, ok := m.hit(msg)
		pos := core.After
		if ok {
			pos = m.dropPosition(t, z, msg.Y)
		}
		m.releaseAt(t, ok, pos)
	}
	return m, nil
}

// hit returns the innermost zone under the pointer.
func (m Model) hit(msg tea.MouseMsg) (target, *zone.ZoneInfo, bool) {
	for _, t := range m.targets() {
		z := m.zones.Get(t.id())
		if z == nil || z.IsZero() {
			continue
		}
		if z.InBounds(msg) {
			return t, z, true
		}
	}
	return target{}, nil, false
}

// dropPosition uses the pointer height within a multi-line zone and the drag
// direction for single-line rows.
func (m Model) dropPosition(t target, z *zone.ZoneInfo, y int) core.Position {
	if height := z.EndY - z.StartY + 1; height > 1 {
		return core.PositionFromY(y, z.StartY, height)
	}
	src, ok := m.session.Dragging()
	if !ok {
		return core.After
	}
	drop, ok := t.dropTarget()
	if !ok {
		return core.After
	}
	if src.Kind == core.PayloadCommit {
		if drop.Index > src.Index {
			return core.After
		}
		return core.Before
	}
	names := m.session.State().Names()
	if slices.Index(names, drop.Branch) > slices.Index(names, src.Branch) {
		return core.After
	}
	return core.Before
}

func (m *Model) pressAt(t target) {
	m.pressed = true
	m.press = t
	if t.button != "" {
		return
	}
	c := t.click
	switch c.Control {
	case core.ControlBody, core.ControlDragHandle:
		m.session.BeginDrag(core.BranchPayload(c.Branch))
		m.selectRow(row{branch: c.Branch, index: -1})
	case core.ControlCommitRow:
		m.session.BeginDrag(core.CommitPayload(c.Branch, c.Index))
		m.selectRow(row{branch: c.Branch, index: c.Index})
	}
}

// releaseAt finishes a press. Releasing over the pressed zone is a click;
// releasing over another zone drops whatever is being dragged.
func (m *Model) releaseAt(t target, ok bool, pos core.Position) {
	if !m.pressed {
		return
	}
	m.pressed = false
	if !ok {
		m.session.CancelDrag()
		return
	}
	if t.id() == m.press.id() {
		m.session.CancelDrag()
		m.activate(t)
		return
	}
	if _, dragging := m.session.Dragging(); !dragging {
		return
	}
	drop, ok := t.dropTarget()
	if !ok {
		m.session.CancelDrag()
		return
	}
	m.session.Drop(drop, pos)
}

func (m *Model) activate(t target) {
	s := m.session
	switch t.button {
	case buttonSync:
		s.Sync()
	case buttonSubmit:
		s.SubmitStack()
	case buttonRestack:
		s.Restack()
	case buttonRefresh:
		s.Refresh()
	case buttonAdd:
		s.CreateBranch()
	case "":
		s.Click(t.click)
		m.clampCursor()
	}
}

// targets lists every zone in hit-test order, nested controls before the
// card they sit in.
func (m Model) targets() []target {
	ts := []target{
		buttonTarget(buttonSync),
		buttonTarget(buttonSubmit),
		buttonTarget(buttonRestack),
		buttonTarget(buttonRefresh),
		buttonTarget(buttonAdd),
	}
	st := m.session.State()
	for _, b := range st.Branches {
		if b.IsTrunk {
			continue
		}
		ts = append(ts,
			branchTarget(b.Name, core.ControlExpand),
			branchTarget(b.Name, core.ControlDragHandle),
		)
		if !m.session.IsExpanded(b.Name) {
			continue
		}
		pending := m.session.Pending(b.Name)
		for i := range pending {
			ts = append(ts,
				commitTarget(b.Name, core.ControlSquash, i),
				commitTarget(b.Name, core.ControlDrop, i),
			)
		}
		for i := range pending {
			ts = append(ts, commitTarget(b.Name, core.ControlCommitRow, i))
		}
		ts = append(ts,
			branchTarget(b.Name, core.ControlApply),
			branchTarget(b.Name, core.ControlReset),
			branchTarget(b.Name, core.ControlCommitList),
		)
	}
	for _, b := range st.Branches {
		ts = append(ts, branchTarget(b.Name, core.ControlBody))
	}
	return ts
}

// — selection ———————————————————————————————————————————————————————————————

func (m Model) rows() []row {
	var rows []row
	for _, b := range m.session.State().Branches {
		rows = append(rows, row{branch: b.Name, index: -1})
		if !m.session.IsExpanded(b.Name) {
			continue
		}
		for i := range m.session.Pending(b.Name) {
			rows = append(rows, row{branch: b.Name, index: i})
		}
	}
	return rows
}

func (m Model) selected() (row, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return row{}, false
	}
	return rows[m.cursor], true
}

func (m *Model) selectRow(r row) bool {
	i := slices.Index(m.rows(), r)
	if i < 0 {
		return false
	}
	m.cursor = i
	return true
}

func (m *Model) clampCursor() {
	n := len(m.rows())
	m.cursor = min(m.cursor, n-1)
	m.cursor = max(m.cursor, 0)
}
