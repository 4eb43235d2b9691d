package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bennycortese/graphite-control-plane/internal/core"
	"github.com/bennycortese/graphite-control-plane/internal/model"
	"github.com/bennycortese/graphite-control-plane/internal/protocol"
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginRight(2)

	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	labelStyle = lipgloss.NewStyle().Faint(true)

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Border(lipgloss.NormalBorder(), false, true).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("124")).
			Padding(0, 1)

	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	draggingStyle = lipgloss.NewStyle().Reverse(true)
	droppedStyle  = lipgloss.NewStyle().Faint(true).Strikethrough(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 3).
			Width(58)
)

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.prompt != nil {
		return m.renderPrompt()
	}
	if !m.session.HasState() {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.spinner.View() + " Loading stack…")
	}

	st := m.session.State()
	sections := []string{m.renderTopBar()}
	if st.Error != "" {
		sections = append(sections, bannerStyle.Width(m.width).Render("Error: "+st.Error))
	}
	sections = append(sections, m.renderMeta(st))
	if len(st.LocalCommits) > 0 {
		sections = append(sections, m.renderLocalCommits(st.LocalCommits))
	}
	sections = append(sections,
		m.separator(),
		m.renderBranches(st),
		m.separator(),
		m.renderFlash(),
		m.renderHelp(),
	)
	return m.zones.Scan(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// — sections ————————————————————————————————————————————————————————————————

func (m Model) renderTopBar() string {
	buttons := []string{
		titleStyle.Render("stackdeck"),
		m.renderButton(buttonSync, "Pull & Sync"),
		m.renderButton(buttonSubmit, "Submit Stack"),
		m.renderButton(buttonRestack, "Restack"),
		m.renderButton(buttonRefresh, "Refresh"),
	}
	if m.session.Busy() {
		buttons = append(buttons, "  "+warnStyle.Render(m.spinner.View()+" working"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, buttons...)
}

func (m Model) renderButton(b button, label string) string {
	return m.zones.Mark(buttonTarget(b).id(), buttonStyle.Render(label))
}

func (m Model) renderMeta(st model.StackState) string {
	current := st.CurrentBranch
	if current == "" {
		current = st.Trunk
	}
	return labelStyle.Render("trunk ") + st.Trunk + "   " + labelStyle.Render("on ") + boldStyle.Render(current)
}

func (m Model) renderLocalCommits(commits []model.CommitInfo) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render(fmt.Sprintf("Local commits (%d)", len(commits))) + "  ")
	b.WriteString(m.renderButton(buttonAdd, "Add to Stack") + "\n")
	for _, c := range commits {
		b.WriteString("  " + dimStyle.Render(shortSHA(c.SHA)) + " " + truncate(c.Message, m.width-12) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderBranches(st model.StackState) string {
	if len(st.Branches) == 0 {
		return dimStyle.Render("  No branches")
	}
	var sel row
	selOK := false
	if r, ok := m.selected(); ok {
		sel, selOK = r, true
	}
	isSelected := func(r row) bool { return selOK && sel == r }

	var lines []string
	for _, b := range st.Branches {
		lines = append(lines, m.renderCard(b, isSelected(row{branch: b.Name, index: -1})))
		if b.IsTrunk || !m.session.IsExpanded(b.Name) {
			continue
		}
		lines = append(lines, m.renderCommits(b.Name, isSelected)...)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderCard(b model.BranchInfo, selected bool) string {
	cursor := "  "
	if selected {
		cursor = cursorStyle.Render("› ")
	}

	toggle, handle := "  ", "  "
	if !b.IsTrunk {
		arrow := "▸"
		if m.session.IsExpanded(b.Name) {
			arrow = "▾"
		}
		toggle = m.zones.Mark(branchTarget(b.Name, core.ControlExpand).id(), arrow) + " "
		handle = m.zones.Mark(branchTarget(b.Name, core.ControlDragHandle).id(), dimStyle.Render("⠿")) + " "
	}

	name := boldStyle.Render(b.Name)
	switch {
	case b.IsTrunk:
		name = boldStyle.Render(b.Name) + " " + dimStyle.Render("(trunk)")
	case b.IsCurrent:
		name = okStyle.Bold(true).Render(b.Name) + " " + okStyle.Render("(current)")
	}
	if d, ok := m.session.Dragging(); ok && d.Kind == core.PayloadBranch && d.Branch == b.Name {
		name = draggingStyle.Render(b.Name)
	}

	header := cursor + toggle + handle + name + renderPR(b.PR)
	detail := "      " + dimStyle.Render(truncate(shortSHA(b.CommitSHA)+" "+b.CommitMessage, m.width-20))
	if b.TimeAgo != "" {
		detail += dimStyle.Render(" · " + b.TimeAgo)
	}
	return m.zones.Mark(branchTarget(b.Name, core.ControlBody).id(), header+"\n"+detail)
}

func (m Model) renderCommits(branch string, isSelected func(row) bool) []string {
	const indent = "      "
	list := branchTarget(branch, core.ControlCommitList).id()
	pending := m.session.Pending(branch)
	switch {
	case m.session.IsLoadingCommits(branch) && len(pending) == 0:
		return []string{m.zones.Mark(list, indent+dimStyle.Render(m.spinner.View()+" loading commits…"))}
	case len(pending) == 0:
		return []string{m.zones.Mark(list, indent+dimStyle.Render("no commits"))}
	}

	drag, dragging := m.session.Dragging()
	lines := make([]string, 0, len(pending)+2)
	for i, e := range pending {
		cursor := "  "
		if isSelected(row{branch: branch, index: i}) {
			cursor = cursorStyle.Render("› ")
		}
		squash := m.zones.Mark(commitTarget(branch, core.ControlSquash, i).id(), actionButton("S", e.Action == model.ActionFixup, warnStyle))
		drop := m.zones.Mark(commitTarget(branch, core.ControlDrop, i).id(), actionButton("×", e.Action == model.ActionDrop, errStyle))

		msg := truncate(e.Commit.Message, m.width-30)
		switch e.Action {
		case model.ActionFixup:
			msg = warnStyle.Render("squash ") + dimStyle.Render(msg)
		case model.ActionDrop:
			msg = droppedStyle.Render(msg)
		}
		sha := dimStyle.Render(shortSHA(e.Commit.SHA))
		if dragging && drag.Kind == core.PayloadCommit && drag.Branch == branch && drag.Index == i {
			sha = draggingStyle.Render(shortSHA(e.Commit.SHA))
		}

		line := indent[:len(indent)-2] + cursor + squash + " " + drop + " " + sha + " " + msg
		lines = append(lines, m.zones.Mark(commitTarget(branch, core.ControlCommitRow, i).id(), line))
	}

	if m.session.HasChanges(branch) {
		apply := m.zones.Mark(branchTarget(branch, core.ControlApply).id(), buttonStyle.Render("Apply"))
		reset := m.zones.Mark(branchTarget(branch, core.ControlReset).id(), buttonStyle.Render("Reset"))
		lines = append(lines, indent+apply+" "+reset)
	}
	if msg := m.session.SubmitError(branch); msg != "" {
		lines = append(lines, m.zones.Mark(list, indent+errStyle.Render(msg)))
	}
	return lines
}

func actionButton(label string, active bool, style lipgloss.Style) string {
	if active {
		return style.Bold(true).Render("[" + label + "]")
	}
	return dimStyle.Render("[" + label + "]")
}

func renderPR(pr *model.PRInfo) string {
	if pr == nil {
		return ""
	}
	var status string
	switch pr.Status {
	case model.PROpen:
		status = okStyle.Render("open")
	case model.PRMerged:
		status = infoStyle.Render("merged")
	case model.PRClosed:
		status = dimStyle.Render("closed")
	case model.PRDraft:
		status = dimStyle.Render("draft")
	default:
		status = dimStyle.Render(pr.Status)
	}
	out := "  " + labelStyle.Render(fmt.Sprintf("#%d ", pr.Number)) + status

	switch pr.ReviewStatus {
	case model.ReviewApproved:
		out += " " + okStyle.Render("✓ approved")
	case model.ReviewChangesRequested:
		out += " " + errStyle.Render("changes requested")
	case model.ReviewRequired:
		out += " " + warnStyle.Render("review required")
	}
	return out
}

func (m Model) renderFlash() string {
	if m.flash.text == "" {
		return ""
	}
	switch m.flash.level {
	case protocol.LevelError:
		return errStyle.Render(m.flash.text)
	case protocol.LevelWarn:
		return warnStyle.Render(m.flash.text)
	default:
		return okStyle.Render(m.flash.text)
	}
}

func (m Model) renderHelp() string {
	if d, ok := m.session.Dragging(); ok {
		what := "branch"
		if d.Kind == core.PayloadCommit {
			what = "commit"
		}
		return dimStyle.Render("Release over another " + what + " to move it · esc cancel")
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}

func (m Model) renderPrompt() string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("New Branch") + "\n\n")
	b.WriteString(m.prompt.title + "\n")
	b.WriteString(m.input.View() + "\n")
	b.WriteString("\n" + dimStyle.Render("Enter create · Esc cancel · gt create --all"))

	modal := modalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

// — helpers —————————————————————————————————————————————————————————————————

func (m Model) separator() string {
	return dimStyle.Render(strings.Repeat("─", m.width))
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// truncate shortens s to limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}
