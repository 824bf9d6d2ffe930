package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/promptbook/internal/session"
)

func (m *model) View() string {
	switch m.stage {
	case stageLibrary:
		return m.viewLibrary()
	case stageCreate:
		return m.viewCreate()
	case stageEditor, stageEditing:
		return m.viewEditor()
	default:
		return ""
	}
}

func (m *model) viewLibrary() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Library"))
	b.WriteRune('\n')
	if len(m.docs) == 0 {
		b.WriteString(helperStyle.Render("No conversations yet. Press n to create one."))
	}
	wrap := m.wrapWidth(4)
	for idx, doc := range m.docs {
		title := fmt.Sprintf("%s  %s", doc.Title(), modelBadgeStyle.Render(doc.Model))
		if idx == m.libraryCursor {
			b.WriteString(currentLineStyle.Render("▸ " + doc.Title()))
			b.WriteString("  " + modelBadgeStyle.Render(doc.Model))
		} else {
			b.WriteString("  " + title)
		}
		b.WriteRune('\n')
		if doc.Description != "" {
			desc := wordwrap.String(truncate(doc.Description, descriptionPreviewLimit), wrap)
			b.WriteString(helperStyle.Render(indentMultiline(desc, "    ")))
			b.WriteRune('\n')
		}
	}
	return joinNonEmpty([]string{m.heroView(), b.String(), m.statusView(), m.footerView()})
}

func (m *model) viewCreate() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("New Conversation"))
	b.WriteRune('\n')
	b.WriteString(m.nameInput.View())
	b.WriteRune('\n')
	b.WriteString(helperStyle.Render("Enter to create, Esc to cancel."))
	return joinNonEmpty([]string{m.heroView(), b.String(), m.statusView()})
}

func (m *model) viewEditor() string {
	doc, ok := m.session.Document()
	if !ok {
		return m.viewLibrary()
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		heroTitleStyle.Render(doc.Title()),
		"  ",
		modelBadgeStyle.Render(doc.Model),
		"  ",
		m.phaseBadge(),
	)
	parts := []string{header}
	if doc.Description != "" {
		parts = append(parts, helperStyle.Render(wordwrap.String(doc.Description, m.wrapWidth(0))))
	}
	rows := m.rows()
	parts = append(parts,
		m.fragmentSection("Instruction", session.Instruction, rows),
		m.fragmentSection("Question", session.Question, rows),
		m.responseView(),
		m.statusView(),
		m.footerView(),
	)
	return joinNonEmpty(parts)
}

func (m *model) fragmentSection(title string, kind session.ListKind, rows []fragmentRef) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render(title))
	fragments := m.session.Fragments(kind)
	if len(fragments) == 0 {
		b.WriteRune('\n')
		b.WriteString(helperStyle.Render("  (empty)"))
	}
	wrap := m.wrapWidth(6)
	for _, f := range fragments {
		b.WriteRune('\n')
		ref := fragmentRef{kind: kind, id: f.ID}
		if m.stage == stageEditing && m.editing == ref {
			b.WriteString(pendingMarkerStyle.Render("✎ editing"))
			b.WriteRune('\n')
			b.WriteString(m.editor.View())
			b.WriteRune('\n')
			b.WriteString(helperStyle.Render("Esc or Ctrl+S to keep the text."))
			continue
		}
		marker := resolvedMarkerStyle.Render("✓")
		if f.Pending {
			marker = pendingMarkerStyle.Render("●")
		}
		value := f.Value
		if strings.TrimSpace(value) == "" {
			value = helperStyle.Render("(no text)")
		}
		body := indentMultiline(wordwrap.String(value, wrap), "    ")
		body = strings.TrimPrefix(body, "    ")
		line := fmt.Sprintf("%s %s", marker, body)
		if rowIndex(rows, ref) == m.cursor && m.stage == stageEditor {
			line = currentLineStyle.Render("▸") + " " + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
	}
	return b.String()
}

func (m *model) responseView() string {
	m.refreshResponseIfDirty()
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Response"))
	b.WriteRune('\n')
	b.WriteString(m.viewport.View())
	return b.String()
}

func (m *model) phaseBadge() string {
	switch m.session.Phase() {
	case session.PhaseWaiting:
		pending := 0
		for _, kind := range []session.ListKind{session.Instruction, session.Question} {
			for _, f := range m.session.Fragments(kind) {
				if f.Pending {
					pending++
				}
			}
		}
		return pendingMarkerStyle.Render(fmt.Sprintf("waiting on %d pending", pending))
	case session.PhaseGenerating:
		g := m.session.Generation()
		switch {
		case g == nil:
			return helperStyle.Render("idle")
		case g.Aborted:
			return errorStyle.Render("aborted")
		case g.Err != nil:
			return errorStyle.Render("failed")
		case g.Done:
			return resolvedMarkerStyle.Render("done")
		case !g.Resolved:
			return helperStyle.Render(m.spinner.View() + " resolving")
		default:
			return helperStyle.Render(m.spinner.View() + " generating")
		}
	default:
		return ""
	}
}

func (m *model) markResponseDirty() {
	m.responseDirty = true
}

func (m *model) refreshResponseIfDirty() {
	if m.responseDirty {
		m.refreshResponse()
	}
}

func (m *model) refreshResponse() {
	m.responseDirty = false
	m.viewport.SetContent(m.responseContent())
}

func (m *model) responseContent() string {
	switch m.session.Phase() {
	case session.PhaseIdle:
		return ""
	case session.PhaseWaiting:
		return helperStyle.Render("Resolve every ● fragment (space) to generate a response.")
	}
	g := m.session.Generation()
	if g == nil {
		return ""
	}
	if !g.Resolved {
		return helperStyle.Render("Resolving links and files…")
	}
	if g.Err != nil {
		return errorStyle.Render(wordwrap.String(g.Accumulated, m.wrapWidth(2)))
	}
	body := m.renderMarkdown(g.Accumulated)
	if body == "" && !g.Finished() {
		body = helperStyle.Render("Waiting for the first tokens…")
	}
	if g.Aborted {
		body = joinNonEmpty([]string{body, helperStyle.Render("(aborted, press g to regenerate)")})
	}
	return body
}

func (m *model) statusView() string {
	var parts []string
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		message := m.infoMessage
		if len(m.runningJobs) > 0 {
			message = fmt.Sprintf("%s %s", m.spinner.View(), message)
		}
		parts = append(parts, helperStyle.Render(message))
	}
	return strings.Join(parts, "\n")
}

func (m *model) footerView() string {
	parts := []string{m.keyLegendView()}
	if m.helpVisible {
		parts = append(parts, m.helpView())
	}
	return joinNonEmpty(parts)
}

func (m *model) heroView() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		heroTitleStyle.Render(heroTitle),
		taglineStyle.Render(heroTagline),
	)
}

func (m *model) keyLegendView() string {
	var hints []keyHint
	switch m.stage {
	case stageLibrary:
		hints = []keyHint{
			{"↑/↓", "Select"},
			{"enter", "Open"},
			{"n", "New"},
			{"r", "Reload"},
			{"m", "Models"},
			{"?", "Help"},
			{"q", "Quit"},
		}
	case stageEditor:
		hints = []keyHint{
			{"↑/↓", "Select"},
			{"space", "Toggle pending"},
			{"e", "Edit"},
			{"a", "Add after"},
			{"d", "Delete"},
			{"g", "Regenerate"},
			{"x", "Abort"},
			{"s", "Save"},
			{"esc", "Discard"},
			{"?", "Help"},
		}
	default:
		return ""
	}
	const columns = 5
	var rows []string
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description + " ")
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(rows, "\n")
}

func (m *model) helpView() string {
	lines := []string{
		sectionHeaderStyle.Render("How it works"),
		helperStyle.Render("• ● marks a pending fragment. Nothing is generated while any fragment is pending."),
		helperStyle.Render("• space resolves or reopens a fragment; resolving the last one starts a new response."),
		helperStyle.Render("• a fragment that is a link is replaced by the article text, an existing file by its contents."),
		helperStyle.Render("• I and Q append an instruction or question; e edits the selected fragment."),
		helperStyle.Render("• y copies the response, Y the sent question, Ctrl+Y the sent instruction."),
		helperStyle.Render("• PgUp/PgDn scroll the response; s saves and returns to the library, Ctrl+C quits."),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}

func rowIndex(rows []fragmentRef, ref fragmentRef) int {
	for i, row := range rows {
		if row == ref {
			return i
		}
	}
	return -1
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

var (
	sectionHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pendingMarkerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd166"))
	resolvedMarkerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c"))
	modelBadgeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("147")).Italic(true)

	heroAccentColor = lipgloss.Color("#ff8c00")

	heroTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	taglineStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd7a3")).Italic(true)
	keyStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	helpBoxStyle     = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(1, 2)
	currentLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
)
