package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
	"go.uber.org/zap"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	contentWidth   int
	responseHeight int
	editorHeight   int
}

func newPageLayout() pageLayout {
	return pageLayout{
		contentWidth:   80,
		responseHeight: 12,
		editorHeight:   4,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.contentWidth = innerWidth
	const chrome = 10
	usable := height - chrome
	l.responseHeight = usable / 2
	if l.responseHeight < minResponseHeight {
		l.responseHeight = minResponseHeight
	}
	l.editorHeight = usable / 6
	if l.editorHeight < 3 {
		l.editorHeight = 3
	}
}

// applyLayout pushes the current layout into the sized widgets.
func (m *model) applyLayout() {
	m.viewport.Width = m.layout.contentWidth
	m.viewport.Height = m.layout.responseHeight
	m.editor.SetWidth(m.layout.contentWidth - 2)
	m.editor.SetHeight(m.layout.editorHeight)
	m.nameInput.Width = m.layout.contentWidth / 2
	m.renderer = nil
	m.markResponseDirty()
}

func (m *model) wrapWidth(padding int) int {
	width := m.layout.contentWidth
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

// renderMarkdown renders response text for display. The session keeps the
// raw text; rendering failures fall back to plain wrapping.
func (m *model) renderMarkdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if m.renderer == nil {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(m.wrapWidth(2)),
		)
		if err != nil {
			m.logger.Debug("markdown renderer unavailable", zap.Error(err))
			return wordwrap.String(text, m.wrapWidth(2))
		}
		m.renderer = renderer
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return wordwrap.String(text, m.wrapWidth(2))
	}
	return strings.Trim(rendered, "\n")
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
