package tui

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/document"
	"github.com/csheth/promptbook/internal/generate"
	"github.com/csheth/promptbook/internal/library"
	"github.com/csheth/promptbook/internal/session"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestModel(t *testing.T, client *fakeLLM) (*model, *library.Store) {
	t.Helper()
	store := library.New(t.TempDir(), "", testLogger())
	config := Config{Library: store, Logger: testLogger()}
	if client != nil {
		config.LLM = client
	}
	teaModel, ok := New(config).(*model)
	if !ok {
		t.Fatalf("expected *model, got %T", teaModel)
	}
	t.Cleanup(teaModel.shutdown)
	return teaModel, store
}

func loadLibrary(t *testing.T, m *model, store *library.Store) {
	t.Helper()
	msg, err := loadLibraryJob(store)(context.Background())
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	m.Update(msg)
}

func openResolved(t *testing.T, m *model) {
	t.Helper()
	m.openDocument(document.Document{
		Name:        "plain",
		Model:       "llama3",
		Instruction: []string{"Be brief."},
		Question:    []string{"What is Go?"},
	})
	if m.session.Phase() != session.PhaseGenerating {
		t.Fatalf("expected generating, got %s", m.session.Phase())
	}
}

func press(m *model, key string) tea.Cmd {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

// runStream executes cmd and feeds every stream message back into the model
// until the stream channel closes.
func runStream(t *testing.T, m *model, cmd tea.Cmd) {
	t.Helper()
	pending := []tea.Cmd{cmd}
	deadline := time.Now().Add(5 * time.Second)
	for len(pending) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream did not finish")
		}
		next := pending[0]
		pending = pending[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case tea.BatchMsg:
			pending = append(pending, msg...)
		case spinner.TickMsg:
		case streamEventMsg, streamClosedMsg:
			_, follow := m.Update(msg)
			pending = append(pending, follow)
		}
	}
}

func TestLibraryLoadSeedsAndLists(t *testing.T) {
	m, store := newTestModel(t, nil)
	loadLibrary(t, m, store)

	if len(m.docs) != 1 || m.docs[0].Name != "why-sky-is-blue" {
		t.Fatalf("expected seeded library, got %+v", m.docs)
	}
	if m.infoMessage != "" {
		t.Fatalf("loading message should clear, got %q", m.infoMessage)
	}
	if view := m.View(); !strings.Contains(view, "why-sky-is-blue") {
		t.Fatalf("library view missing document:\n%s", view)
	}
}

func TestPendingDocumentWaitsUntilResolved(t *testing.T) {
	client := &fakeLLM{chunks: []string{"Blue light", " scatters."}}
	m, store := newTestModel(t, client)
	if _, err := store.Create("Sky"); err != nil {
		t.Fatalf("create: %v", err)
	}
	loadLibrary(t, m, store)
	for i, doc := range m.docs {
		if doc.Name == "Sky" {
			m.libraryCursor = i
		}
	}

	if cmd := press(m, "enter"); cmd != nil {
		t.Fatalf("a pending document must not start generating, got %T", cmd)
	}
	if m.stage != stageEditor || m.session.Phase() != session.PhaseWaiting {
		t.Fatalf("expected editor in waiting phase, got stage=%v phase=%s", m.stage, m.session.Phase())
	}
	if view := m.View(); !strings.Contains(view, "waiting on 1 pending") {
		t.Fatalf("editor view should report the pending fragment:\n%s", view)
	}

	cmd := press(m, "space")
	if cmd == nil {
		t.Fatal("resolving the last pending fragment should start generating")
	}
	runStream(t, m, cmd)

	g := m.session.Generation()
	if g == nil || !g.Done {
		t.Fatalf("generation should have finished, got %+v", g)
	}
	if g.Accumulated != "Blue light scatters." {
		t.Fatalf("unexpected response %q", g.Accumulated)
	}
	req, ok := client.lastRequest()
	if !ok || req.Prompt != library.NewQuestion {
		t.Fatalf("backend got %+v", req)
	}
}

func TestStaleStreamEventsAreIgnored(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	openResolved(t, m)
	first := m.session.Generation().Epoch

	press(m, "g")
	second := m.session.Generation().Epoch
	if second == first {
		t.Fatal("regenerate should start a new epoch")
	}

	closed := make(chan generate.Event)
	close(closed)
	m.Update(streamEventMsg{event: generate.Event{Epoch: first, Kind: generate.EventSnapshot, Text: "old"}, events: closed})
	if got := m.session.Generation().Accumulated; got != "" {
		t.Fatalf("stale snapshot applied: %q", got)
	}
	m.Update(streamEventMsg{event: generate.Event{Epoch: second, Kind: generate.EventSnapshot, Text: "new"}, events: closed})
	if got := m.session.Generation().Accumulated; got != "new" {
		t.Fatalf("current snapshot not applied: %q", got)
	}
}

func TestAbortKeepsResponse(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	openResolved(t, m)
	epoch := m.session.Generation().Epoch
	closed := make(chan generate.Event)
	close(closed)
	m.Update(streamEventMsg{event: generate.Event{Epoch: epoch, Kind: generate.EventResolved}, events: closed})
	m.Update(streamEventMsg{event: generate.Event{Epoch: epoch, Kind: generate.EventSnapshot, Text: "Go is"}, events: closed})

	press(m, "x")
	g := m.session.Generation()
	if !g.Aborted || g.Accumulated != "Go is" {
		t.Fatalf("abort should keep the text, got %+v", g)
	}
	if !strings.Contains(m.responseContent(), "aborted") {
		t.Fatalf("response should mention the abort: %q", m.responseContent())
	}
}

func TestSaveRequiresResolvedFragments(t *testing.T) {
	m, store := newTestModel(t, &fakeLLM{})
	doc, err := store.Create("Plan")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.openDocument(doc)

	press(m, "s")
	if m.stage != stageEditor || !strings.Contains(m.errorMessage, "pending") {
		t.Fatalf("save should be refused while pending (stage=%v, error=%q)", m.stage, m.errorMessage)
	}

	press(m, "space")
	if cmd := press(m, "s"); cmd == nil {
		t.Fatal("save should reload the library")
	}
	if m.stage != stageLibrary {
		t.Fatalf("save should return to the library, got %v", m.stage)
	}
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if strings.Contains(string(data), "{{") || !strings.Contains(string(data), library.NewQuestion) {
		t.Fatalf("saved document should hold the resolved question:\n%s", data)
	}
}

func TestEditingKeepsPhase(t *testing.T) {
	m, store := newTestModel(t, &fakeLLM{})
	doc, err := store.Create("Edit me")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.openDocument(doc)

	press(m, "e")
	if m.stage != stageEditing {
		t.Fatalf("expected editing stage, got %v", m.stage)
	}
	press(m, "!")
	press(m, "esc")
	if m.stage != stageEditor {
		t.Fatalf("esc should leave editing, got %v", m.stage)
	}
	question := m.session.Fragments(session.Question)
	if len(question) != 1 || question[0].Value != library.NewQuestion+"!" {
		t.Fatalf("unexpected question %+v", question)
	}
	if !question[0].Pending || m.session.Phase() != session.PhaseWaiting {
		t.Fatalf("editing must not resolve the fragment (phase=%s)", m.session.Phase())
	}
}

func TestAddFragmentCancelsGeneration(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	openResolved(t, m)

	press(m, "a")
	if m.stage != stageEditing {
		t.Fatalf("a new fragment should open the editor, got %v", m.stage)
	}
	if m.session.Phase() != session.PhaseWaiting || m.session.Generation() != nil {
		t.Fatalf("adding a fragment must cancel generation (phase=%s)", m.session.Phase())
	}
	rows := m.rows()
	if len(rows) != 3 || rows[m.cursor] != m.editing {
		t.Fatalf("cursor should follow the new row: rows=%v cursor=%d editing=%v", rows, m.cursor, m.editing)
	}
}

func TestDeleteMovesCursorInBounds(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	openResolved(t, m)
	press(m, "j")
	if m.cursor != 1 {
		t.Fatalf("cursor should move down, got %d", m.cursor)
	}
	press(m, "d")
	if len(m.rows()) != 1 || m.cursor != 0 {
		t.Fatalf("cursor out of bounds after delete: rows=%d cursor=%d", len(m.rows()), m.cursor)
	}
}

func TestDiscardReturnsToLibrary(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	openResolved(t, m)
	press(m, "esc")
	if m.stage != stageLibrary || m.session.Phase() != session.PhaseIdle {
		t.Fatalf("discard should close the document (stage=%v phase=%s)", m.stage, m.session.Phase())
	}
}

func TestCreateFlowOpensNewDocument(t *testing.T) {
	m, store := newTestModel(t, &fakeLLM{})
	press(m, "n")
	if m.stage != stageCreate {
		t.Fatalf("expected create stage, got %v", m.stage)
	}
	press(m, "Weekly report")
	if cmd := press(m, "enter"); cmd == nil {
		t.Fatal("enter should start the create job")
	}

	msg, err := createDocumentJob(store, "Weekly report")(context.Background())
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	m.Update(msg)
	if m.stage != stageEditor || m.session.Phase() != session.PhaseWaiting {
		t.Fatalf("new document should open waiting (stage=%v phase=%s)", m.stage, m.session.Phase())
	}
}

func TestCopyWithoutResponseReportsError(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	openResolved(t, m)
	if cmd := press(m, "y"); cmd != nil {
		t.Fatal("nothing to copy yet")
	}
	if !strings.Contains(m.errorMessage, "Nothing to copy") {
		t.Fatalf("unexpected error message %q", m.errorMessage)
	}
	m.Update(copyResultMsg{label: "response"})
	if m.infoMessage != "Copied response to the clipboard." {
		t.Fatalf("unexpected info message %q", m.infoMessage)
	}
}

func TestModelsResult(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{models: []string{"llama3"}})
	if cmd := press(m, "m"); cmd == nil {
		t.Fatal("m should start the models job")
	}
	m.Update(modelsResultMsg{models: []string{"llama3", "mistral"}})
	if m.infoMessage != "Models: llama3, mistral" {
		t.Fatalf("unexpected info message %q", m.infoMessage)
	}
}

func TestLibraryChangeReloadsOnlyInBrowser(t *testing.T) {
	m, _ := newTestModel(t, &fakeLLM{})
	if _, cmd := m.Update(libraryChangedMsg{}); cmd == nil {
		t.Fatal("library browser should reload on change")
	}
	openResolved(t, m)
	if _, cmd := m.Update(libraryChangedMsg{}); cmd != nil {
		t.Fatal("open editor should not reload the library")
	}
}

func TestWindowSizeResizesResponse(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	if m.viewport.Width != 96 || m.viewport.Height != 15 {
		t.Fatalf("unexpected viewport %dx%d", m.viewport.Width, m.viewport.Height)
	}
}

func TestCtrlCCancelsAndQuits(t *testing.T) {
	client := &fakeLLM{}
	m, _ := newTestModel(t, client)
	openResolved(t, m)
	cmd := press(m, "ctrl+c")
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected a quit message")
	}
	if m.ctx.Err() == nil {
		t.Fatal("quitting should cancel the model context")
	}
	if client.aborted == 0 {
		t.Fatal("quitting should abort the backend")
	}
}
