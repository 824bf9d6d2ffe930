package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/document"
	"github.com/csheth/promptbook/internal/fragment"
	"github.com/csheth/promptbook/internal/generate"
	"github.com/csheth/promptbook/internal/library"
	"github.com/csheth/promptbook/internal/llm"
	"github.com/csheth/promptbook/internal/resolve"
	"github.com/csheth/promptbook/internal/session"
)

// Config wires runtime options into the TUI program.
type Config struct {
	Library *library.Store
	// Watcher, when set, reloads the library browser on disk changes.
	Watcher     *library.Watcher
	LLM         llm.Client
	Resolver    resolve.Resolver
	PullMissing bool
	Logger      *zap.Logger
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tui")
	ctx, cancel := context.WithCancel(context.Background())

	var saver session.Saver
	if config.Library != nil {
		saver = config.Library
	}

	editor := textarea.New()
	editor.Placeholder = "Fragment text, a link or a file path…"
	editor.ShowLineNumbers = false
	editor.CharLimit = 0

	nameInput := textinput.New()
	nameInput.Placeholder = "Name of the new conversation"
	nameInput.CharLimit = 80

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 12)
	vp.MouseWheelEnabled = true

	m := &model{
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		stage:   stageLibrary,
		session: session.New(ctx, saver, logger),
		orchestrator: &generate.Orchestrator{
			Client:      config.LLM,
			Resolver:    config.Resolver,
			EnsureModel: config.PullMissing,
			Logger:      logger,
		},
		jobs:        newJobBus(ctx, logger),
		runningJobs: map[string]jobSnapshot{},
		layout:      newPageLayout(),
		editor:      editor,
		nameInput:   nameInput,
		spinner:     spin,
		viewport:    vp,
		infoMessage: "Loading library…",
	}
	m.applyLayout()
	return m
}

type model struct {
	config Config
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	stage  stage

	session      *session.Session
	orchestrator *generate.Orchestrator
	jobs         *jobBus
	runningJobs  map[string]jobSnapshot

	layout    pageLayout
	editor    textarea.Model
	nameInput textinput.Model
	spinner   spinner.Model
	viewport  viewport.Model
	renderer  *glamour.TermRenderer
	spinning  bool

	docs          []document.Document
	libraryCursor int
	models        []string

	cursor  int
	editing fragmentRef

	responseDirty bool
	infoMessage   string
	errorMessage  string
	helpVisible   bool
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadLibraryCmd()}
	if m.config.Watcher != nil {
		cmds = append(cmds, watchLibraryCmd(m.config.Watcher))
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.applyLayout()
		return m, nil
	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case jobSignalMsg:
		m.runningJobs[msg.Snapshot.ID] = msg.Snapshot
		return m, m.ensureSpinner()
	case jobResultEnvelope:
		delete(m.runningJobs, msg.Snapshot.ID)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case libraryResultMsg:
		return m.handleLibraryResult(msg)
	case createResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Could not create document: %v", msg.err)
			return m, nil
		}
		m.infoMessage = fmt.Sprintf("Created %s.", msg.doc.Path)
		return m, tea.Batch(m.openDocument(msg.doc), m.loadLibraryCmd())
	case modelsResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Could not list models: %v", msg.err)
			return m, nil
		}
		m.models = msg.models
		m.errorMessage = ""
		if len(msg.models) == 0 {
			m.infoMessage = "The backend reports no models."
		} else {
			m.infoMessage = "Models: " + strings.Join(msg.models, ", ")
		}
		return m, nil
	case copyResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("Copy failed: %v", msg.err)
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Copied %s to the clipboard.", msg.label)
		return m, nil
	case streamEventMsg:
		if m.session.Apply(msg.event) {
			m.markResponseDirty()
			if msg.event.Kind == generate.EventFailed {
				m.logger.Warn("generation failed", zap.Uint64("epoch", msg.event.Epoch), zap.Error(msg.event.Err))
			}
		}
		return m, waitForEvent(msg.event.Epoch, msg.events)
	case streamClosedMsg:
		m.markResponseDirty()
		return m, nil
	case libraryChangedMsg:
		var cmds []tea.Cmd
		if m.stage == stageLibrary {
			cmds = append(cmds, m.loadLibraryCmd())
		}
		if m.config.Watcher != nil {
			cmds = append(cmds, watchLibraryCmd(m.config.Watcher))
		}
		return m, tea.Batch(cmds...)
	case tea.MouseMsg:
		if m.stage == stageEditor {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.shutdown()
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.stage {
	case stageLibrary:
		return m.handleLibraryKey(key)
	case stageCreate:
		return m.handleCreateKey(key)
	case stageEditor:
		return m.handleEditorKey(key)
	case stageEditing:
		return m.handleEditingKey(key)
	}
	return m, nil
}

func (m *model) handleLibraryKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "q", "esc":
		m.shutdown()
		return m, tea.Quit
	case "up", "k":
		if m.libraryCursor > 0 {
			m.libraryCursor--
		}
	case "down", "j":
		if m.libraryCursor < len(m.docs)-1 {
			m.libraryCursor++
		}
	case "enter":
		if len(m.docs) == 0 {
			return m, nil
		}
		return m, m.openDocument(m.docs[m.libraryCursor])
	case "n":
		m.stage = stageCreate
		m.nameInput.SetValue("")
		m.errorMessage = ""
		return m, m.nameInput.Focus()
	case "r":
		return m, m.loadLibraryCmd()
	case "m":
		if m.config.LLM == nil {
			m.errorMessage = "No generation backend configured."
			return m, nil
		}
		m.infoMessage = "Listing models…"
		return m, m.jobs.Start(jobKindModels, listModelsJob(m.config.LLM))
	case "?":
		m.helpVisible = !m.helpVisible
	}
	return m, nil
}

func (m *model) handleCreateKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		m.nameInput.Blur()
		m.stage = stageLibrary
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			m.errorMessage = "Enter a name for the conversation."
			return m, nil
		}
		if m.config.Library == nil {
			m.errorMessage = "No library configured."
			return m, nil
		}
		m.nameInput.Blur()
		m.stage = stageLibrary
		m.errorMessage = ""
		m.infoMessage = "Creating " + name + "…"
		return m, m.jobs.Start(jobKindCreate, createDocumentJob(m.config.Library, name))
	}
	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(key)
	return m, cmd
}

func (m *model) handleEditorKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.rows()
	current, hasRow := m.currentRow(rows)
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(rows)-1 {
			m.cursor++
		}
	case " ":
		if !hasRow {
			return m, nil
		}
		return m, m.afterTransition(m.session.Toggle(current.kind, current.id))
	case "enter", "e":
		if !hasRow {
			return m, nil
		}
		return m, m.startEditing(current)
	case "a":
		kind := session.Question
		after := 0
		if hasRow {
			kind, after = current.kind, current.id
		}
		return m, m.addFragment(kind, after)
	case "I":
		return m, m.addFragment(session.Instruction, lastID(m.session.Fragments(session.Instruction)))
	case "Q":
		return m, m.addFragment(session.Question, lastID(m.session.Fragments(session.Question)))
	case "d", "delete":
		if !hasRow {
			return m, nil
		}
		cmd := m.afterTransition(m.session.Delete(current.kind, current.id))
		m.clampCursor()
		return m, cmd
	case "g":
		req, err := m.session.Regenerate()
		if err != nil {
			m.errorMessage = m.describeSessionError(err)
			return m, nil
		}
		return m, m.afterTransition(req)
	case "x":
		m.session.Abort()
		m.markResponseDirty()
		m.infoMessage = "Generation aborted."
		return m, nil
	case "s":
		if err := m.session.SaveAndClose(); err != nil {
			m.errorMessage = m.describeSessionError(err)
			return m, nil
		}
		m.leaveEditor("Saved.")
		return m, m.loadLibraryCmd()
	case "esc":
		m.session.DiscardAndClose()
		m.leaveEditor("Changes discarded.")
		return m, nil
	case "y":
		return m, m.copyCmd("response", m.generationText(func(g *session.Generation) string { return g.Accumulated }))
	case "Y":
		return m, m.copyCmd("question", m.generationText(func(g *session.Generation) string { return g.ResolvedQuestion }))
	case "ctrl+y":
		return m, m.copyCmd("instruction", m.generationText(func(g *session.Generation) string { return g.ResolvedInstruction }))
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.refreshResponseIfDirty()
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	case "?":
		m.helpVisible = !m.helpVisible
	}
	return m, nil
}

func (m *model) handleEditingKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc", "ctrl+s":
		m.commitEditing()
		return m, nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(key)
	return m, cmd
}

func (m *model) openDocument(doc document.Document) tea.Cmd {
	m.stage = stageEditor
	m.cursor = 0
	m.errorMessage = ""
	m.helpVisible = false
	m.viewport.GotoTop()
	req := m.session.Open(doc)
	if req == nil {
		m.infoMessage = "Resolve the pending fragments to start generating."
	} else {
		m.infoMessage = ""
	}
	m.markResponseDirty()
	return m.startGeneration(req)
}

func (m *model) leaveEditor(message string) {
	m.stage = stageLibrary
	m.editor.Blur()
	m.errorMessage = ""
	m.infoMessage = message
	m.markResponseDirty()
}

func (m *model) startEditing(ref fragmentRef) tea.Cmd {
	f, ok := m.fragment(ref)
	if !ok {
		return nil
	}
	m.editing = ref
	m.stage = stageEditing
	m.editor.SetValue(f.Value)
	m.editor.CursorEnd()
	return m.editor.Focus()
}

func (m *model) commitEditing() {
	m.session.SetValue(m.editing.kind, m.editing.id, strings.TrimSpace(m.editor.Value()))
	m.editor.Blur()
	m.editor.Reset()
	m.stage = stageEditor
}

func (m *model) addFragment(kind session.ListKind, afterID int) tea.Cmd {
	id := m.session.Add(kind, afterID)
	if id == 0 {
		return nil
	}
	m.markResponseDirty()
	ref := fragmentRef{kind: kind, id: id}
	for i, row := range m.rows() {
		if row == ref {
			m.cursor = i
			break
		}
	}
	return m.startEditing(ref)
}

// afterTransition reacts to a session transition that may have produced a
// new generation request.
func (m *model) afterTransition(req *generate.Request) tea.Cmd {
	m.errorMessage = ""
	m.markResponseDirty()
	if m.session.Phase() == session.PhaseWaiting {
		m.infoMessage = "Resolve the pending fragments to start generating."
	} else {
		m.infoMessage = ""
	}
	return m.startGeneration(req)
}

func (m *model) startGeneration(req *generate.Request) tea.Cmd {
	if req == nil {
		return nil
	}
	m.viewport.GotoTop()
	return tea.Batch(streamCmd(m.orchestrator, *req), m.ensureSpinner())
}

func (m *model) copyCmd(label, text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		m.errorMessage = fmt.Sprintf("Nothing to copy: no %s yet.", label)
		return nil
	}
	return m.jobs.Start(jobKindCopy, copyJob(label, text))
}

func (m *model) generationText(pick func(*session.Generation) string) string {
	g := m.session.Generation()
	if g == nil {
		return ""
	}
	return pick(g)
}

func (m *model) handleLibraryResult(msg libraryResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Could not load library: %v", msg.err)
		return m, nil
	}
	m.docs = msg.docs
	if m.libraryCursor >= len(m.docs) {
		m.libraryCursor = len(m.docs) - 1
	}
	if m.libraryCursor < 0 {
		m.libraryCursor = 0
	}
	if m.stage == stageLibrary && strings.HasPrefix(m.infoMessage, "Loading") {
		m.infoMessage = ""
	}
	return m, nil
}

func (m *model) loadLibraryCmd() tea.Cmd {
	if m.config.Library == nil {
		return nil
	}
	return m.jobs.Start(jobKindLibrary, loadLibraryJob(m.config.Library))
}

func (m *model) describeSessionError(err error) string {
	switch {
	case errors.Is(err, session.ErrPending):
		return "Resolve the pending fragments first."
	case errors.Is(err, session.ErrNoDocument):
		return "No document is open."
	default:
		return fmt.Sprintf("Save failed: %v", err)
	}
}

func (m *model) shutdown() {
	m.session.Abort()
	if m.config.LLM != nil {
		m.config.LLM.Abort()
	}
	m.cancel()
}

func (m *model) busy() bool {
	if len(m.runningJobs) > 0 {
		return true
	}
	g := m.session.Generation()
	return g != nil && !g.Finished()
}

func (m *model) ensureSpinner() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

// rows lists the editor rows: instruction fragments first, then questions.
func (m *model) rows() []fragmentRef {
	var rows []fragmentRef
	for _, kind := range []session.ListKind{session.Instruction, session.Question} {
		for _, f := range m.session.Fragments(kind) {
			rows = append(rows, fragmentRef{kind: kind, id: f.ID})
		}
	}
	return rows
}

func (m *model) currentRow(rows []fragmentRef) (fragmentRef, bool) {
	if m.cursor < 0 || m.cursor >= len(rows) {
		return fragmentRef{}, false
	}
	return rows[m.cursor], true
}

func (m *model) clampCursor() {
	count := len(m.rows())
	if m.cursor >= count {
		m.cursor = count - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *model) fragment(ref fragmentRef) (fragment.Fragment, bool) {
	return fragment.Find(m.session.Fragments(ref.kind), ref.id)
}

func lastID(fragments []fragment.Fragment) int {
	if len(fragments) == 0 {
		return 0
	}
	return fragments[len(fragments)-1].ID
}
