// Package session is the editing and generation state machine for the one
// open document. A Session is not safe for concurrent use: every call must
// come from a single dispatch loop, and generation output re-enters through
// Apply on that same loop.
package session

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/document"
	"github.com/csheth/promptbook/internal/fragment"
	"github.com/csheth/promptbook/internal/generate"
)

var (
	// ErrNoDocument is returned by operations that need an open document.
	ErrNoDocument = errors.New("no document open")
	// ErrPending is returned while fragments still wait for user input.
	ErrPending = errors.New("fragments are still pending")
)

// Phase is the coarse session state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseGenerating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

// ListKind selects the instruction or the question fragments.
type ListKind int

const (
	Instruction ListKind = iota
	Question
)

func (k ListKind) String() string {
	if k == Instruction {
		return "instruction"
	}
	return "question"
}

// Generation is the state of the current epoch's output.
type Generation struct {
	Epoch               uint64
	ResolvedInstruction string
	ResolvedQuestion    string
	Accumulated         string
	Resolved            bool
	Done                bool
	Aborted             bool
	Err                 error
}

// Finished reports whether no more output will be applied.
func (g *Generation) Finished() bool {
	return g.Done || g.Aborted
}

// Saver persists documents.
type Saver interface {
	Save(doc document.Document) error
}

// Session owns the open document, its fragments and the generation epoch.
type Session struct {
	saver  Saver
	logger *zap.Logger
	base   context.Context

	document    *document.Document
	instruction []fragment.Fragment
	question    []fragment.Fragment
	generation  *Generation
	phase       Phase

	epoch  uint64
	lastID int
	cancel context.CancelFunc
}

// New returns an idle session. Generation contexts derive from ctx.
func New(ctx context.Context, saver Saver, logger *zap.Logger) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{saver: saver, logger: logger.Named("session"), base: ctx}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Generation returns the live generation, or nil.
func (s *Session) Generation() *Generation {
	return s.generation
}

// Fragments returns a copy of the fragments of the given list.
func (s *Session) Fragments(kind ListKind) []fragment.Fragment {
	return append([]fragment.Fragment(nil), s.list(kind)...)
}

// Document returns the open document, if any.
func (s *Session) Document() (document.Document, bool) {
	if s.document == nil {
		return document.Document{}, false
	}
	return *s.document, true
}

// Open seeds the fragments from doc. Placeholder fragments start pending with
// the marker stripped. When nothing is pending a generation starts at once
// and its request is returned.
func (s *Session) Open(doc document.Document) *generate.Request {
	s.stopGeneration()
	copied := doc
	copied.Instruction = append([]string(nil), doc.Instruction...)
	copied.Question = append([]string(nil), doc.Question...)
	s.document = &copied
	s.lastID = 0
	s.instruction = s.seed(doc.Instruction)
	s.question = s.seed(doc.Question)
	s.logger.Info("document opened",
		zap.String("path", doc.Path),
		zap.Int("instruction", len(s.instruction)),
		zap.Int("question", len(s.question)))
	if s.anyPending() {
		s.phase = PhaseWaiting
		return nil
	}
	return s.startGeneration()
}

func (s *Session) seed(values []string) []fragment.Fragment {
	fragments := make([]fragment.Fragment, 0, len(values))
	for _, value := range values {
		s.lastID++
		fragments = append(fragments, fragment.Fragment{
			ID:      s.lastID,
			Value:   document.StripPlaceholder(value),
			Pending: document.IsPlaceholder(value),
		})
	}
	return fragments
}

// Toggle flips the pending flag of one fragment. Resolving the last pending
// fragment restarts generation; reopening any fragment cancels it.
func (s *Session) Toggle(kind ListKind, id int) *generate.Request {
	if s.document == nil {
		return nil
	}
	if _, ok := fragment.Find(s.list(kind), id); !ok {
		return nil
	}
	s.setList(kind, fragment.Toggle(s.list(kind), id))
	if s.anyPending() {
		s.enterWaiting()
		return nil
	}
	return s.startGeneration()
}

// SetValue replaces a fragment's text without touching phase. Text with
// blank lines becomes consecutive fragments sharing the edited fragment's
// pending flag, so a saved document reloads with the same fragments.
func (s *Session) SetValue(kind ListKind, id int, value string) {
	if s.document == nil {
		return
	}
	current, ok := fragment.Find(s.list(kind), id)
	if !ok {
		return
	}
	paragraphs := document.Paragraphs(value)
	if len(paragraphs) == 0 {
		paragraphs = []string{""}
	}
	s.setList(kind, fragment.SetValue(s.list(kind), id, paragraphs[0]))
	after := id
	for _, extra := range paragraphs[1:] {
		ids := append(fragment.IDs(s.instruction, s.question), s.lastID)
		list, added := fragment.InsertAfter(s.list(kind), ids, after)
		list = fragment.SetValue(list, added, extra)
		list = fragment.SetPending(list, added, current.Pending)
		s.lastID = added
		s.setList(kind, list)
		after = added
	}
}

// Add inserts a new pending fragment after afterID and returns its id. The
// new fragment puts the session back into Waiting.
func (s *Session) Add(kind ListKind, afterID int) int {
	if s.document == nil {
		return 0
	}
	ids := append(fragment.IDs(s.instruction, s.question), s.lastID)
	list, id := fragment.InsertAfter(s.list(kind), ids, afterID)
	s.lastID = id
	s.setList(kind, list)
	s.enterWaiting()
	return id
}

// Delete removes a fragment. Removing the only pending fragment starts a
// generation exactly as resolving it would.
func (s *Session) Delete(kind ListKind, id int) *generate.Request {
	if s.document == nil {
		return nil
	}
	if _, ok := fragment.Find(s.list(kind), id); !ok {
		return nil
	}
	wasWaiting := s.phase == PhaseWaiting
	s.setList(kind, fragment.Delete(s.list(kind), id))
	if s.anyPending() {
		s.enterWaiting()
		return nil
	}
	if wasWaiting {
		return s.startGeneration()
	}
	return nil
}

// Regenerate cancels any in-flight generation and starts a new one.
func (s *Session) Regenerate() (*generate.Request, error) {
	if s.document == nil {
		return nil, ErrNoDocument
	}
	if s.anyPending() {
		return nil, ErrPending
	}
	return s.startGeneration(), nil
}

// Abort cancels the in-flight generation. Output received so far stays
// visible and the phase stays Generating.
func (s *Session) Abort() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.generation != nil && !s.generation.Finished() {
		s.generation.Aborted = true
		s.logger.Info("generation aborted", zap.Uint64("epoch", s.generation.Epoch))
	}
}

// SaveAndClose writes the current fragment values back into the document,
// persists it and returns to Idle.
func (s *Session) SaveAndClose() error {
	if s.document == nil {
		return ErrNoDocument
	}
	if s.phase == PhaseWaiting {
		return ErrPending
	}
	doc := s.merged()
	if s.saver != nil {
		if err := s.saver.Save(doc); err != nil {
			return errors.Wrapf(err, "save %s", doc.Path)
		}
	}
	s.logger.Info("document saved", zap.String("path", doc.Path))
	s.close()
	return nil
}

// DiscardAndClose returns to Idle without persisting.
func (s *Session) DiscardAndClose() {
	s.close()
}

// Merged returns the open document with the session's fragment values.
func (s *Session) Merged() (document.Document, bool) {
	if s.document == nil {
		return document.Document{}, false
	}
	return s.merged(), true
}

// Apply folds a generation event into the session. Events from any epoch
// other than the live, unfinished one are ignored; the return value reports
// whether the event was applied.
func (s *Session) Apply(ev generate.Event) bool {
	g := s.generation
	if g == nil || g.Epoch != ev.Epoch || g.Finished() {
		return false
	}
	switch ev.Kind {
	case generate.EventResolved:
		g.ResolvedInstruction = ev.Instruction
		g.ResolvedQuestion = ev.Question
		g.Resolved = true
	case generate.EventSnapshot:
		g.Accumulated = ev.Text
	case generate.EventFailed:
		g.Accumulated = ev.Text
		g.Err = ev.Err
		g.Done = true
		s.cancel = nil
	case generate.EventDone:
		if ev.Text != "" {
			g.Accumulated = ev.Text
		}
		g.Done = true
		s.cancel = nil
	default:
		return false
	}
	return true
}

func (s *Session) startGeneration() *generate.Request {
	s.stopGeneration()
	s.epoch++
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.generation = &Generation{Epoch: s.epoch}
	s.phase = PhaseGenerating
	req := generate.Request{
		Epoch:       s.epoch,
		Model:       s.document.Model,
		Instruction: fragment.Values(s.instruction),
		Question:    fragment.Values(s.question),
	}.WithContext(ctx)
	s.logger.Info("generation requested", zap.Uint64("epoch", s.epoch), zap.String("model", req.Model))
	return &req
}

// stopGeneration cancels the live epoch and drops its output.
func (s *Session) stopGeneration() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation = nil
}

func (s *Session) enterWaiting() {
	if s.phase == PhaseGenerating {
		s.logger.Debug("generation discarded for editing", zap.Uint64("epoch", s.epoch))
	}
	s.stopGeneration()
	s.phase = PhaseWaiting
}

func (s *Session) close() {
	s.stopGeneration()
	s.document = nil
	s.instruction = nil
	s.question = nil
	s.phase = PhaseIdle
}

func (s *Session) merged() document.Document {
	doc := *s.document
	doc.Instruction = nonEmpty(fragment.Values(s.instruction))
	doc.Question = nonEmpty(fragment.Values(s.question))
	return doc
}

func (s *Session) anyPending() bool {
	return fragment.AnyPending(s.instruction, s.question)
}

func (s *Session) list(kind ListKind) []fragment.Fragment {
	if kind == Instruction {
		return s.instruction
	}
	return s.question
}

func (s *Session) setList(kind ListKind, fragments []fragment.Fragment) {
	if kind == Instruction {
		s.instruction = fragments
		return
	}
	s.question = fragments
}

func nonEmpty(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		result = append(result, value)
	}
	return result
}
