package tui

import (
	"github.com/csheth/promptbook/internal/document"
	"github.com/csheth/promptbook/internal/generate"
	"github.com/csheth/promptbook/internal/session"
)

type stage int

const (
	stageLibrary stage = iota
	stageCreate
	stageEditor
	stageEditing
)

const heroTitle = "Promptbook"

const heroTagline = "Compose prompts from fragments. Answers stream in as they are written."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	minResponseHeight         = 6
	descriptionPreviewLimit   = 160
)

// fragmentRef addresses one editor row.
type fragmentRef struct {
	kind session.ListKind
	id   int
}

type libraryResultMsg struct {
	docs []document.Document
	err  error
}

type createResultMsg struct {
	doc document.Document
	err error
}

type modelsResultMsg struct {
	models []string
	err    error
}

type copyResultMsg struct {
	label string
	err   error
}

type streamEventMsg struct {
	event  generate.Event
	events <-chan generate.Event
}

type streamClosedMsg struct {
	epoch uint64
}

type libraryChangedMsg struct{}

type keyHint struct {
	Key         string
	Description string
}
