package tui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/promptbook/internal/generate"
	"github.com/csheth/promptbook/internal/library"
	"github.com/csheth/promptbook/internal/llm"
)

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

func loadLibraryJob(store *library.Store) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		docs, err := store.List()
		return libraryResultMsg{docs: docs, err: err}, err
	}
}

func createDocumentJob(store *library.Store, name string) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		doc, err := store.Create(name)
		return createResultMsg{doc: doc, err: err}, err
	}
}

func listModelsJob(client llm.Client) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()
		models, err := client.ListModels(ctx)
		return modelsResultMsg{models: models, err: err}, err
	}
}

func copyJob(label, text string) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		err := clipboardWriteAll(text)
		return copyResultMsg{label: label, err: err}, err
	}
}

// streamCmd starts the request and waits for its first event. Every event
// message carries the channel so the next wait can be chained from Update.
func streamCmd(o *generate.Orchestrator, req generate.Request) tea.Cmd {
	return func() tea.Msg {
		return nextEvent(req.Epoch, o.Stream(req))
	}
}

func waitForEvent(epoch uint64, events <-chan generate.Event) tea.Cmd {
	return func() tea.Msg {
		return nextEvent(epoch, events)
	}
}

func nextEvent(epoch uint64, events <-chan generate.Event) tea.Msg {
	ev, ok := <-events
	if !ok {
		return streamClosedMsg{epoch: epoch}
	}
	return streamEventMsg{event: ev, events: events}
}

func watchLibraryCmd(w *library.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changes()
		return libraryChangedMsg{}
	}
}
