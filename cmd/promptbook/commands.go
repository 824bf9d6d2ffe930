package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/promptbook/internal/generate"
	"github.com/csheth/promptbook/internal/session"
)

const modelsTimeout = 15 * time.Second

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the conversations in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := a.store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, doc := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", doc.Title(), doc.Model, firstLine(doc.Description))
			}
			return w.Flush()
		},
	}
}

func newNewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Create a conversation with a placeholder question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.store.Create(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.Path)
			return nil
		},
	}
}

func newModelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.client == nil {
				return a.llmErr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), modelsTimeout)
			defer cancel()
			models, err := a.client.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, name := range models {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newRunCommand(a *app) *cobra.Command {
	var showPrompt bool
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Generate a response for a conversation and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.client == nil {
				return a.llmErr
			}
			doc, err := a.store.Find(args[0])
			if err != nil {
				return err
			}
			sess := session.New(cmd.Context(), a.store, a.logger)
			req := sess.Open(doc)
			if req == nil {
				return pendingError(sess)
			}
			defer sess.DiscardAndClose()

			orchestrator := &generate.Orchestrator{
				Client:      a.client,
				Resolver:    a.resolver,
				EnsureModel: a.cfg.PullMissing,
				Logger:      a.logger.Named("generate"),
			}
			out := &snapshotWriter{w: cmd.OutOrStdout()}
			var runErr error
			orchestrator.Run(*req, func(ev generate.Event) {
				sess.Apply(ev)
				switch ev.Kind {
				case generate.EventResolved:
					if showPrompt {
						fmt.Fprintf(cmd.ErrOrStderr(), "--- instruction\n%s\n--- question\n%s\n---\n", ev.Instruction, ev.Question)
					}
				case generate.EventSnapshot:
					out.write(ev.Text)
				case generate.EventFailed:
					runErr = ev.Err
				case generate.EventDone:
					out.finish()
				}
			})
			if runErr != nil {
				a.logger.Warn("run failed", zap.String("name", doc.Name), zap.Error(runErr))
				return errors.Wrapf(runErr, "run %s", doc.Title())
			}
			return cmd.Context().Err()
		},
	}
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "print the resolved instruction and question to stderr")
	return cmd
}

// snapshotWriter turns cumulative snapshots into incremental output.
type snapshotWriter struct {
	w       io.Writer
	written string
}

func (s *snapshotWriter) write(snapshot string) {
	if strings.HasPrefix(snapshot, s.written) {
		fmt.Fprint(s.w, snapshot[len(s.written):])
	} else {
		fmt.Fprint(s.w, "\n"+snapshot)
	}
	s.written = snapshot
}

func (s *snapshotWriter) finish() {
	if s.written != "" && !strings.HasSuffix(s.written, "\n") {
		fmt.Fprintln(s.w)
	}
}

func pendingError(sess *session.Session) error {
	var pending []string
	for _, kind := range []session.ListKind{session.Instruction, session.Question} {
		for _, f := range sess.Fragments(kind) {
			if f.Pending {
				pending = append(pending, fmt.Sprintf("%s: %s", kind, firstLine(f.Value)))
			}
		}
	}
	return errors.Errorf("%d fragment(s) need input before generating:\n  %s",
		len(pending), strings.Join(pending, "\n  "))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
