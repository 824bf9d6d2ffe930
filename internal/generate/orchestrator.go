// Package generate builds the final prompt text from document fragments and
// drives the streaming backend for one generation epoch.
package generate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/csheth/promptbook/internal/llm"
	"github.com/csheth/promptbook/internal/resolve"
)

// Request is one generation to run. The context is the epoch's
// cancellation token; it is cancelled when the epoch is superseded.
type Request struct {
	Epoch       uint64
	Model       string
	Instruction []string
	Question    []string

	ctx context.Context
}

// Context returns the request's cancellation context.
func (r Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a copy of r carrying ctx.
func (r Request) WithContext(ctx context.Context) Request {
	r.ctx = ctx
	return r
}

// EventKind enumerates what an Event reports.
type EventKind int

const (
	// EventResolved carries the exact texts sent to the backend.
	EventResolved EventKind = iota
	// EventSnapshot carries the cumulative response so far.
	EventSnapshot
	// EventFailed carries the terminal "Error: <cause>" snapshot.
	EventFailed
	// EventDone marks the end of a successful stream.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventResolved:
		return "resolved"
	case EventSnapshot:
		return "snapshot"
	case EventFailed:
		return "failed"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is emitted by Run, always tagged with the request epoch.
type Event struct {
	Epoch       uint64
	Kind        EventKind
	Instruction string
	Question    string
	Text        string
	Err         error
}

// Orchestrator resolves fragments and streams the backend response.
type Orchestrator struct {
	Client   llm.Client
	Resolver resolve.Resolver
	// EnsureModel pulls or verifies the model before generating.
	EnsureModel bool
	Logger      *zap.Logger
}

// Run executes req and reports progress through emit on the calling
// goroutine. Cancellation of the request context ends the run without any
// further emission.
func (o *Orchestrator) Run(req Request, emit func(Event)) {
	ctx := req.Context()
	logger := o.logger().With(zap.Uint64("epoch", req.Epoch))
	started := time.Now()

	var instruction, question string
	g, gctx := errgroup.WithContext(ctx)
	// Resolution failures are substituted per fragment, so the only error
	// either list reports is the epoch's cancellation.
	g.Go(func() error {
		instruction = Resolve(gctx, o.Resolver, req.Instruction, logger)
		return gctx.Err()
	})
	g.Go(func() error {
		question = Resolve(gctx, o.Resolver, req.Question, logger)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		logger.Debug("generation cancelled during resolution")
		return
	}
	emit(Event{Epoch: req.Epoch, Kind: EventResolved, Instruction: instruction, Question: question})

	if o.Client == nil {
		emit(failure(req.Epoch, errors.New("no generation backend configured")))
		return
	}
	model := req.Model
	if model == "" {
		model = o.Client.DefaultModel()
	}
	if o.EnsureModel {
		if err := o.Client.EnsureModel(ctx, model); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("model unavailable", zap.String("model", model), zap.Error(err))
			emit(failure(req.Epoch, err))
			return
		}
	}

	logger.Info("generation started", zap.String("model", model))
	final := ""
	err := o.Client.Generate(ctx, llm.GenerateRequest{
		Model:  model,
		Prompt: question,
		System: instruction,
	}, func(snapshot string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		final = snapshot
		emit(Event{Epoch: req.Epoch, Kind: EventSnapshot, Text: snapshot})
		return nil
	})
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		logger.Info("generation cancelled", zap.Duration("duration", time.Since(started)))
	case err != nil:
		logger.Error("generation failed", zap.Error(err))
		emit(failure(req.Epoch, err))
	default:
		logger.Info("generation finished", zap.Duration("duration", time.Since(started)), zap.Int("chars", len(final)))
		emit(Event{Epoch: req.Epoch, Kind: EventDone, Text: final})
	}
}

// Stream runs req on a new goroutine and delivers its events on the
// returned channel, which is closed when the run ends. Once the request is
// cancelled, undelivered events are dropped so an abandoned channel never
// blocks the producer.
func (o *Orchestrator) Stream(req Request) <-chan Event {
	ch := make(chan Event)
	ctx := req.Context()
	go func() {
		defer close(ch)
		o.Run(req, func(ev Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func failure(epoch uint64, err error) Event {
	return Event{Epoch: epoch, Kind: EventFailed, Text: "Error: " + err.Error(), Err: err}
}
