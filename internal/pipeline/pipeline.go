package pipeline

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"compliance-rag-assistant/internal/ai"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/internal/prompt"
	"compliance-rag-assistant/internal/telemetry"
	"compliance-rag-assistant/internal/vectorstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Context owns everything a query needs. Build it once at startup and share
// it between handlers; it holds no per-query state.
type Context struct {
	embedder  ai.Embedder
	index     vectorstore.Index
	assembler *prompt.Assembler
	generator ai.Generator
	topK      int
	metrics   *telemetry.Metrics
}

// New validates and wires the pipeline dependencies. metrics may be nil.
func New(embedder ai.Embedder, index vectorstore.Index, assembler *prompt.Assembler, generator ai.Generator, topK int, metrics *telemetry.Metrics) (*Context, error) {
	switch {
	case embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case index == nil:
		return nil, errors.New("pipeline: index is required")
	case assembler == nil:
		return nil, errors.New("pipeline: assembler is required")
	case generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case topK <= 0:
		return nil, errors.New("pipeline: top_k must be positive")
	}
	return &Context{
		embedder:  embedder,
		index:     index,
		assembler: assembler,
		generator: generator,
		topK:      topK,
		metrics:   metrics,
	}, nil
}

func (pc *Context) TopK() int { return pc.topK }

func (pc *Context) Assembler() *prompt.Assembler { return pc.assembler }

// Ask answers question in blocking mode. The returned State is Done, or
// Failed with the same error that is returned.
func (pc *Context) Ask(ctx context.Context, question string) (State, error) {
	ctx, span := otel.Tracer("pipeline").Start(ctx, "pipeline.ask")
	defer span.End()

	s, err := State{}.Submit(strings.TrimSpace(question))
	if err != nil {
		return s, err
	}

	s = pc.retrieve(ctx, s)
	if s.Stage() == Failed {
		return pc.finish(ctx, span, s, false)
	}

	start := time.Now()
	answer, err := pc.generator.Generate(ctx, s.Prompt())
	if err != nil {
		s, _ = s.Fail(err)
	} else {
		s, _ = s.Complete(answer)
		pc.metrics.RecordGeneration(ctx, time.Since(start).Seconds(), pc.generator.ModelID())
	}
	return pc.finish(ctx, span, s, false)
}

// AskStream answers question in streaming mode. It yields the Retrieving
// and Generating snapshots, one Generating snapshot per fragment with the
// answer so far, and finally a Done or Failed snapshot. The sequence is
// single-use; breaking out of the loop cancels generation.
func (pc *Context) AskStream(ctx context.Context, question string) iter.Seq[State] {
	return func(yield func(State) bool) {
		ctx, span := otel.Tracer("pipeline").Start(ctx, "pipeline.ask_stream")
		defer span.End()

		s, err := State{}.Submit(strings.TrimSpace(question))
		if err != nil {
			// an Idle snapshot carrying the validation error
			s.err = err
			yield(s)
			return
		}
		if !yield(s) {
			return
		}

		s = pc.retrieve(ctx, s)
		if s.Stage() == Failed {
			s, _ = pc.finish(ctx, span, s, true)
			yield(s)
			return
		}
		if !yield(s) {
			return
		}

		start := time.Now()
		for fragment, err := range pc.generator.GenerateStream(ctx, s.Prompt()) {
			if err != nil {
				s, _ = s.Fail(err)
				break
			}
			s, _ = s.AppendFragment(fragment)
			if !yield(s) {
				pc.metrics.RecordQuery(ctx, "cancelled", true)
				return
			}
		}
		if s.Stage() == Generating {
			s, _ = s.Complete(s.Answer())
			pc.metrics.RecordGeneration(ctx, time.Since(start).Seconds(), pc.generator.ModelID())
		}
		s, _ = pc.finish(ctx, span, s, true)
		yield(s)
	}
}

// retrieve embeds the question, searches the index and builds the prompt.
// It returns a Generating or Failed state.
func (pc *Context) retrieve(ctx context.Context, s State) State {
	ctx, span := otel.Tracer("pipeline").Start(ctx, "pipeline.retrieve")
	defer span.End()
	start := time.Now()

	query, err := pc.embedder.EmbedOne(ctx, s.Question())
	if err != nil {
		return failRetrieve(span, s, err)
	}
	results, err := pc.index.Search(ctx, query, pc.topK)
	if err != nil {
		return failRetrieve(span, s, err)
	}

	pc.metrics.RecordRetrieval(ctx, time.Since(start).Seconds(), len(results))
	span.SetAttributes(attribute.Int("rag.hits", len(results)), attribute.Int("rag.top_k", pc.topK))

	p := pc.assembler.Build(s.Question(), results)
	next, _ := s.Retrieved(results, p.Text)
	return next
}

func failRetrieve(span trace.Span, s State, err error) State {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	failed, _ := s.Fail(err)
	return failed
}

func (pc *Context) finish(ctx context.Context, span trace.Span, s State, streaming bool) (State, error) {
	pc.metrics.RecordQuery(ctx, s.Stage().String(), streaming)
	span.SetAttributes(
		attribute.String("rag.stage", s.Stage().String()),
		attribute.Int("rag.sources", len(s.sources)),
		attribute.Int("rag.answer_chars", len(s.Answer())),
	)
	if err := s.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Query failed", "stage", s.Stage().String(), "streaming", streaming, "error", err)
		return s, err
	}
	logger.Debug("Query answered", "sources", len(s.sources), "streaming", streaming, "answer_chars", len(s.Answer()))
	return s, nil
}
