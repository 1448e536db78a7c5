// Package pipeline runs a declaration through the design stages. Each stage
// tries its rule first, then the completion service, and always ends with a
// complete, clamped result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/terra-clan/challenge-designer/internal/llm"
	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/internal/parser"
	"github.com/terra-clan/challenge-designer/internal/prompts"
)

const tracerName = "github.com/terra-clan/challenge-designer/internal/pipeline"

var (
	// ErrMissingInput is returned when a required text field is empty
	ErrMissingInput = errors.New("missing input")
	// ErrInvalidInput is returned when a field holds a value outside its set
	ErrInvalidInput = errors.New("invalid input")
)

// Completer is the slice of the completion gateway the pipeline needs
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Observer receives every stage transition of Design. It is called
// synchronously from the pipeline goroutine.
type Observer func(models.StageEvent)

type settings struct {
	temperature float64
	maxTokens   int
	retries     int
}

var (
	analysisSettings   = settings{temperature: 0.1, maxTokens: 300, retries: 3}
	actionSettings     = settings{temperature: 0.4, retries: 3}
	concretizeSettings = settings{temperature: 0.7, maxTokens: 400}
	suggestionSettings = settings{temperature: 0.7, maxTokens: 200}
)

// Orchestrator runs the pipeline stages. It keeps no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	llm     Completer
	prompts *prompts.Builder
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates an orchestrator
func New(completer Completer, builder *prompts.Builder) *Orchestrator {
	return &Orchestrator{
		llm:     completer,
		prompts: builder,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// ask sends a prompt and decodes the JSON object in the answer into v
func (o *Orchestrator) ask(ctx context.Context, p prompts.Prompt, s settings, v any) error {
	text, err := o.complete(ctx, p, s)
	if err != nil {
		return err
	}
	return parser.Decode(text, v)
}

func (o *Orchestrator) complete(ctx context.Context, p prompts.Prompt, s settings) (string, error) {
	req := llm.NewRequest(p.System, p.User)
	req.Temperature = s.temperature
	req.MaxTokens = s.maxTokens
	req.MaxRetries = s.retries
	return o.llm.Complete(ctx, req)
}

func (o *Orchestrator) startSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "pipeline."+stage)
}

// finishSpan records the path a stage took and ends the span
func finishSpan(span trace.Span, method models.Method, err error) {
	span.SetAttributes(attribute.String("stage.method", string(method)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func logFallback(ctx context.Context, stage string, err error) {
	slog.WarnContext(ctx, "stage fell back to default",
		"stage", stage,
		"error", err,
	)
}
