// Package crud exposes a document-store collection as a live set of
// records plus create/read/update/delete operations that always answer
// with a response.Envelope.
//
// An Adapter built with a default target subscribes to that collection
// once, at construction, and keeps Records current until Close. The
// target and filter given to New are fixed for the adapter's lifetime;
// changing either means building a new Adapter.
package crud

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rawewhat/quera/query"
	"github.com/rawewhat/quera/response"
	"github.com/rawewhat/quera/store"
)

const tracerName = "github.com/rawewhat/quera/crud"

// TimestampField is the field Create stamps with the store's server time.
const TimestampField = "timestamp"

var (
	// ErrInvalidInput is wrapped by every validation failure; such
	// failures answer 400 without touching the store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTarget is returned when neither a per-call nor a default target is set.
	ErrNoTarget = fmt.Errorf("%w: no target collection", ErrInvalidInput)

	// ErrNoData is returned when a payload is required but missing.
	ErrNoData = fmt.Errorf("%w: missing payload", ErrInvalidInput)

	// ErrNoID is returned when a document ID is required but empty.
	ErrNoID = fmt.Errorf("%w: missing document id", ErrInvalidInput)

	// ErrNilClient is returned by New when no store client is given.
	ErrNilClient = errors.New("store client must not be nil")
)

// Logger receives the adapter's diagnostics. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures an Adapter at construction.
type Option func(*Adapter) error

// WithFilter restricts the live subscription to documents matching
// selector (see package query). An empty selector subscribes to the
// whole collection. A selector that does not parse makes New fail.
func WithFilter(selector string) Option {
	return func(a *Adapter) error {
		if selector == "" {
			return nil
		}
		expr, err := query.Parse(selector)
		if err != nil {
			return err
		}
		a.filter = expr
		return nil
	}
}

// WithLogger sets the diagnostics sink. Without it the adapter is silent.
func WithLogger(logger Logger) Option {
	return func(a *Adapter) error {
		a.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for per-operation spans. Defaults to
// the global OpenTelemetry tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Adapter) error {
		if tracer != nil {
			a.tracer = tracer
		}
		return nil
	}
}

// WithOnChange registers fn to be called with every new set of live
// records, after Records has been replaced.
func WithOnChange(fn func([]Record)) Option {
	return func(a *Adapter) error {
		a.onChange = fn
		return nil
	}
}

// CallOption adjusts a single CRUD call.
type CallOption func(*callOptions)

type callOptions struct {
	target string
}

// In points a single call at collection instead of the default target.
func In(collection string) CallOption {
	return func(o *callOptions) {
		if collection != "" {
			o.target = collection
		}
	}
}

// Adapter binds a store client to an optional default collection.
type Adapter struct {
	client   store.Client
	target   string
	filter   query.Expression
	logger   Logger
	tracer   trace.Tracer
	onChange func([]Record)
	binding  liveBinding
}

// New creates an Adapter. When target is non-empty the adapter
// subscribes to it (narrowed by WithFilter, if given) before returning.
func New(client store.Client, target string, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	a := &Adapter{
		client: client,
		target: target,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	if target != "" {
		if err := a.activate(target, a.filter); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Target returns the default collection, or "" if none.
func (a *Adapter) Target() string { return a.target }

// Records returns the current live records. It is nil when the adapter
// has no default target.
func (a *Adapter) Records() []Record { return a.binding.current() }

// Active reports whether the adapter holds a live subscription.
func (a *Adapter) Active() bool { return a.binding.active() }

// Close releases the live subscription. Only the first call has an effect.
func (a *Adapter) Close() {
	if a.binding.release() {
		a.logInfo("live subscription released", "collection", a.target)
	}
}

func (a *Adapter) resolve(opts []CallOption) string {
	o := callOptions{target: a.target}
	for _, opt := range opts {
		opt(&o)
	}
	return o.target
}

// where applies expr to q.
func where(q store.Query, expr query.Expression) (store.Query, error) {
	switch e := expr.(type) {
	case query.Comparison:
		return q.Where(e.Field, e.Operator, e.Value), nil
	default:
		return nil, fmt.Errorf("%w: expression %T", query.ErrUnsupported, expr)
	}
}

// attempt runs fn inside a span and turns any error into an envelope:
// validation and parse failures answer 400, store.ErrNotFound 404 and
// anything else 500 with the error as payload.
func (a *Adapter) attempt(
	ctx context.Context,
	op string,
	target string,
	fn func(ctx context.Context) (response.Envelope, error),
) response.Envelope {
	ctx, span := a.tracer.Start(ctx, "crud."+op, trace.WithAttributes(
		attribute.String("quera.collection", target),
	))
	defer span.End()

	env, err := fn(ctx)
	if err != nil {
		env = failure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("quera.code", env.Code))

	switch {
	case err == nil:
		a.logDebug("crud "+op, "collection", target, "code", env.Code, "data", env.Data)
	case env.Code == response.CodeInternal:
		a.logError("crud "+op+" failed", err, "collection", target, "code", env.Code)
	default:
		a.logWarn("crud "+op+" rejected", "collection", target, "code", env.Code, "error", err.Error())
	}
	return env
}

func failure(err error) response.Envelope {
	var pe *query.ParseError
	switch {
	case errors.Is(err, ErrInvalidInput), errors.As(err, &pe), errors.Is(err, query.ErrUnsupported):
		return response.Build(nil, response.CodeBadRequest)
	case errors.Is(err, store.ErrNotFound):
		return response.Build(nil, response.CodeNotFound)
	default:
		return response.Build(err, response.CodeInternal)
	}
}

func (a *Adapter) logDebug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}

func (a *Adapter) logInfo(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}

func (a *Adapter) logWarn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

func (a *Adapter) logError(msg string, err error, args ...any) {
	if a.logger != nil {
		allArgs := []any{"error", err.Error()}
		allArgs = append(allArgs, args...)
		a.logger.Error(msg, allArgs...)
	}
}
