package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	QueryCounter        metric.Int64Counter
	RetrievalDuration   metric.Float64Histogram
	GenerationDuration  metric.Float64Histogram
	IngestedChunks      metric.Int64Counter
	TokensUsed          metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics bound to the global meter provider. Components
// that are not handed a *Metrics explicitly record through it.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := InitMetrics()
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(ServiceName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryCounter, err := meter.Int64Counter(
		"rag.queries.total",
		metric.WithDescription("Pipeline queries by terminal stage"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"rag.retrieval.duration",
		metric.WithDescription("Embedding plus index search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"rag.generation.duration",
		metric.WithDescription("Answer generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestedChunks, err := meter.Int64Counter(
		"rag.ingest.chunks",
		metric.WithDescription("Chunks committed to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"llm.tokens.used",
		metric.WithDescription("Total model tokens used"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		QueryCounter:        queryCounter,
		RetrievalDuration:   retrievalDuration,
		GenerationDuration:  generationDuration,
		IngestedChunks:      ingestedChunks,
		TokensUsed:          tokensUsed,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil || m.RequestCounter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)
	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordQuery records the terminal stage of a pipeline run.
func (m *Metrics) RecordQuery(ctx context.Context, stage string, streaming bool) {
	if m == nil || m.QueryCounter == nil {
		return
	}
	m.QueryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rag.stage", stage),
		attribute.Bool("rag.streaming", streaming),
	))
}

func (m *Metrics) RecordRetrieval(ctx context.Context, seconds float64, hits int) {
	if m == nil || m.RetrievalDuration == nil {
		return
	}
	m.RetrievalDuration.Record(ctx, seconds, metric.WithAttributes(attribute.Int("rag.hits", hits)))
}

func (m *Metrics) RecordGeneration(ctx context.Context, seconds float64, model string) {
	if m == nil || m.GenerationDuration == nil {
		return
	}
	m.GenerationDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("llm.model", model)))
}

func (m *Metrics) RecordIngest(ctx context.Context, chunks int, source string) {
	if m == nil || m.IngestedChunks == nil {
		return
	}
	m.IngestedChunks.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("rag.source", source)))
}

// RecordTokensUsed records model token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	if m == nil || m.TokensUsed == nil {
		return
	}
	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attribute.String("llm.model", model)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil || m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}
