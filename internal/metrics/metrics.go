// Package metrics holds the Prometheus collectors for fieldreport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldreport"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Local persistence
var (
	DocumentSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_saves_total",
			Help:      "Local document saves by trigger (autosave, draft, close, complete) and outcome",
		},
		[]string{"trigger", "status"},
	)

	AutosaveTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosave_ticks_total",
			Help:      "Autosave timer firings, split by whether the document was dirty",
		},
		[]string{"dirty"},
	)

	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Documents currently open for editing",
		},
	)

	AuditEventFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_event_failures_total",
			Help:      "Audit events that could not be recorded",
		},
	)
)

// Remote mirror and uploads
var (
	MirrorPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_pushes_total",
			Help:      "Best-effort remote mirror pushes after a silent save",
		},
		[]string{"status"},
	)

	ArtifactsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_uploaded_total",
			Help:      "Report artifacts uploaded by format and outcome",
		},
		[]string{"format", "status"},
	)

	Ingestions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_ingestions_total",
			Help:      "Attachment ingestions by outcome (ready, failed)",
		},
		[]string{"status"},
	)

	Transcodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_transcodes_total",
			Help:      "Image transcodes to JPEG by outcome (ok, fallback)",
		},
		[]string{"status"},
	)

	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attachment_ingestion_duration_seconds",
			Help:      "Time from placeholder creation to result delivery",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// Completion step labels.
const (
	StepSanitize = "sanitize"
	StepAssign   = "assign"
	StepPersist  = "persist"
	StepRender   = "render"
	StepUpload   = "upload"
)

// Completion
var (
	CompletionSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_steps_total",
			Help:      "Completion sequence steps by name and outcome",
		},
		[]string{"step", "status"},
	)

	SequenceAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_assignments_total",
			Help:      "Report number assignments by outcome",
		},
		[]string{"status"},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of report artifacts generated",
		},
		[]string{"format"},
	)
)

// AI enrichment
var (
	AIAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_api_calls_total",
			Help:      "Total number of AI API calls",
		},
		[]string{"provider", "operation", "status"},
	)

	AITokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Total AI tokens consumed",
		},
		[]string{"provider", "type"},
	)
)

// Status returns the conventional outcome label.
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
