// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the learning domain. A nil *Metrics is valid and records nothing.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	topicsCompleted    *prometheus.CounterVec
	coursesCompleted   *prometheus.CounterVec
	courseUnlocks      *prometheus.CounterVec
	certificatesIssued prometheus.Counter
	assessments        *prometheus.CounterVec
	quizSubmissions    *prometheus.CounterVec

	chatMessages    *prometheus.CounterVec
	chatConnections prometheus.Gauge
}

// New creates collectors on a fresh registry, including the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		topicsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_topics_completed_total",
				Help: "Topics marked complete",
			},
			[]string{"course"},
		),
		coursesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_courses_completed_total",
				Help: "Courses reaching 100% progress",
			},
			[]string{"course"},
		),
		courseUnlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_course_unlocks_total",
				Help: "Paid courses unlocked",
			},
			[]string{"course"},
		),
		certificatesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "academy_certificates_issued_total",
				Help: "Certificates created",
			},
		),
		assessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_assessments_total",
				Help: "Mini-quiz and coding challenge checks",
			},
			[]string{"kind", "outcome"},
		),
		quizSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_quiz_submissions_total",
				Help: "Category quiz submissions",
			},
			[]string{"category", "mastery", "auto"},
		),
		chatMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_chat_messages_total",
				Help: "Assistant chat frames",
			},
			[]string{"direction"},
		),
		chatConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "academy_chat_connections",
				Help: "Open assistant chat connections",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCounter,
		m.requestDuration,
		m.topicsCompleted,
		m.coursesCompleted,
		m.courseUnlocks,
		m.certificatesIssued,
		m.assessments,
		m.quizSubmissions,
		m.chatMessages,
		m.chatConnections,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latencies by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// ServeMux fills in the matched pattern on the request it routed.
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) TopicCompleted(course string) {
	if m != nil {
		m.topicsCompleted.WithLabelValues(course).Inc()
	}
}

func (m *Metrics) CourseCompleted(course string) {
	if m != nil {
		m.coursesCompleted.WithLabelValues(course).Inc()
	}
}

func (m *Metrics) CourseUnlocked(course string) {
	if m != nil {
		m.courseUnlocks.WithLabelValues(course).Inc()
	}
}

func (m *Metrics) CertificateIssued() {
	if m != nil {
		m.certificatesIssued.Inc()
	}
}

// Assessment counts a check of kind "quiz" or "code".
func (m *Metrics) Assessment(kind string, passed bool) {
	if m == nil {
		return
	}
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	m.assessments.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) QuizSubmitted(category string, mastery, auto bool) {
	if m != nil {
		m.quizSubmissions.WithLabelValues(category, strconv.FormatBool(mastery), strconv.FormatBool(auto)).Inc()
	}
}

// ChatMessage counts a frame; direction is "in" or "out".
func (m *Metrics) ChatMessage(direction string) {
	if m != nil {
		m.chatMessages.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) ChatConnected() {
	if m != nil {
		m.chatConnections.Inc()
	}
}

func (m *Metrics) ChatDisconnected() {
	if m != nil {
		m.chatConnections.Dec()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes through to the wrapped writer for WebSocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
