package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GenerationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_generation_outcomes_total",
			Help: "Generation attempts by outcome as seen by the session controller",
		},
		[]string{"outcome"},
	)

	Cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_cancellations_total",
			Help: "Cancel acknowledgements by outcome",
		},
		[]string{"outcome"},
	)

	AnswersRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_answers_recorded_total",
			Help: "Answers appended by the progression engine",
		},
		[]string{"source", "correct"},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"method", "endpoint"},
	)
)

// Init registers the collectors with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(GenerationOutcomes, Cancellations, AnswersRecorded, RequestCounter, RequestDuration)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument counts requests and observes their duration under the given endpoint label.
func Instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
