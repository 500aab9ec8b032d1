package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/common/middleware"
	"github.com/telhawk-systems/cspreport/internal/handlers"
)

// NewRouter constructs a ServeMux with the report endpoint registered.
// The report routes accept every method so non-POST requests get the
// status envelope rather than a bare 405.
func NewRouter(h *handlers.ReportHandler, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	// Report endpoints
	mux.Handle("/", h)
	mux.Handle("/report-uri", h)

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(accessLog(mux, logger))
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func accessLog(next http.Handler, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.DebugContext(r.Context(), "Request completed",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(rec.code),
			logging.Duration(time.Since(start).Milliseconds()),
			logging.IP(r.RemoteAddr),
		)
	})
}
