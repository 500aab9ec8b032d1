package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/models"
)

// ReportService handles one report submission.
type ReportService interface {
	Handle(ctx context.Context, req *models.InboundRequest) models.Reply
}

// OutcomeReplier renders replies for requests the handler refuses before
// they reach the service.
type OutcomeReplier interface {
	Build(outcome models.Outcome) models.Reply
}

// ReadyCheck reports whether a downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

type ReportHandler struct {
	service      ReportService
	replier      OutcomeReplier
	maxBodyBytes int64
	readyChecks  map[string]ReadyCheck
	logger       *logging.Logger
}

func NewReportHandler(service ReportService, replier OutcomeReplier, maxBodyBytes int64, logger *logging.Logger) *ReportHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportHandler{
		service:      service,
		replier:      replier,
		maxBodyBytes: maxBodyBytes,
		readyChecks:  make(map[string]ReadyCheck),
		logger:       logger,
	}
}

// AddReadyCheck registers a named check run by Ready.
func (h *ReportHandler) AddReadyCheck(name string, check ReadyCheck) {
	h.readyChecks[name] = check
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := h.inbound(w, r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.write(w, h.replier.Build(models.Rejected(
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
				http.StatusRequestEntityTooLarge,
			)))
			return
		}
		h.logger.WarnContext(r.Context(), "Failed to read request body", logging.Error(err))
		h.write(w, h.replier.Build(models.Rejected("failed to read request body", http.StatusBadRequest)))
		return
	}

	h.write(w, h.service.Handle(r.Context(), req))
}

// inbound converts r to the transport-independent request. A request
// without a body keeps Body nil; an explicit empty body is kept as "".
func (h *ReportHandler) inbound(w http.ResponseWriter, r *http.Request) (*models.InboundRequest, error) {
	headers := make(models.Headers, len(r.Header))
	for name, values := range r.Header {
		headers[name] = strings.Join(values, ", ")
	}

	req := &models.InboundRequest{
		Method:    r.Method,
		Headers:   headers,
		SourceIP:  remoteIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
	}

	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return nil, err
	}
	text := string(body)
	req.Body = &text
	return req, nil
}

func (h *ReportHandler) write(w http.ResponseWriter, reply models.Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.StatusCode)
	_, _ = io.WriteString(w, reply.Body)
}

func (h *ReportHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func (h *ReportHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.readyChecks))
	status, code := "ready", http.StatusOK
	for name, check := range h.readyChecks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
