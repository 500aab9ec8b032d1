package service

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/decoder"
	"github.com/telhawk-systems/cspreport/internal/forwarder"
	"github.com/telhawk-systems/cspreport/internal/metrics"
	"github.com/telhawk-systems/cspreport/internal/models"
	"github.com/telhawk-systems/cspreport/internal/response"
	"github.com/telhawk-systems/cspreport/internal/schema"
	"github.com/telhawk-systems/cspreport/internal/validator"
	"github.com/telhawk-systems/cspreport/pkg/csp"
)

// ErrNilRequest is the fault raised when a transport hands over no request.
var ErrNilRequest = errors.New("invalid invocation: request is nil")

// Forwarder relays an accepted report to the telemetry sinks.
type Forwarder interface {
	Forward(ctx context.Context, report *csp.Report, client csp.ClientContext, cfg forwarder.Config) error
}

// ReportService runs one report submission through validation, decoding,
// forwarding, and reply construction. It holds no per-request state.
type ReportService struct {
	chain     *validator.Chain
	decoder   *decoder.Decoder
	forwarder Forwarder
	builder   *response.Builder
	telemetry forwarder.Config
	logger    *logging.Logger
}

// NewReportService wires the pipeline around a compiled codec. telemetry is
// captured by value and never changes afterwards.
func NewReportService(codec *schema.Codec, fwd Forwarder, telemetry forwarder.Config, logger *logging.Logger) *ReportService {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportService{
		chain:     validator.Default(),
		decoder:   decoder.New(codec),
		forwarder: fwd,
		builder:   response.NewBuilder(codec),
		telemetry: telemetry,
		logger:    logger,
	}
}

// Handle processes req and always returns a well-formed reply.
func (s *ReportService) Handle(ctx context.Context, req *models.InboundRequest) models.Reply {
	start := time.Now()

	outcome := s.process(ctx, req)
	reply := s.builder.Build(outcome)

	metrics.ReportsTotal.WithLabelValues(outcome.Kind.String()).Inc()
	metrics.HandleDuration.Observe(time.Since(start).Seconds())

	switch outcome.Kind {
	case models.OutcomeFault:
		s.logger.ErrorContext(ctx, "An error had occurred while handling report",
			logging.Outcome(outcome.Kind.String()),
			logging.Status(reply.StatusCode),
			"detail", outcome.Detail,
		)
	case models.OutcomeAccepted:
		s.logger.InfoContext(ctx, "Report accepted",
			logging.Directive(outcome.Report.Body.ViolatedDirective),
			logging.DocumentURI(outcome.Report.Body.DocumentURI),
		)
	default:
		s.logger.DebugContext(ctx, "Report refused",
			logging.Outcome(outcome.Kind.String()),
			logging.Status(reply.StatusCode),
			"reason", outcome.Reason,
		)
	}

	return reply
}

func (s *ReportService) process(ctx context.Context, req *models.InboundRequest) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.Fault(r)
		}
	}()

	if req == nil {
		return models.Fault(ErrNilRequest)
	}

	if rejected, ok := s.chain.Outcome(req); !ok {
		return rejected
	}

	metrics.ReportBytesTotal.Add(float64(len(*req.Body)))

	decoded := s.decoder.Decode(*req.Body, req.IsBase64Encoded)
	if decoded.Kind != models.OutcomeAccepted {
		return decoded
	}

	client := csp.ClientContext{
		ClientIP:  models.ResolveClientIP(req),
		UserAgent: req.UserAgent,
	}
	if err := s.forwarder.Forward(ctx, decoded.Report, client, s.telemetry); err != nil {
		return models.Fault(err)
	}
	return decoded
}
