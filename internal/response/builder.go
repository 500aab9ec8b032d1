package response

import (
	"errors"
	"net/http"

	"github.com/telhawk-systems/cspreport/internal/models"
	"github.com/telhawk-systems/cspreport/pkg/csp"
)

// Serializer renders the status envelope.
type Serializer interface {
	SerializeEnvelope(env csp.Envelope) string
}

// Builder maps pipeline outcomes to replies.
type Builder struct {
	serializer Serializer
}

// NewBuilder returns a Builder using serializer for every reply body.
func NewBuilder(serializer Serializer) *Builder {
	return &Builder{serializer: serializer}
}

// Build returns the status code and serialized envelope for outcome.
// An Accepted outcome means forwarding has already completed.
func (b *Builder) Build(outcome models.Outcome) models.Reply {
	switch outcome.Kind {
	case models.OutcomeRejected:
		code := outcome.StatusCode
		message := http.StatusText(code)
		if message == "" || code < 400 || code >= 500 {
			code, message = http.StatusBadRequest, csp.MessageBadRequest
		}
		return b.reply(code, csp.Failure(message, outcome.Reason))

	case models.OutcomeParseFailed:
		reason := outcome.Reason
		if reason == "" {
			reason = csp.GenericParseFailureText
		}
		return b.reply(http.StatusBadRequest, csp.Failure(csp.MessageBadRequest, reason))

	case models.OutcomeAccepted:
		return b.reply(http.StatusOK, csp.OK())

	default:
		return b.reply(http.StatusInternalServerError, csp.Failure(csp.MessageInternalServerError, FaultMessage(outcome.Detail)))
	}
}

func (b *Builder) reply(code int, env csp.Envelope) models.Reply {
	return models.Reply{StatusCode: code, Body: b.serializer.SerializeEnvelope(env)}
}

// FaultMessage extracts a caller-safe message from a fault detail. Only
// error values contribute their message; anything else gets the generic text.
func FaultMessage(detail any) string {
	var err error
	if e, ok := detail.(error); ok {
		err = e
	}
	if err == nil {
		return csp.GenericFaultText
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	if inner := errors.Unwrap(err); inner != nil && inner.Error() != "" {
		return inner.Error()
	}
	return csp.GenericFaultText
}
