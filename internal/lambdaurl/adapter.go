// Package lambdaurl serves the report endpoint as an AWS Lambda function
// behind a Function URL.
package lambdaurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/common/middleware"
	"github.com/telhawk-systems/cspreport/internal/models"
)

// ErrMalformedInvocation is the fault for events that are not Function URL
// requests.
var ErrMalformedInvocation = errors.New("malformed invocation")

// ReportService handles one report submission.
type ReportService interface {
	Handle(ctx context.Context, req *models.InboundRequest) models.Reply
}

// OutcomeReplier renders replies for invocations that never reach the
// service.
type OutcomeReplier interface {
	Build(outcome models.Outcome) models.Reply
}

// invocation mirrors events.LambdaFunctionURLRequest, with pointers where
// absence matters: a missing body differs from an empty one, and a missing
// requestContext.http means the event is not a Function URL request.
type invocation struct {
	Headers         map[string]string `json:"headers"`
	Body            *string           `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	RequestContext  *struct {
		RequestID string                                                 `json:"requestId"`
		HTTP      *events.LambdaFunctionURLRequestContextHTTPDescription `json:"http"`
	} `json:"requestContext"`
}

type Adapter struct {
	service ReportService
	replier OutcomeReplier
	logger  *logging.Logger
}

func NewAdapter(service ReportService, replier OutcomeReplier, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{service: service, replier: replier, logger: logger}
}

// Start hands the adapter to the Lambda runtime. It does not return, so
// onShutdown callbacks run when the runtime delivers SIGTERM before the
// execution environment is shut down.
func (a *Adapter) Start(onShutdown ...func()) {
	lambda.StartWithOptions(a.Invoke, startOptions(onShutdown)...)
}

func startOptions(onShutdown []func()) []lambda.Option {
	if len(onShutdown) == 0 {
		return nil
	}
	return []lambda.Option{lambda.WithEnableSIGTERM(onShutdown...)}
}

// Invoke handles one raw invocation. Every failure is reported in the
// response, so the returned error is always nil.
func (a *Adapter) Invoke(ctx context.Context, payload json.RawMessage) (events.LambdaFunctionURLResponse, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		ctx = middleware.WithRequestID(ctx, lc.AwsRequestID)
	}

	req, err := Decode(payload)
	if err != nil {
		a.logger.ErrorContext(ctx, "An error had occurred while handling report", logging.Error(err))
		return response(a.replier.Build(models.Fault(err))), nil
	}

	return response(a.service.Handle(ctx, req)), nil
}

// Decode converts a raw Function URL event into an InboundRequest.
func Decode(payload []byte) (*models.InboundRequest, error) {
	var inv invocation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInvocation, err)
	}
	if inv.RequestContext == nil || inv.RequestContext.HTTP == nil {
		return nil, fmt.Errorf("%w: missing requestContext.http", ErrMalformedInvocation)
	}

	desc := inv.RequestContext.HTTP
	headers := inv.Headers
	if headers == nil {
		headers = models.Headers{}
	}
	return &models.InboundRequest{
		Method:          desc.Method,
		Headers:         headers,
		Body:            inv.Body,
		IsBase64Encoded: inv.IsBase64Encoded,
		SourceIP:        desc.SourceIP,
		UserAgent:       desc.UserAgent,
	}, nil
}

func response(reply models.Reply) events.LambdaFunctionURLResponse {
	return events.LambdaFunctionURLResponse{
		StatusCode: reply.StatusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       reply.Body,
	}
}
