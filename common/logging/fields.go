package logging

import "log/slog"

// Common field names for consistent logging.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldIP          = "ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOutcome     = "outcome"
	FieldDirective   = "violated_directive"
	FieldDocumentURI = "document_uri"
	FieldSink        = "sink"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RequestID returns a slog attribute for the request ID.
func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Outcome returns a slog attribute for a pipeline outcome.
func Outcome(outcome string) slog.Attr {
	return slog.String(FieldOutcome, outcome)
}

// Directive returns a slog attribute for the violated CSP directive.
func Directive(directive string) slog.Attr {
	return slog.String(FieldDirective, directive)
}

// DocumentURI returns a slog attribute for the reporting document.
func DocumentURI(uri string) slog.Attr {
	return slog.String(FieldDocumentURI, uri)
}

// Sink returns a slog attribute naming a telemetry sink.
func Sink(name string) slog.Attr {
	return slog.String(FieldSink, name)
}
