// Package csp defines the wire types for Content-Security-Policy report-uri
// violation reports and the status envelope returned to reporting browsers.
package csp

// ContentType is the only request content type accepted for report-uri payloads.
const ContentType = "application/csp-report"

// Disposition records whether the violated policy was enforced or only reported.
type Disposition string

const (
	DispositionEnforce Disposition = "enforce"
	DispositionReport  Disposition = "report"
)

// Valid reports whether d is one of the dispositions defined by CSP Level 3.
func (d Disposition) Valid() bool {
	return d == DispositionEnforce || d == DispositionReport
}

// Report is a CSP Level 3 report-uri payload as sent by the browser.
// See https://www.w3.org/TR/CSP3/#deprecated-serialize-violation
type Report struct {
	Body Violation `json:"csp-report"`
}

// Violation holds the attributes of a single policy violation.
type Violation struct {
	DocumentURI        string      `json:"document-uri"`
	Referrer           string      `json:"referrer"`
	BlockedURI         string      `json:"blocked-uri"`
	EffectiveDirective string      `json:"effective-directive"`
	ViolatedDirective  string      `json:"violated-directive"`
	OriginalPolicy     string      `json:"original-policy"`
	Disposition        Disposition `json:"disposition"`
	StatusCode         uint16      `json:"status-code"`
	ScriptSample       string      `json:"script-sample"`
	SourceFile         *string     `json:"source-file"`
	LineNumber         uint32      `json:"line-number"`
	ColumnNumber       uint32      `json:"column-number"`
}

// SourceFileOr returns the source file, or fallback when the browser sent null.
func (v Violation) SourceFileOr(fallback string) string {
	if v.SourceFile == nil {
		return fallback
	}
	return *v.SourceFile
}

// ClientContext carries request metadata used to enrich log records.
type ClientContext struct {
	ClientIP  string
	UserAgent string
}

// LogRecord is the report as written to the log sink, enriched with client details.
type LogRecord struct {
	Body LogViolation `json:"csp-report"`
}

// LogViolation is a Violation plus optional client enrichment.
type LogViolation struct {
	Violation
	ClientIP  string `json:"clientIp,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// NewLogRecord merges the client context into the report.
func NewLogRecord(r *Report, client ClientContext) LogRecord {
	return LogRecord{
		Body: LogViolation{
			Violation: r.Body,
			ClientIP:  client.ClientIP,
			UserAgent: client.UserAgent,
		},
	}
}
