package models

import "github.com/telhawk-systems/cspreport/pkg/csp"

// OutcomeKind tags the result of one pass through the pipeline.
type OutcomeKind int

const (
	OutcomeRejected OutcomeKind = iota
	OutcomeParseFailed
	OutcomeAccepted
	OutcomeFault
)

// String returns the label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRejected:
		return "rejected"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Outcome carries the data for its Kind; the other fields are zero.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	StatusCode int
	Report     *csp.Report
	// Detail is the fault value, usually an error but possibly a recovered
	// panic value of any type.
	Detail any
}

func Rejected(reason string, statusCode int) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, StatusCode: statusCode}
}

func ParseFailed(reason string) Outcome {
	return Outcome{Kind: OutcomeParseFailed, Reason: reason}
}

func Accepted(report *csp.Report) Outcome {
	return Outcome{Kind: OutcomeAccepted, Report: report}
}

func Fault(detail any) Outcome {
	return Outcome{Kind: OutcomeFault, Detail: detail}
}
