package decoder

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/telhawk-systems/cspreport/internal/models"
	"github.com/telhawk-systems/cspreport/pkg/csp"
)

// Parser turns report text into a Report.
type Parser interface {
	ParseReport(text string) (*csp.Report, error)
}

// Decoder converts a validated request body into a parse outcome.
type Decoder struct {
	parser Parser
}

// New returns a Decoder backed by parser.
func New(parser Parser) *Decoder {
	return &Decoder{parser: parser}
}

// Decode returns Accepted with the parsed report, or ParseFailed with the
// parser diagnostic.
func (d *Decoder) Decode(body string, base64Encoded bool) models.Outcome {
	text := body
	if base64Encoded {
		text = DecodeBase64(body)
	}

	report, err := d.parser.ParseReport(text)
	if err != nil {
		return models.ParseFailed(diagnostic(err))
	}
	if report == nil {
		return models.ParseFailed(csp.GenericParseFailureText)
	}
	return models.Accepted(report)
}

func diagnostic(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	if inner := errors.Unwrap(err); inner != nil && inner.Error() != "" {
		return inner.Error()
	}
	return csp.GenericParseFailureText
}

// DecodeBase64 decodes s leniently: characters outside the standard and
// URL-safe alphabets are skipped, decoding stops at the first '=', and a
// dangling final character is dropped. It never fails; garbage in yields
// garbage out, which the parser then rejects.
func DecodeBase64(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=':
			i = len(s)
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			b.WriteByte(c)
		case c == '-':
			b.WriteByte('+')
		case c == '_':
			b.WriteByte('/')
		}
	}

	clean := b.String()
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
	}

	// The filtered alphabet always decodes; trailing bits are not checked.
	out, _ := base64.RawStdEncoding.DecodeString(clean)
	return string(out)
}
