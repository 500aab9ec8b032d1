// Package schema compiles the closed report-uri schema into a strict parser and
// provides the serializers for the response envelope and the log record.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/valyala/fastjson"

	"github.com/telhawk-systems/cspreport/pkg/csp"
)

const rootKey = "csp-report"

// ParseError describes why a payload does not match the report-uri schema.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

type kind int

const (
	kindString kind = iota
	kindNullableString
	kindDisposition
	kindUint16
	kindUint32
)

// field is one compiled property of the violation object.
type field struct {
	name   string
	kind   kind
	assign func(v *csp.Violation, s *string, n uint32)
}

// Codec parses report-uri payloads and serializes responses and log records.
// It is built once and is safe for concurrent use.
type Codec struct {
	parsers fastjson.ParserPool
	fields  []field
	index   map[string]int
}

// NewCodec compiles the report-uri schema.
func NewCodec() *Codec {
	fields := []field{
		{"document-uri", kindString, func(v *csp.Violation, s *string, _ uint32) { v.DocumentURI = *s }},
		{"referrer", kindString, func(v *csp.Violation, s *string, _ uint32) { v.Referrer = *s }},
		{"blocked-uri", kindString, func(v *csp.Violation, s *string, _ uint32) { v.BlockedURI = *s }},
		{"effective-directive", kindString, func(v *csp.Violation, s *string, _ uint32) { v.EffectiveDirective = *s }},
		{"violated-directive", kindString, func(v *csp.Violation, s *string, _ uint32) { v.ViolatedDirective = *s }},
		{"original-policy", kindString, func(v *csp.Violation, s *string, _ uint32) { v.OriginalPolicy = *s }},
		{"disposition", kindDisposition, func(v *csp.Violation, s *string, _ uint32) { v.Disposition = csp.Disposition(*s) }},
		{"status-code", kindUint16, func(v *csp.Violation, _ *string, n uint32) { v.StatusCode = uint16(n) }},
		{"script-sample", kindString, func(v *csp.Violation, s *string, _ uint32) { v.ScriptSample = *s }},
		{"source-file", kindNullableString, func(v *csp.Violation, s *string, _ uint32) { v.SourceFile = s }},
		{"line-number", kindUint32, func(v *csp.Violation, _ *string, n uint32) { v.LineNumber = n }},
		{"column-number", kindUint32, func(v *csp.Violation, _ *string, n uint32) { v.ColumnNumber = n }},
	}

	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.name] = i
	}

	return &Codec{fields: fields, index: index}
}

// ParseReport decodes text into a Report. Any deviation from the schema,
// including unknown or repeated properties, yields a *ParseError.
func (c *Codec) ParseReport(text string) (*csp.Report, error) {
	// Parse tolerates bad escapes, raw control characters and non-canonical
	// numbers, so the grammar is checked strictly first.
	if !utf8.ValidString(text) {
		return nil, &ParseError{Reason: "invalid JSON: input is not valid UTF-8"}
	}
	if err := fastjson.Validate(text); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	p := c.parsers.Get()
	defer c.parsers.Put(p)

	root, err := p.Parse(text)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	obj, err := root.Object()
	if err != nil {
		return nil, &ParseError{Path: "/", Reason: "value must be an object"}
	}

	var body *fastjson.Value
	var perr *ParseError
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if perr != nil {
			return
		}
		switch {
		case string(key) != rootKey:
			perr = &ParseError{Path: "/" + string(key), Reason: "additional property not allowed"}
		case body != nil:
			perr = &ParseError{Path: "/" + rootKey, Reason: "duplicate property"}
		default:
			body = v
		}
	})
	if perr != nil {
		return nil, perr
	}
	if body == nil {
		return nil, &ParseError{Path: "/", Reason: fmt.Sprintf("missing required property %q", rootKey)}
	}

	violation, perr := c.parseViolation(body)
	if perr != nil {
		return nil, perr
	}
	return &csp.Report{Body: violation}, nil
}

func (c *Codec) parseViolation(value *fastjson.Value) (csp.Violation, *ParseError) {
	var v csp.Violation

	obj, err := value.Object()
	if err != nil {
		return v, &ParseError{Path: "/" + rootKey, Reason: "value must be an object"}
	}

	seen := make([]bool, len(c.fields))
	var perr *ParseError
	obj.Visit(func(key []byte, fv *fastjson.Value) {
		if perr != nil {
			return
		}
		name := string(key)
		path := "/" + rootKey + "/" + name

		i, ok := c.index[name]
		if !ok {
			perr = &ParseError{Path: path, Reason: "additional property not allowed"}
			return
		}
		if seen[i] {
			perr = &ParseError{Path: path, Reason: "duplicate property"}
			return
		}
		seen[i] = true

		f := c.fields[i]
		s, n, reason := decodeField(f.kind, fv)
		if reason != "" {
			perr = &ParseError{Path: path, Reason: reason}
			return
		}
		f.assign(&v, s, n)
	})
	if perr != nil {
		return v, perr
	}

	for i, f := range c.fields {
		if !seen[i] {
			return v, &ParseError{Path: "/" + rootKey, Reason: fmt.Sprintf("missing required property %q", f.name)}
		}
	}
	return v, nil
}

// decodeField checks value against k and returns the decoded string or
// number, or a non-empty reason when it does not match.
func decodeField(k kind, value *fastjson.Value) (*string, uint32, string) {
	switch k {
	case kindString:
		s, ok := stringOf(value)
		if !ok {
			return nil, 0, "value must be a string"
		}
		return &s, 0, ""

	case kindNullableString:
		if value.Type() == fastjson.TypeNull {
			return nil, 0, ""
		}
		s, ok := stringOf(value)
		if !ok {
			return nil, 0, "value must be a string or null"
		}
		return &s, 0, ""

	case kindDisposition:
		s, ok := stringOf(value)
		if !ok || !csp.Disposition(s).Valid() {
			return nil, 0, fmt.Sprintf("value must be one of %q, %q", csp.DispositionEnforce, csp.DispositionReport)
		}
		return &s, 0, ""

	case kindUint16:
		n, ok := unsignedOf(value, math.MaxUint16)
		if !ok {
			return nil, 0, "value must be an integer between 0 and 65535"
		}
		return nil, n, ""

	case kindUint32:
		n, ok := unsignedOf(value, math.MaxUint32)
		if !ok {
			return nil, 0, "value must be an integer between 0 and 4294967295"
		}
		return nil, n, ""
	}
	return nil, 0, "unsupported schema type"
}

func stringOf(value *fastjson.Value) (string, bool) {
	if value.Type() != fastjson.TypeString {
		return "", false
	}
	b, err := value.StringBytes()
	if err != nil {
		return "", false
	}
	return string(b), true
}

// unsignedOf accepts any JSON number with a zero fractional part in [0, limit].
func unsignedOf(value *fastjson.Value, limit uint32) (uint32, bool) {
	if value.Type() != fastjson.TypeNumber {
		return 0, false
	}
	f, err := value.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f != math.Trunc(f) || f < 0 || f > float64(limit) {
		return 0, false
	}
	return uint32(f), true
}

// SerializeEnvelope renders the envelope as {"message":...,"error":...}.
func (c *Codec) SerializeEnvelope(env csp.Envelope) string {
	return encode(env)
}

// SerializeLogRecord renders the enriched report written to the log sink.
// Empty enrichment fields are omitted.
func (c *Codec) SerializeLogRecord(rec csp.LogRecord) string {
	return encode(rec)
}

// encode only ever sees the fixed struct shapes above, which cannot fail to
// marshal.
func encode(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		panic(fmt.Sprintf("schema: encode %T: %v", v, err))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
