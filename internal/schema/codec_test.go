package schema_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cspreport/internal/schema"
	"github.com/telhawk-systems/cspreport/pkg/csp"
)

const validReport = `{
  "csp-report": {
    "document-uri": "https://www.example.com/",
    "referrer": "",
    "blocked-uri": "https://example.com/js/script.js",
    "effective-directive": "connect-src",
    "violated-directive": "connect-src",
    "original-policy": "default-src 'self' https://www.example.com",
    "disposition": "report",
    "status-code": 200,
    "script-sample": "",
    "source-file": "https://www.example.com/run.js",
    "line-number": 3,
    "column-number": 26
  }
}`

// mutate decodes validReport, applies fn to the inner object, and re-encodes it.
func mutate(t *testing.T, fn func(body map[string]any)) string {
	t.Helper()
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(validReport), &doc))
	fn(doc["csp-report"])
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(out)
}

func TestParseReport_Valid(t *testing.T) {
	codec := schema.NewCodec()

	report, err := codec.ParseReport(validReport)
	require.NoError(t, err)

	v := report.Body
	assert.Equal(t, "https://www.example.com/", v.DocumentURI)
	assert.Equal(t, "", v.Referrer)
	assert.Equal(t, "https://example.com/js/script.js", v.BlockedURI)
	assert.Equal(t, "connect-src", v.EffectiveDirective)
	assert.Equal(t, "connect-src", v.ViolatedDirective)
	assert.Equal(t, "default-src 'self' https://www.example.com", v.OriginalPolicy)
	assert.Equal(t, csp.DispositionReport, v.Disposition)
	assert.Equal(t, uint16(200), v.StatusCode)
	require.NotNil(t, v.SourceFile)
	assert.Equal(t, "https://www.example.com/run.js", *v.SourceFile)
	assert.Equal(t, uint32(3), v.LineNumber)
	assert.Equal(t, uint32(26), v.ColumnNumber)
}

func TestParseReport_NullSourceFile(t *testing.T) {
	codec := schema.NewCodec()

	report, err := codec.ParseReport(mutate(t, func(b map[string]any) { b["source-file"] = nil }))
	require.NoError(t, err)
	assert.Nil(t, report.Body.SourceFile)
	assert.Equal(t, "none", report.Body.SourceFileOr("none"))
}

func TestParseReport_Boundaries(t *testing.T) {
	codec := schema.NewCodec()

	t.Run("zero status code", func(t *testing.T) {
		_, err := codec.ParseReport(mutate(t, func(b map[string]any) { b["status-code"] = 0 }))
		assert.NoError(t, err)
	})

	t.Run("max uint16 status code", func(t *testing.T) {
		report, err := codec.ParseReport(mutate(t, func(b map[string]any) { b["status-code"] = 65535 }))
		require.NoError(t, err)
		assert.Equal(t, uint16(65535), report.Body.StatusCode)
	})

	t.Run("max uint32 line number", func(t *testing.T) {
		report, err := codec.ParseReport(mutate(t, func(b map[string]any) { b["line-number"] = uint64(4294967295) }))
		require.NoError(t, err)
		assert.Equal(t, uint32(4294967295), report.Body.LineNumber)
	})

	t.Run("enforce disposition", func(t *testing.T) {
		report, err := codec.ParseReport(mutate(t, func(b map[string]any) { b["disposition"] = "enforce" }))
		require.NoError(t, err)
		assert.Equal(t, csp.DispositionEnforce, report.Body.Disposition)
	})
}

func TestParseReport_Invalid(t *testing.T) {
	codec := schema.NewCodec()

	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{name: "empty string", input: "", contains: "invalid JSON"},
		{name: "malformed JSON", input: `{"csp-report":`, contains: "invalid JSON"},
		{name: "trailing garbage", input: validReport + "x", contains: "invalid JSON"},
		{name: "top-level array", input: `[]`, contains: "must be an object"},
		{name: "missing root", input: `{}`, contains: `missing required property "csp-report"`},
		{name: "extra root property", input: `{"csp-report":{},"extra":1}`, contains: "additional property"},
		{name: "root not object", input: `{"csp-report":"x"}`, contains: "must be an object"},
		{
			name:     "extra violation property",
			input:    mutate(t, func(b map[string]any) { b["sample"] = "x" }),
			contains: "/csp-report/sample: additional property not allowed",
		},
		{
			name:     "missing violation property",
			input:    mutate(t, func(b map[string]any) { delete(b, "referrer") }),
			contains: `missing required property "referrer"`,
		},
		{
			name:     "bad disposition",
			input:    mutate(t, func(b map[string]any) { b["disposition"] = "block" }),
			contains: "/csp-report/disposition",
		},
		{
			name:     "string status code",
			input:    mutate(t, func(b map[string]any) { b["status-code"] = "200" }),
			contains: "/csp-report/status-code",
		},
		{
			name:     "negative line number",
			input:    mutate(t, func(b map[string]any) { b["line-number"] = -1 }),
			contains: "/csp-report/line-number",
		},
		{
			name:     "fractional column number",
			input:    mutate(t, func(b map[string]any) { b["column-number"] = 1.5 }),
			contains: "/csp-report/column-number",
		},
		{
			name:     "status code overflow",
			input:    mutate(t, func(b map[string]any) { b["status-code"] = 65536 }),
			contains: "/csp-report/status-code",
		},
		{
			name:     "null document uri",
			input:    mutate(t, func(b map[string]any) { b["document-uri"] = nil }),
			contains: "/csp-report/document-uri: value must be a string",
		},
		{
			name:     "numeric source file",
			input:    mutate(t, func(b map[string]any) { b["source-file"] = 7 }),
			contains: "string or null",
		},
		{
			name:     "unknown escape sequence",
			input:    strings.Replace(validReport, `"referrer": ""`, `"referrer": "a\xb"`, 1),
			contains: "invalid JSON",
		},
		{
			name:     "raw control character in string",
			input:    strings.Replace(validReport, `"referrer": ""`, "\"referrer\": \"a\x01b\"", 1),
			contains: "invalid JSON",
		},
		{
			name:     "raw newline in string",
			input:    strings.Replace(validReport, `"referrer": ""`, "\"referrer\": \"a\nb\"", 1),
			contains: "invalid JSON",
		},
		{
			name:     "leading zero number",
			input:    strings.Replace(validReport, `"status-code": 200`, `"status-code": 0200`, 1),
			contains: "invalid JSON",
		},
		{
			name:     "trailing dot number",
			input:    strings.Replace(validReport, `"status-code": 200`, `"status-code": 200.`, 1),
			contains: "invalid JSON",
		},
		{
			name:     "invalid UTF-8 in string",
			input:    strings.Replace(validReport, `"referrer": ""`, "\"referrer\": \"a\xffb\"", 1),
			contains: "not valid UTF-8",
		},
		{
			name:     "duplicate property",
			input:    strings.Replace(validReport, `"referrer": "",`, `"referrer": "", "referrer": "",`, 1),
			contains: "duplicate property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := codec.ParseReport(tt.input)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.Contains(t, err.Error(), tt.contains)

			var perr *schema.ParseError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestSerializeEnvelope(t *testing.T) {
	codec := schema.NewCodec()

	assert.Equal(t, `{"message":"Okay","error":null}`, codec.SerializeEnvelope(csp.OK()))
	assert.Equal(t,
		`{"message":"Bad Request","error":"Content-Type must be application/csp-report"}`,
		codec.SerializeEnvelope(csp.Failure(csp.MessageBadRequest, "Content-Type must be application/csp-report")),
	)
	assert.Equal(t,
		`{"message":"Bad Request","error":"<script> & \"quotes\""}`,
		codec.SerializeEnvelope(csp.Failure(csp.MessageBadRequest, `<script> & "quotes"`)),
	)
}

func TestSerializeLogRecord(t *testing.T) {
	codec := schema.NewCodec()
	report, err := codec.ParseReport(validReport)
	require.NoError(t, err)

	t.Run("without enrichment", func(t *testing.T) {
		out := codec.SerializeLogRecord(csp.NewLogRecord(report, csp.ClientContext{}))
		assert.Equal(t, `{"csp-report":{"document-uri":"https://www.example.com/","referrer":"",`+
			`"blocked-uri":"https://example.com/js/script.js","effective-directive":"connect-src",`+
			`"violated-directive":"connect-src","original-policy":"default-src 'self' https://www.example.com",`+
			`"disposition":"report","status-code":200,"script-sample":"",`+
			`"source-file":"https://www.example.com/run.js","line-number":3,"column-number":26}}`, out)
	})

	t.Run("with enrichment", func(t *testing.T) {
		out := codec.SerializeLogRecord(csp.NewLogRecord(report, csp.ClientContext{
			ClientIP:  "2001:db8::1",
			UserAgent: "Mozilla/5.0",
		}))
		assert.True(t, strings.HasSuffix(out, `"column-number":26,"clientIp":"2001:db8::1","userAgent":"Mozilla/5.0"}}`), out)
	})

	t.Run("null source file", func(t *testing.T) {
		r := *report
		r.Body.SourceFile = nil
		out := codec.SerializeLogRecord(csp.NewLogRecord(&r, csp.ClientContext{}))
		assert.Contains(t, out, `"source-file":null`)
	})

	t.Run("log record parses back after dropping enrichment", func(t *testing.T) {
		out := codec.SerializeLogRecord(csp.NewLogRecord(report, csp.ClientContext{}))
		back, err := codec.ParseReport(out)
		require.NoError(t, err)
		assert.Equal(t, report, back)
	})
}
