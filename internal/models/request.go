package models

import (
	"net/textproto"
	"sort"
	"strings"
)

// Headers is a header map as delivered by the transport. Key casing is not
// normalized, so lookups go through Lookup and Values.
type Headers map[string]string

// spellings returns the lowercase, canonical, and uppercase forms of name.
func spellings(name string) []string {
	return []string{
		strings.ToLower(name),
		textproto.CanonicalMIMEHeaderKey(name),
		strings.ToUpper(name),
	}
}

// Values returns the value of every key matching name case-insensitively.
// The lowercase, canonical, and uppercase spellings come first, in that
// order, followed by any other casing in sorted key order.
func (h Headers) Values(name string) []string {
	if len(h) == 0 {
		return nil
	}

	var values []string
	probed := make(map[string]bool, 3)
	for _, key := range spellings(name) {
		if probed[key] {
			continue
		}
		probed[key] = true
		if v, ok := h[key]; ok {
			values = append(values, v)
		}
	}

	var rest []string
	for key := range h {
		if !probed[key] && strings.EqualFold(key, name) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		values = append(values, h[key])
	}
	return values
}

// Lookup returns the first value found for name.
func (h Headers) Lookup(name string) (string, bool) {
	values := h.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// InboundRequest is the transport-neutral view of one report submission.
type InboundRequest struct {
	Method  string
	Headers Headers
	// Body is nil when the transport delivered no body at all, which is
	// distinct from an empty body.
	Body            *string
	IsBase64Encoded bool
	SourceIP        string
	UserAgent       string
}

// ResolveClientIP returns the first X-Forwarded-For entry, or the transport
// source address when the header is absent or its first entry is blank.
func ResolveClientIP(req *InboundRequest) string {
	if xff, ok := req.Headers.Lookup("x-forwarded-for"); ok {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return req.SourceIP
}

// Reply is the status code and serialized envelope returned to the transport.
type Reply struct {
	StatusCode int
	Body       string
}
