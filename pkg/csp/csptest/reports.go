// Package csptest provides report fixtures for tests.
package csptest

import (
	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/cspreport/pkg/csp"
)

// SampleJSON is a valid report-uri payload matching Sample.
const SampleJSON = `{"csp-report":{"document-uri":"https://www.example.com/","referrer":"",` +
	`"blocked-uri":"https://example.com/js/script.js","effective-directive":"connect-src",` +
	`"violated-directive":"connect-src","original-policy":"default-src 'self' https://www.example.com",` +
	`"disposition":"report","status-code":200,"script-sample":"",` +
	`"source-file":"https://www.example.com/run.js","line-number":3,"column-number":26}}`

// Sample returns the report encoded by SampleJSON.
func Sample() *csp.Report {
	source := "https://www.example.com/run.js"
	return &csp.Report{
		Body: csp.Violation{
			DocumentURI:        "https://www.example.com/",
			Referrer:           "",
			BlockedURI:         "https://example.com/js/script.js",
			EffectiveDirective: "connect-src",
			ViolatedDirective:  "connect-src",
			OriginalPolicy:     "default-src 'self' https://www.example.com",
			Disposition:        csp.DispositionReport,
			StatusCode:         200,
			ScriptSample:       "",
			SourceFile:         &source,
			LineNumber:         3,
			ColumnNumber:       26,
		},
	}
}

var directives = []string{
	"child-src", "connect-src", "default-src", "font-src", "frame-src", "img-src",
	"manifest-src", "media-src", "object-src", "script-src", "script-src-elem",
	"script-src-attr", "style-src", "style-src-elem", "style-src-attr", "worker-src",
	"base-uri", "form-action", "frame-ancestors",
}

// Random returns a schema-valid report with fields drawn from faker.
func Random(faker *gofakeit.Faker) *csp.Report {
	directive := faker.RandomString(directives)

	var source *string
	if faker.Bool() {
		s := faker.URL()
		source = &s
	}

	disposition := csp.DispositionEnforce
	if faker.Bool() {
		disposition = csp.DispositionReport
	}

	return &csp.Report{
		Body: csp.Violation{
			DocumentURI:        faker.URL(),
			Referrer:           faker.RandomString([]string{"", faker.URL()}),
			BlockedURI:         faker.RandomString([]string{"", "inline", "eval", faker.URL()}),
			EffectiveDirective: directive,
			ViolatedDirective:  directive,
			OriginalPolicy:     directive + " 'self' " + faker.DomainName(),
			Disposition:        disposition,
			StatusCode:         faker.Uint16(),
			ScriptSample:       faker.Sentence(4),
			SourceFile:         source,
			LineNumber:         faker.Uint32(),
			ColumnNumber:       faker.Uint32(),
		},
	}
}
