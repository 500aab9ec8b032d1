package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/forwarder"
	"github.com/telhawk-systems/cspreport/internal/forwarder/forwardertest"
	"github.com/telhawk-systems/cspreport/internal/models"
	"github.com/telhawk-systems/cspreport/internal/schema"
	"github.com/telhawk-systems/cspreport/internal/service"
	"github.com/telhawk-systems/cspreport/pkg/csp"
	"github.com/telhawk-systems/cspreport/pkg/csp/csptest"
)

const userAgent = "Mozilla/5.0 (Macintosh; U; Intel Mac OS X 10_10_2; en-US) AppleWebKit/536.2 " +
	"(KHTML, like Gecko) Chrome/47.0.2772.124 Safari/537"

func strPtr(s string) *string { return &s }

func baseRequest(body string) *models.InboundRequest {
	return &models.InboundRequest{
		Method: http.MethodPost,
		Headers: models.Headers{
			"content-type":    "application/csp-report",
			"x-forwarded-for": "2001:db8::1, 10.0.0.1",
			"user-agent":      userAgent,
		},
		Body:      strPtr(body),
		SourceIP:  "2001:0db8:85a3:0000:0000:8a2e:0370:7334",
		UserAgent: userAgent,
	}
}

type fixture struct {
	svc     *service.ReportService
	logs    *forwardertest.LogSink
	metrics *forwardertest.MetricSink
}

func newFixture(cfg forwarder.Config) *fixture {
	codec := schema.NewCodec()
	logs := &forwardertest.LogSink{}
	metrics := &forwardertest.MetricSink{}
	fwd := forwarder.New(codec, logs, metrics, forwarder.WithLogger(logging.Discard()))
	return &fixture{
		svc:     service.NewReportService(codec, fwd, cfg, logging.Discard()),
		logs:    logs,
		metrics: metrics,
	}
}

func decodeEnvelope(t *testing.T, body string) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	require.Len(t, env, 2, "envelope must have exactly two fields")
	return env
}

func TestHandle_Rejections(t *testing.T) {
	f := newFixture(forwarder.Config{})

	tests := []struct {
		name       string
		mutate     func(r *models.InboundRequest)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "GET",
			mutate:     func(r *models.InboundRequest) { r.Method = http.MethodGet },
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   `{"message":"Method Not Allowed","error":"Method must be POST"}`,
		},
		{
			name:       "PUT",
			mutate:     func(r *models.InboundRequest) { r.Method = http.MethodPut },
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   `{"message":"Method Not Allowed","error":"Method must be POST"}`,
		},
		{
			name:       "DELETE",
			mutate:     func(r *models.InboundRequest) { r.Method = http.MethodDelete },
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   `{"message":"Method Not Allowed","error":"Method must be POST"}`,
		},
		{
			name:       "PATCH",
			mutate:     func(r *models.InboundRequest) { r.Method = http.MethodPatch },
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   `{"message":"Method Not Allowed","error":"Method must be POST"}`,
		},
		{
			name:       "wrong content type",
			mutate:     func(r *models.InboundRequest) { r.Headers["content-type"] = "application/json" },
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"message":"Bad Request","error":"Content-Type must be application/csp-report"}`,
		},
		{
			name:       "missing content type",
			mutate:     func(r *models.InboundRequest) { delete(r.Headers, "content-type") },
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"message":"Bad Request","error":"Content-Type must be application/csp-report"}`,
		},
		{
			name:       "undefined body",
			mutate:     func(r *models.InboundRequest) { r.Body = nil },
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"message":"Bad Request","error":"event.body is undefined!"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(csptest.SampleJSON)
			tt.mutate(req)

			reply := f.svc.Handle(context.Background(), req)
			assert.Equal(t, tt.wantStatus, reply.StatusCode)
			assert.Equal(t, tt.wantBody, reply.Body)
		})
	}
}

func TestHandle_CanonicalAndUppercaseContentType(t *testing.T) {
	f := newFixture(forwarder.Config{})

	for _, key := range []string{"Content-Type", "CONTENT-TYPE"} {
		t.Run(key, func(t *testing.T) {
			req := baseRequest(csptest.SampleJSON)
			delete(req.Headers, "content-type")
			req.Headers[key] = "application/csp-report"

			reply := f.svc.Handle(context.Background(), req)
			assert.Equal(t, http.StatusOK, reply.StatusCode)
		})
	}
}

func TestHandle_ParseFailures(t *testing.T) {
	f := newFixture(forwarder.Config{})

	bodies := map[string]string{
		"empty body":               "",
		"malformed JSON":           `{"csp-report":`,
		"wrong type":               `{"csp-report":{"document-uri":1}}`,
		"extra property":           `{"csp-report":{},"report-to":"x"}`,
		"extra violation property": csptest.SampleJSON[:len(csptest.SampleJSON)-2] + `,"x":1}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			reply := f.svc.Handle(context.Background(), baseRequest(body))

			assert.Equal(t, http.StatusBadRequest, reply.StatusCode)
			env := decodeEnvelope(t, reply.Body)
			assert.Equal(t, "Bad Request", env["message"])
			assert.NotEmpty(t, env["error"])
		})
	}
}

func TestHandle_PlainAndBase64(t *testing.T) {
	f := newFixture(forwarder.Config{})

	plain := f.svc.Handle(context.Background(), baseRequest(csptest.SampleJSON))

	encoded := baseRequest(base64.StdEncoding.EncodeToString([]byte(csptest.SampleJSON)))
	encoded.IsBase64Encoded = true
	b64 := f.svc.Handle(context.Background(), encoded)

	assert.Equal(t, http.StatusOK, plain.StatusCode)
	assert.Equal(t, `{"message":"Okay","error":null}`, plain.Body)
	assert.Equal(t, plain, b64)
}

func TestHandle_RandomReports(t *testing.T) {
	faker := gofakeit.New(20241124)
	f := newFixture(forwarder.Config{})

	for i := 0; i < 50; i++ {
		raw, err := json.Marshal(csptest.Random(faker))
		require.NoError(t, err)

		plain := f.svc.Handle(context.Background(), baseRequest(string(raw)))
		require.Equal(t, http.StatusOK, plain.StatusCode, "payload: %s body: %s", raw, plain.Body)

		encoded := baseRequest(base64.StdEncoding.EncodeToString(raw))
		encoded.IsBase64Encoded = true
		assert.Equal(t, plain, f.svc.Handle(context.Background(), encoded))
	}
}

func TestHandle_ForwardsWithClientContext(t *testing.T) {
	f := newFixture(forwarder.Config{
		Region:          "us-east-1",
		LogGroup:        "test-group",
		LogStream:       "test-stream",
		MetricNamespace: "test-namespace",
		MetricName:      "test-metric",
	})

	reply := f.svc.Handle(context.Background(), baseRequest(csptest.SampleJSON))
	require.Equal(t, http.StatusOK, reply.StatusCode)

	require.Len(t, f.logs.Calls(), 1)
	require.Len(t, f.metrics.Calls(), 1)

	want := schema.NewCodec().SerializeLogRecord(csp.NewLogRecord(csptest.Sample(), csp.ClientContext{
		ClientIP:  "2001:db8::1",
		UserAgent: userAgent,
	}))
	assert.Equal(t, want, f.logs.Calls()[0].Event.Message)
}

func TestHandle_ClientIPFallsBackToSource(t *testing.T) {
	f := newFixture(forwarder.Config{Region: "us-east-1", LogGroup: "g", LogStream: "s"})

	req := baseRequest(csptest.SampleJSON)
	delete(req.Headers, "x-forwarded-for")

	require.Equal(t, http.StatusOK, f.svc.Handle(context.Background(), req).StatusCode)
	require.Len(t, f.logs.Calls(), 1)
	assert.Contains(t, f.logs.Calls()[0].Event.Message, `"clientIp":"2001:0db8:85a3:0000:0000:8a2e:0370:7334"`)
}

func TestHandle_SinkFaultBecomes500(t *testing.T) {
	f := newFixture(forwarder.Config{Region: "us-east-1", MetricNamespace: "n", MetricName: "m"})
	f.metrics.Err = errors.New("ThrottlingException: Rate exceeded")

	reply := f.svc.Handle(context.Background(), baseRequest(csptest.SampleJSON))

	assert.Equal(t, http.StatusInternalServerError, reply.StatusCode)
	assert.Equal(t, `{"message":"Internal Server Error","error":"ThrottlingException: Rate exceeded"}`, reply.Body)
}

type panickingForwarder struct{ value any }

func (p panickingForwarder) Forward(context.Context, *csp.Report, csp.ClientContext, forwarder.Config) error {
	panic(p.value)
}

func TestHandle_Faults(t *testing.T) {
	codec := schema.NewCodec()

	t.Run("nil request", func(t *testing.T) {
		svc := service.NewReportService(codec, panickingForwarder{}, forwarder.Config{}, logging.Discard())
		reply := svc.Handle(context.Background(), nil)

		assert.Equal(t, http.StatusInternalServerError, reply.StatusCode)
		env := decodeEnvelope(t, reply.Body)
		assert.Equal(t, "Internal Server Error", env["message"])
		assert.Equal(t, service.ErrNilRequest.Error(), env["error"])
	})

	t.Run("panic with error value", func(t *testing.T) {
		svc := service.NewReportService(codec, panickingForwarder{value: errors.New("sink exploded")}, forwarder.Config{}, logging.Discard())
		reply := svc.Handle(context.Background(), baseRequest(csptest.SampleJSON))

		assert.Equal(t, http.StatusInternalServerError, reply.StatusCode)
		assert.Equal(t, `{"message":"Internal Server Error","error":"sink exploded"}`, reply.Body)
	})

	t.Run("panic with opaque value", func(t *testing.T) {
		svc := service.NewReportService(codec, panickingForwarder{value: struct{}{}}, forwarder.Config{}, logging.Discard())
		reply := svc.Handle(context.Background(), baseRequest(csptest.SampleJSON))

		assert.Equal(t, http.StatusInternalServerError, reply.StatusCode)
		assert.Equal(t, `{"message":"Internal Server Error","error":"An unexpected error occurred. Please try again later."}`, reply.Body)
	})
}

func TestHandle_ConcurrentInvocations(t *testing.T) {
	f := newFixture(forwarder.Config{Region: "us-east-1", LogGroup: "g", LogStream: "s", MetricNamespace: "n", MetricName: "m"})

	const n = 20
	done := make(chan models.Reply, n)
	for i := 0; i < n; i++ {
		go func() { done <- f.svc.Handle(context.Background(), baseRequest(csptest.SampleJSON)) }()
	}

	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case reply := <-done:
			assert.Equal(t, http.StatusOK, reply.StatusCode)
		case <-timeout:
			t.Fatal("timed out waiting for invocations")
		}
	}
	assert.Len(t, f.logs.Calls(), n)
	assert.Len(t, f.metrics.Calls(), n)
}
