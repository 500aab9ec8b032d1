// Package forwardertest provides recording sinks for tests.
package forwardertest

import (
	"context"
	"sync"

	"github.com/telhawk-systems/cspreport/internal/forwarder"
)

// LogCall is one recorded PutLogEvent call.
type LogCall struct {
	Group  string
	Stream string
	Event  forwarder.LogEvent
}

// LogSink records every call and returns Err.
type LogSink struct {
	Err error

	mu    sync.Mutex
	calls []LogCall
}

func (s *LogSink) PutLogEvent(_ context.Context, group, stream string, event forwarder.LogEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, LogCall{Group: group, Stream: stream, Event: event})
	return s.Err
}

// Calls returns a copy of the recorded calls.
func (s *LogSink) Calls() []LogCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogCall(nil), s.calls...)
}

// MetricCall is one recorded PutMetricData call.
type MetricCall struct {
	Namespace string
	Datum     forwarder.MetricDatum
}

// MetricSink records every call and returns Err.
type MetricSink struct {
	Err error

	mu    sync.Mutex
	calls []MetricCall
}

func (s *MetricSink) PutMetricData(_ context.Context, namespace string, datum forwarder.MetricDatum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, MetricCall{Namespace: namespace, Datum: datum})
	return s.Err
}

// Calls returns a copy of the recorded calls.
func (s *MetricSink) Calls() []MetricCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MetricCall(nil), s.calls...)
}
