// Package prometheus records violation data points as Prometheus counters
// instead of pushing them to a remote metrics service.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/telhawk-systems/cspreport/internal/forwarder"
)

// DefaultMaxSeries bounds the label combinations kept per counter.
const DefaultMaxSeries = 1000

// OverflowLabel replaces every label value once a counter is full.
const OverflowLabel = "other"

// MetricSink keeps one CounterVec per namespace/name pair, labelled by the
// datum's dimensions. URI dimensions are reduced to their origin and each
// counter holds at most maxSeries label combinations; later combinations
// are counted under OverflowLabel.
type MetricSink struct {
	registerer prometheus.Registerer
	maxSeries  int

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	series   map[string]map[string]struct{}
}

// NewMetricSink registers counters with reg, or the default registerer
// when reg is nil.
func NewMetricSink(reg prometheus.Registerer) *MetricSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &MetricSink{
		registerer: reg,
		maxSeries:  DefaultMaxSeries,
		counters:   make(map[string]*prometheus.CounterVec),
		series:     make(map[string]map[string]struct{}),
	}
}

// PutMetricData adds datum.Value to the counter for namespace/datum.Name.
func (s *MetricSink) PutMetricData(_ context.Context, namespace string, datum forwarder.MetricDatum) error {
	labels := make([]string, 0, len(datum.Dimensions))
	values := make([]string, 0, len(datum.Dimensions))
	for _, d := range datum.Dimensions {
		labels = append(labels, LabelName(d.Name))
		values = append(values, labelValue(d))
	}

	vec, err := s.counter(namespace, datum.Name, labels, values)
	if err != nil {
		return err
	}

	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return fmt.Errorf("counter labels: %w", err)
	}
	c.Add(datum.Value)
	return nil
}

// counter returns the vector for namespace/name and admits values as a
// series, rewriting them to OverflowLabel in place when the vector is full.
func (s *MetricSink) counter(namespace, name string, labels, values []string) (*prometheus.CounterVec, error) {
	fqName := prometheus.BuildFQName(sanitize(namespace), "", sanitize(name))

	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := s.vector(fqName, labels)
	if err != nil {
		return nil, err
	}

	seen := s.series[fqName]
	key := strings.Join(values, "\xff")
	if _, ok := seen[key]; !ok {
		if len(seen) < s.maxSeries {
			seen[key] = struct{}{}
		} else {
			for i := range values {
				values[i] = OverflowLabel
			}
		}
	}
	return vec, nil
}

func (s *MetricSink) vector(fqName string, labels []string) (*prometheus.CounterVec, error) {
	if vec, ok := s.counters[fqName]; ok {
		return vec, nil
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: fqName,
		Help: "CSP violation reports by directive and location",
	}, labels)
	if err := s.registerer.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register %s: %w", fqName, err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("register %s: %w", fqName, err)
		}
		vec = existing
	}
	s.counters[fqName] = vec
	s.series[fqName] = make(map[string]struct{})
	return vec, nil
}

// labelValue reduces URI dimensions to scheme and host. Values that do not
// parse as absolute URIs, such as "inline" or "none", are kept.
func labelValue(d forwarder.Dimension) string {
	switch d.Name {
	case forwarder.DimensionBlockedURI, forwarder.DimensionDocumentURI, forwarder.DimensionSourceFile:
	default:
		return d.Value
	}
	u, err := url.Parse(d.Value)
	if err != nil || u.Scheme == "" {
		return d.Value
	}
	if u.Host == "" {
		return u.Scheme
	}
	return u.Scheme + "://" + u.Host
}

// LabelName converts a dimension name such as "ViolatedDirective" to
// "violated_directive".
func LabelName(dimension string) string {
	var b strings.Builder
	for i, r := range dimension {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return sanitize(b.String())
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
