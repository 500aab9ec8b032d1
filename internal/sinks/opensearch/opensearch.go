// Package opensearch indexes forwarded violation records into OpenSearch.
package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/cspreport/internal/forwarder"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
}

// DefaultConfig returns settings for a local development cluster.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
	}
}

// document is the indexed shape: the serialized record plus its event time.
type document struct {
	Timestamp time.Time       `json:"@timestamp"`
	Report    json.RawMessage `json:"report"`
}

// LogSink writes each log event as one document. The destination index is
// "<group>-<stream>", lowercased.
type LogSink struct {
	client *opensearch.Client
}

// NewLogSink creates a client for cfg.
func NewLogSink(cfg Config) (*LogSink, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &LogSink{client: client}, nil
}

// IndexName returns the index a group/stream pair maps to.
func IndexName(group, stream string) string {
	return strings.ToLower(group + "-" + stream)
}

// PutLogEvent indexes event into the group/stream index.
func (s *LogSink) PutLogEvent(ctx context.Context, group, stream string, event forwarder.LogEvent) error {
	data, err := json.Marshal(document{
		Timestamp: event.Timestamp.UTC(),
		Report:    json.RawMessage(event.Message),
	})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := s.client.Index(
		IndexName(group, stream),
		strings.NewReader(string(data)),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("opensearch returned error: %s - %s", res.Status(), string(bodyBytes))
	}
	return nil
}

// Ping verifies the cluster is reachable.
func (s *LogSink) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}
