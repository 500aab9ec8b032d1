// Package nats publishes forwarded violation records to NATS subjects.
package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/forwarder"
)

// HeaderTimestamp carries the event time in RFC 3339 with milliseconds.
const HeaderTimestamp = "Csp-Report-Timestamp"

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name identifies the connection on the server.
	Name string

	// SubjectPrefix is prepended to "<group>.<stream>".
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	Username string
	Password string
	Token    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "cspreport",
		SubjectPrefix: "csp",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials the server described by cfg.
func Connect(cfg Config, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.Default()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// LogSink publishes each log event to "<prefix>.<group>.<stream>".
type LogSink struct {
	pub    Publisher
	prefix string
}

// NewLogSink returns a LogSink publishing through pub.
func NewLogSink(pub Publisher, subjectPrefix string) *LogSink {
	return &LogSink{pub: pub, prefix: subjectPrefix}
}

// Subject returns the subject a group/stream pair maps to. Whitespace is
// not allowed in subject tokens and is replaced with underscores.
func (s *LogSink) Subject(group, stream string) string {
	tokens := make([]string, 0, 3)
	if s.prefix != "" {
		tokens = append(tokens, s.prefix)
	}
	tokens = append(tokens, group, stream)
	return strings.Join(strings.Fields(strings.Join(tokens, ".")), "_")
}

// PutLogEvent publishes event.
func (s *LogSink) PutLogEvent(ctx context.Context, group, stream string, event forwarder.LogEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(s.Subject(group, stream))
	msg.Header.Set(HeaderTimestamp, event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	msg.Data = []byte(event.Message)

	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}
