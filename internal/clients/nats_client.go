package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"zap-backend/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient NATS client used for publishing pipeline events
type NATSClient struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSClient creates a NATS client. subjectPrefix prefixes every
// published subject, e.g. "zap.deposit".
func NewNATSClient(url, subjectPrefix string, timeout time.Duration) (*NATSClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &NATSClient{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}, nil
}

// PublishJSON publishes a JSON-encoded payload under the prefixed subject.
func (c *NATSClient) PublishJSON(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	full := subject
	if c.subjectPrefix != "" {
		full = c.subjectPrefix + "." + subject
	}
	if err := c.conn.Publish(full, data); err != nil {
		metrics.NATSPublishErrors.Inc()
		return fmt.Errorf("failed to publish %s: %w", full, err)
	}
	metrics.NATSMessagesPublished.WithLabelValues(subject).Inc()
	return nil
}

// Close drains and closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
