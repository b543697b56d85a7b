package events

import (
	"time"

	"zap-backend/internal/clients"
	"zap-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// PipelineEvent is published on every per-vault stage transition so external
// consumers (dashboards, alerting) can follow deposits without polling.
type PipelineEvent struct {
	SessionID string               `json:"sessionId"`
	VaultID   string               `json:"vaultId"`
	ChainID   string               `json:"chainId"`
	Stage     models.PipelineStage `json:"stage"`
	Mode      string               `json:"mode,omitempty"` // zap | direct
	TxHash    string               `json:"txHash,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Publisher publishes pipeline events. A nil Publisher is usable and drops
// everything, so callers never need to branch on NATS being configured.
type Publisher struct {
	nats *clients.NATSClient
}

// NewPublisher wraps a NATS client; pass nil when NATS is not configured.
func NewPublisher(nats *clients.NATSClient) *Publisher {
	if nats == nil {
		return nil
	}
	return &Publisher{nats: nats}
}

// StageChanged publishes a stage transition. Publish failures are logged and
// swallowed: eventing must never fail a deposit.
func (p *Publisher) StageChanged(event PipelineEvent) {
	if p == nil || p.nats == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := p.nats.PublishJSON(string(event.Stage), event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"vault": event.VaultID,
			"stage": event.Stage,
		}).Warn("failed to publish pipeline event")
	}
}
