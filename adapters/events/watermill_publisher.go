package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/albert-vybestein/neobank/ports"
)

// Topics
const (
	TopicSessionIssued      = "neobank.session.issued"
	TopicSessionRevoked     = "neobank.session.revoked"
	TopicDeploymentRecorded = "neobank.deployment.recorded"
)

// SessionEvent is published when a session is issued or revoked.
// It never carries the bearer token.
type SessionEvent struct {
	SignerAddress  string    `json:"signerAddress"`
	AccountAddress string    `json:"accountAddress"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// DeploymentEvent represents a newly persisted account deployment
type DeploymentEvent struct {
	SignerAddress  string    `json:"signerAddress"`
	AccountAddress string    `json:"accountAddress"`
	Mode           string    `json:"mode"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		now:       time.Now,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishSessionIssued publishes a session issued event
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, signer, account string) error {
	return p.publish(ctx, TopicSessionIssued, SessionEvent{
		SignerAddress:  signer,
		AccountAddress: account,
		OccurredAt:     p.now().UTC(),
	})
}

// PublishSessionRevoked publishes a logout event
func (p *WatermillPublisher) PublishSessionRevoked(ctx context.Context, signer, account string) error {
	return p.publish(ctx, TopicSessionRevoked, SessionEvent{
		SignerAddress:  signer,
		AccountAddress: account,
		OccurredAt:     p.now().UTC(),
	})
}

// PublishDeploymentRecorded publishes a deployment event
func (p *WatermillPublisher) PublishDeploymentRecorded(ctx context.Context, signer, account, mode string) error {
	return p.publish(ctx, TopicDeploymentRecorded, DeploymentEvent{
		SignerAddress:  signer,
		AccountAddress: account,
		Mode:           mode,
		OccurredAt:     p.now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the underlying publisher
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// NopPublisher drops every event
type NopPublisher struct{}

var _ ports.EventPublisher = NopPublisher{}

func (NopPublisher) PublishSessionIssued(context.Context, string, string) error  { return nil }
func (NopPublisher) PublishSessionRevoked(context.Context, string, string) error { return nil }
func (NopPublisher) PublishDeploymentRecorded(context.Context, string, string, string) error {
	return nil
}
