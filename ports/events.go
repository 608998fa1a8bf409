package ports

import "context"

// EventPublisher notifies other instances about authentication state changes
type EventPublisher interface {
	PublishSessionIssued(ctx context.Context, signer, account string) error
	PublishSessionRevoked(ctx context.Context, signer, account string) error
	PublishDeploymentRecorded(ctx context.Context, signer, account, mode string) error
}
