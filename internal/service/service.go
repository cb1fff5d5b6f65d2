package service

import (
	"context"

	"github.com/nemisolv/englearn-auth/internal/event"
)

// EventPublisher emits security events. Publishing failures are logged by
// the caller and never fail the triggering request.
type EventPublisher interface {
	PublishUserLoggedIn(ctx context.Context, data event.UserLoggedInData) error
	PublishTokenReuseDetected(ctx context.Context, data event.TokenReuseDetectedData) error
	PublishSessionsRevoked(ctx context.Context, data event.SessionsRevokedData) error
}
