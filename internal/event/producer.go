package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	pkgkafka "github.com/nemisolv/englearn-auth/pkg/kafka"
	"github.com/nemisolv/englearn-auth/pkg/logger"
)

// Kafka topic constants for security events.
const (
	TopicUserLoggedIn       = "englearn.auth.user_logged_in"
	TopicTokenReuseDetected = "englearn.auth.token_reuse_detected"
	TopicSessionsRevoked    = "englearn.auth.sessions_revoked"
)

// AggregateTypeUser is the aggregate every auth event is keyed by.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "englearn-auth"

// Reasons carried by SessionsRevokedData.
const (
	RevokeReasonLogout     = "logout"
	RevokeReasonLogoutAll  = "logout_all"
	RevokeReasonAdmin      = "admin"
	RevokeReasonTokenReuse = "token_reuse"
	RevokeReasonSessionCap = "session_cap"
)

// UserLoggedInData is the payload for a user_logged_in event.
type UserLoggedInData struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	SessionID  int64     `json:"session_id"`
	DeviceInfo string    `json:"device_info,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TokenReuseDetectedData is the payload for a token_reuse_detected event.
type TokenReuseDetectedData struct {
	UserID       int64     `json:"user_id"`
	TokenID      int64     `json:"token_id"`
	Scope        string    `json:"scope"`
	RevokedCount int       `json:"revoked_count"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SessionsRevokedData is the payload for a sessions_revoked event.
type SessionsRevokedData struct {
	UserID     int64     `json:"user_id"`
	Reason     string    `json:"reason"`
	SessionIDs []int64   `json:"session_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is the Kafka transport used by Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth security events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserLoggedIn publishes a user_logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, data UserLoggedInData) error {
	return p.publish(ctx, TopicUserLoggedIn, data.UserID, data)
}

// PublishTokenReuseDetected publishes a token_reuse_detected event.
func (p *Producer) PublishTokenReuseDetected(ctx context.Context, data TokenReuseDetectedData) error {
	return p.publish(ctx, TopicTokenReuseDetected, data.UserID, data)
}

// PublishSessionsRevoked publishes a sessions_revoked event.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, data SessionsRevokedData) error {
	return p.publish(ctx, TopicSessionsRevoked, data.UserID, data)
}

func (p *Producer) publish(ctx context.Context, topic string, userID int64, data any) error {
	event, err := pkgkafka.NewEvent(topic, strconv.FormatInt(userID, 10), AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.Int64("user_id", userID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// Discard drops every event. It is used when no Kafka brokers are configured.
type Discard struct{}

func (Discard) PublishUserLoggedIn(context.Context, UserLoggedInData) error { return nil }

func (Discard) PublishTokenReuseDetected(context.Context, TokenReuseDetectedData) error {
	return nil
}

func (Discard) PublishSessionsRevoked(context.Context, SessionsRevokedData) error { return nil }
