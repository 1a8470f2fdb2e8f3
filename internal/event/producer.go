package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hotelkalsubai/backend/internal/domain"
	pkgkafka "github.com/hotelkalsubai/backend/pkg/kafka"
)

// Kafka topic constants for account domain events.
const (
	TopicUserRegistered    = "hotel.user.registered"
	TopicUserPasswordReset = "hotel.user.password_reset"
	TopicUserRoleUpdated   = "hotel.user.role_updated"
	TopicUserDeleted       = "hotel.user.deleted"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the account service.
const SourceAccountService = "account-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	Provider string   `json:"provider,omitempty"`
}

// UserPasswordResetData is the payload for a user.password_reset event.
type UserPasswordResetData struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Channel string `json:"channel"`
}

// UserRoleUpdatedData is the payload for a user.role_updated event.
type UserRoleUpdatedData struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// UserDeletedData is the payload for a user.deleted event.
type UserDeletedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Producer publishes account domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the account service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event. The provider is
// empty for password signups and names the identity provider for social
// sign-ins.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, provider string) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
		Provider: provider,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, AggregateTypeUser, SourceAccountService, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// PublishUserPasswordReset publishes a user.password_reset event. Channel is
// "email" or "sms" depending on which recovery flow completed.
func (p *Producer) PublishUserPasswordReset(ctx context.Context, userID, email, channel string) error {
	data := UserPasswordResetData{
		UserID:  userID,
		Email:   email,
		Channel: channel,
	}

	event, err := pkgkafka.NewEvent(TopicUserPasswordReset, userID, AggregateTypeUser, SourceAccountService, data)
	if err != nil {
		return fmt.Errorf("create user.password_reset event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserPasswordReset, event); err != nil {
		return fmt.Errorf("publish user.password_reset event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.password_reset event",
		slog.String("user_id", userID),
		slog.String("channel", channel),
	)

	return nil
}

// PublishUserRoleUpdated publishes a user.role_updated event.
func (p *Producer) PublishUserRoleUpdated(ctx context.Context, user *domain.User) error {
	data := UserRoleUpdatedData{
		UserID: user.ID,
		Roles:  user.Roles,
	}

	event, err := pkgkafka.NewEvent(TopicUserRoleUpdated, user.ID, AggregateTypeUser, SourceAccountService, data)
	if err != nil {
		return fmt.Errorf("create user.role_updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRoleUpdated, event); err != nil {
		return fmt.Errorf("publish user.role_updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.role_updated event",
		slog.String("user_id", user.ID),
	)

	return nil
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, userID, email string) error {
	data := UserDeletedData{
		UserID: userID,
		Email:  email,
	}

	event, err := pkgkafka.NewEvent(TopicUserDeleted, userID, AggregateTypeUser, SourceAccountService, data)
	if err != nil {
		return fmt.Errorf("create user.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserDeleted, event); err != nil {
		return fmt.Errorf("publish user.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.deleted event",
		slog.String("user_id", userID),
	)

	return nil
}
