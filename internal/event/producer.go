package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	"github.com/spartak030506-hash/shop-backend/pkg/kafka"
	"github.com/spartak030506-hash/shop-backend/pkg/logger"
)

const (
	// TopicUserEvents is the Kafka topic for user lifecycle events.
	TopicUserEvents = "user.events"

	sourceName    = "shop-backend"
	aggregateUser = "user"
)

// Event types published by this service.
const (
	TypeUserRegistered      = "user.registered"
	TypeUserUpdated         = "user.updated"
	TypeUserDeleted         = "user.deleted"
	TypeUserPasswordChanged = "user.password_changed"
)

// UserRegisteredData is the payload of a user.registered event.
type UserRegisteredData struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserUpdatedData is the payload of a user.updated event.
type UserUpdatedData struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserDeletedData is the payload of a user.deleted event.
type UserDeletedData struct {
	UserID    string    `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// UserPasswordChangedData is the payload of a user.password_changed event.
// Emitted so downstream services can invalidate their own caches; every
// refresh session is already revoked by the time this is published.
type UserPasswordChangedData struct {
	UserID    string    `json:"user_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// Publisher abstracts the Kafka producer for testability.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Producer publishes user lifecycle events. Publishing is best-effort: a
// broker failure is logged, never propagated to the caller, so the state
// change that triggered the event always wins.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a user event producer.
func NewProducer(publisher Publisher, log *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: log}
}

// UserRegistered publishes a user.registered event.
func (p *Producer) UserRegistered(ctx context.Context, user *domain.User) {
	p.publish(ctx, TypeUserRegistered, user.ID.String(), UserRegisteredData{
		UserID:    user.ID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	})
}

// UserUpdated publishes a user.updated event.
func (p *Producer) UserUpdated(ctx context.Context, user *domain.User) {
	p.publish(ctx, TypeUserUpdated, user.ID.String(), UserUpdatedData{
		UserID:    user.ID.String(),
		Email:     user.Email,
		UpdatedAt: user.UpdatedAt,
	})
}

// UserDeleted publishes a user.deleted event.
func (p *Producer) UserDeleted(ctx context.Context, userID string) {
	p.publish(ctx, TypeUserDeleted, userID, UserDeletedData{
		UserID:    userID,
		DeletedAt: time.Now().UTC(),
	})
}

// UserPasswordChanged publishes a user.password_changed event.
func (p *Producer) UserPasswordChanged(ctx context.Context, userID string) {
	p.publish(ctx, TypeUserPasswordChanged, userID, UserPasswordChangedData{
		UserID:    userID,
		ChangedAt: time.Now().UTC(),
	})
}

func (p *Producer) publish(ctx context.Context, eventType, aggregateID string, data any) {
	evt, err := kafka.NewEvent(eventType, aggregateID, aggregateUser, sourceName, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}

	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	if err := p.publisher.Publish(ctx, TopicUserEvents, evt); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			slog.String("aggregate_id", aggregateID),
			slog.String("error", err.Error()),
		)
	}
}
