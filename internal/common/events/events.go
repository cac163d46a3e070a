// Package events defines the domain-event hook points of the login
// pipeline and their watermill-backed implementation.
package events

import "context"

// Topics
const (
	TopicValidationFailed = "siwe.validation_failed"
	TopicUserCreated      = "siwe.user_created"
	TopicUserUpdated      = "siwe.user_updated"
	TopicUserLogin        = "siwe.user_login"
)

// ValidationFailedEvent fires when a login attempt fails signature
// validation. Consumers use it for alerting and abuse detection.
type ValidationFailedEvent struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

// UserEvent fires for user lifecycle changes driven by wallet login.
type UserEvent struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

// Publisher publishes pipeline events. Publishing failures must never
// fail the login request; implementations log and move on.
type Publisher interface {
	PublishValidationFailed(ctx context.Context, event ValidationFailedEvent)
	PublishUser(ctx context.Context, topic string, event UserEvent)
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Compile-time interface compliance check
var _ Publisher = (*NopPublisher)(nil)

func (NopPublisher) PublishValidationFailed(context.Context, ValidationFailedEvent) {}
func (NopPublisher) PublishUser(context.Context, string, UserEvent)                 {}
