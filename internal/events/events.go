// Package events is the asynchronous event channel between the invitation,
// user and organization services. Delivery is at-least-once and unordered, so
// every consumer must be idempotent.
package events

import (
	"context"
	"errors"
	"strings"
)

const (
	TopicUser         = "orgsync.user"
	TopicOrganization = "orgsync.organization"
	TopicInvitation   = "orgsync.invitation"
)

const (
	RoutingUserCreated = "user.created"
	RoutingUserUpdated = "user.updated"
	RoutingUserDeleted = "user.deleted"

	RoutingOrganizationCreated = "organization.created"
	RoutingOrganizationUpdated = "organization.updated"
	RoutingOrganizationDeleted = "organization.deleted"

	RoutingInvitationAccepted = "invitation.accepted"
	RoutingInvitationExpired  = "invitation.expired"
)

var (
	ErrClosed         = errors.New("event_bus_closed")
	ErrQueueFull      = errors.New("event_queue_full")
	ErrInvalidBinding = errors.New("invalid_event_binding")
	ErrUnknownTopic   = errors.New("unknown_event_topic")
)

// Message is one delivery of a published event.
type Message struct {
	ID         string
	Topic      string
	RoutingKey string
	Body       []byte
	// Attempt starts at 1 and grows with each redelivery.
	Attempt int
}

// Handler consumes a delivery. A non-nil error asks the channel to redeliver.
type Handler func(ctx context.Context, msg Message) error

// Binding attaches a named queue to one routing key of a topic. Each queue
// receives its own copy of every matching event.
type Binding struct {
	Queue      string
	Topic      string
	RoutingKey string
}

func (b Binding) validate() error {
	if strings.TrimSpace(b.Queue) == "" || strings.TrimSpace(b.Topic) == "" || strings.TrimSpace(b.RoutingKey) == "" {
		return ErrInvalidBinding
	}
	return nil
}

func (b Binding) matches(topic, routingKey string) bool {
	return b.Topic == topic && (b.RoutingKey == routingKey || b.RoutingKey == "#")
}

type Publisher interface {
	Publish(ctx context.Context, topic, routingKey string, body []byte) error
}

type Subscriber interface {
	Subscribe(binding Binding, handler Handler) error
}

// Bus is a transport implementing both sides of the channel.
type Bus interface {
	Publisher
	Subscriber
	Start(ctx context.Context) error
	Close() error
}

// TopicFor maps a routing key to the topic that carries it.
func TopicFor(routingKey string) (string, error) {
	prefix, _, _ := strings.Cut(routingKey, ".")
	switch prefix {
	case "user":
		return TopicUser, nil
	case "organization":
		return TopicOrganization, nil
	case "invitation":
		return TopicInvitation, nil
	default:
		return "", ErrUnknownTopic
	}
}
