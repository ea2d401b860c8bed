package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope carries the fields shared by every event.
type Envelope struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	TriggeredBy string    `json:"triggered_by"`
}

// Event is any payload carrying an Envelope.
type Event interface {
	Header() Envelope
}

func (e Envelope) Header() Envelope {
	return e
}

func NewEnvelope(triggeredBy string, now time.Time) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		Timestamp:   now.UTC(),
		TriggeredBy: triggeredBy,
	}
}

type UserCreated struct {
	Envelope
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type UserUpdated struct {
	Envelope
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// UserDeleted lists the organizations the user belonged to when deleted.
type UserDeleted struct {
	Envelope
	UserID          string   `json:"user_id"`
	OrganizationIDs []string `json:"organization_ids"`
}

type OrganizationCreated struct {
	Envelope
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
}

type OrganizationUpdated struct {
	Envelope
	OrganizationID string `json:"organization_id"`
	Status         string `json:"status"`
}

// OrganizationDeleted lists the members at deletion time. An empty list means
// the organization must be removed from every user.
type OrganizationDeleted struct {
	Envelope
	OrganizationID string   `json:"organization_id"`
	DeletedUserIDs []string `json:"deleted_user_ids"`
}

type InvitationAccepted struct {
	Envelope
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	InvitationID   string `json:"invitation_id"`
}

type InvitationsExpired struct {
	Envelope
	InvitationIDs []string `json:"invitation_ids"`
}

// Decode unmarshals a message body into v.
func Decode(msg Message, v any) error {
	return json.Unmarshal(msg.Body, v)
}
