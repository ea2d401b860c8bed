package membershipsync

import (
	"context"
	"errors"

	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	QueueUserInvitationAccepted         = "user.invitation.accepted"
	QueueUserOrganizationDeleted        = "user.organization.deleted"
	QueueOrganizationInvitationAccepted = "organization.invitation.accepted"
	QueueOrganizationUserDeleted        = "organization.user.deleted"
)

// Subscription pairs a queue binding with the function that consumes it.
type Subscription struct {
	Binding events.Binding
	Handler events.Handler
}

// Handlers never return an error: a failed update is logged and counted, and
// the delivery is treated as handled so a poison message cannot loop.
type base struct {
	store   MembershipStore
	log     *zap.Logger
	metrics *metrics.PipelineMetrics
}

func (b *base) add(ctx context.Context, queue string, msg events.Message, ownerID, memberID string) {
	added, err := b.store.AddMembership(ctx, ownerID, memberID)
	switch {
	case errors.Is(err, ErrOwnerNotFound):
		b.report(queue, msg, metrics.OutcomeDropped, err, zap.String("owner_id", ownerID))
	case err != nil:
		b.report(queue, msg, metrics.OutcomeFailed, err, zap.String("owner_id", ownerID))
	case !added:
		b.report(queue, msg, metrics.OutcomeDuplicate, nil, zap.String("owner_id", ownerID))
	default:
		b.report(queue, msg, metrics.OutcomeApplied, nil, zap.String("owner_id", ownerID), zap.String("member_id", memberID))
	}
}

// removeFrom drops memberID from each owner, or from every owner when the
// list is empty.
func (b *base) removeFrom(ctx context.Context, queue string, msg events.Message, owners []string, memberID string) {
	if len(owners) == 0 {
		n, err := b.store.RemoveAllFor(ctx, memberID)
		if err != nil {
			b.report(queue, msg, metrics.OutcomeFailed, err, zap.String("member_id", memberID))
			return
		}
		b.report(queue, msg, metrics.OutcomeApplied, nil, zap.String("member_id", memberID), zap.Int64("removed", n))
		return
	}

	failed := 0
	for _, owner := range owners {
		if _, err := b.store.RemoveMembership(ctx, owner, memberID); err != nil {
			failed++
			b.log.Error("membership removal failed",
				zap.String("queue", queue),
				zap.String("owner_id", owner),
				zap.String("member_id", memberID),
				zap.Error(err),
			)
		}
	}
	if failed > 0 {
		b.metrics.IncHandled(queue, metrics.OutcomeFailed)
		return
	}
	b.report(queue, msg, metrics.OutcomeApplied, nil, zap.String("member_id", memberID), zap.Int("owners", len(owners)))
}

func (b *base) decode(queue string, msg events.Message, v any) bool {
	if err := events.Decode(msg, v); err != nil {
		b.report(queue, msg, metrics.OutcomeFailed, err)
		return false
	}
	return true
}

func (b *base) report(queue string, msg events.Message, outcome string, err error, fields ...zap.Field) {
	b.metrics.IncHandled(queue, outcome)
	fields = append(fields,
		zap.String("queue", queue),
		zap.String("message_id", msg.ID),
		zap.String("outcome", outcome),
	)
	switch outcome {
	case metrics.OutcomeFailed:
		b.log.Error("membership event not applied", append(fields, zap.Error(err))...)
	case metrics.OutcomeDropped:
		b.log.Warn("membership event dropped", append(fields, zap.Error(err))...)
	default:
		b.log.Debug("membership event handled", fields...)
	}
}

// UserHandler maintains the organizations of each user.
type UserHandler struct {
	base
}

func NewUserHandler(store MembershipStore, log *zap.Logger) *UserHandler {
	return &UserHandler{base{store: store, log: log.Named("membershipsync.user"), metrics: metrics.Pipeline()}}
}

func (h *UserHandler) HandleInvitationAccepted(ctx context.Context, msg events.Message) error {
	var evt events.InvitationAccepted
	if h.decode(QueueUserInvitationAccepted, msg, &evt) {
		h.add(ctx, QueueUserInvitationAccepted, msg, evt.UserID, evt.OrganizationID)
	}
	return nil
}

func (h *UserHandler) HandleOrganizationDeleted(ctx context.Context, msg events.Message) error {
	var evt events.OrganizationDeleted
	if h.decode(QueueUserOrganizationDeleted, msg, &evt) {
		h.removeFrom(ctx, QueueUserOrganizationDeleted, msg, evt.DeletedUserIDs, evt.OrganizationID)
	}
	return nil
}

func (h *UserHandler) Subscriptions() []Subscription {
	return []Subscription{
		{
			Binding: events.Binding{Queue: QueueUserInvitationAccepted, Topic: events.TopicInvitation, RoutingKey: events.RoutingInvitationAccepted},
			Handler: h.HandleInvitationAccepted,
		},
		{
			Binding: events.Binding{Queue: QueueUserOrganizationDeleted, Topic: events.TopicOrganization, RoutingKey: events.RoutingOrganizationDeleted},
			Handler: h.HandleOrganizationDeleted,
		},
	}
}

// OrganizationHandler maintains the users of each organization.
type OrganizationHandler struct {
	base
}

func NewOrganizationHandler(store MembershipStore, log *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{base{store: store, log: log.Named("membershipsync.organization"), metrics: metrics.Pipeline()}}
}

func (h *OrganizationHandler) HandleInvitationAccepted(ctx context.Context, msg events.Message) error {
	var evt events.InvitationAccepted
	if h.decode(QueueOrganizationInvitationAccepted, msg, &evt) {
		h.add(ctx, QueueOrganizationInvitationAccepted, msg, evt.OrganizationID, evt.UserID)
	}
	return nil
}

func (h *OrganizationHandler) HandleUserDeleted(ctx context.Context, msg events.Message) error {
	var evt events.UserDeleted
	if h.decode(QueueOrganizationUserDeleted, msg, &evt) {
		h.removeFrom(ctx, QueueOrganizationUserDeleted, msg, evt.OrganizationIDs, evt.UserID)
	}
	return nil
}

func (h *OrganizationHandler) Subscriptions() []Subscription {
	return []Subscription{
		{
			Binding: events.Binding{Queue: QueueOrganizationInvitationAccepted, Topic: events.TopicInvitation, RoutingKey: events.RoutingInvitationAccepted},
			Handler: h.HandleInvitationAccepted,
		},
		{
			Binding: events.Binding{Queue: QueueOrganizationUserDeleted, Topic: events.TopicUser, RoutingKey: events.RoutingUserDeleted},
			Handler: h.HandleUserDeleted,
		},
	}
}

// Subscribe registers every subscription on sub.
func Subscribe(sub events.Subscriber, subs []Subscription) error {
	for _, s := range subs {
		if err := sub.Subscribe(s.Binding, s.Handler); err != nil {
			return err
		}
	}
	return nil
}
