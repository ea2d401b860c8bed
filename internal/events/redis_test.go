package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisBus(t *testing.T, cfg RedisConfig) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 20 * time.Millisecond
	}
	bus := NewRedisBus(client, cfg, zap.NewNop())
	t.Cleanup(func() { _ = bus.Close() })
	return bus, srv
}

func TestRedisBusDeliversToEveryQueue(t *testing.T) {
	bus, _ := newTestRedisBus(t, RedisConfig{Consumer: "test"})

	userSide := &recorder{}
	orgSide := &recorder{}
	require.NoError(t, bus.Subscribe(Binding{Queue: "user.invitation.accepted", Topic: TopicInvitation, RoutingKey: RoutingInvitationAccepted}, userSide.handle))
	require.NoError(t, bus.Subscribe(Binding{Queue: "organization.invitation.accepted", Topic: TopicInvitation, RoutingKey: RoutingInvitationAccepted}, orgSide.handle))
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(context.Background(), TopicInvitation, RoutingInvitationAccepted, []byte(`{"user_id":"u1"}`)))

	require.Eventually(t, func() bool {
		return userSide.count() == 1 && orgSide.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	userSide.mu.Lock()
	msg := userSide.msgs[0]
	userSide.mu.Unlock()
	require.Equal(t, RoutingInvitationAccepted, msg.RoutingKey)
	require.Equal(t, TopicInvitation, msg.Topic)
	require.JSONEq(t, `{"user_id":"u1"}`, string(msg.Body))
}

func TestRedisBusAcksOtherRoutingKeys(t *testing.T) {
	bus, srv := newTestRedisBus(t, RedisConfig{Consumer: "test"})

	rec := &recorder{}
	require.NoError(t, bus.Subscribe(Binding{Queue: "user.invitation.accepted", Topic: TopicInvitation, RoutingKey: RoutingInvitationAccepted}, rec.handle))
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(context.Background(), TopicInvitation, RoutingInvitationExpired, []byte(`{}`)))
	require.NoError(t, bus.Publish(context.Background(), TopicInvitation, RoutingInvitationAccepted, []byte(`{}`)))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	require.Eventually(t, func() bool {
		pending, err := client.XPending(context.Background(), bus.StreamKey(TopicInvitation), "user.invitation.accepted").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBusReadsEventsPublishedBeforeStart(t *testing.T) {
	bus, _ := newTestRedisBus(t, RedisConfig{Consumer: "test"})

	rec := &recorder{}
	require.NoError(t, bus.Subscribe(Binding{Queue: "organization.user.deleted", Topic: TopicUser, RoutingKey: RoutingUserDeleted}, rec.handle))
	require.NoError(t, bus.Publish(context.Background(), TopicUser, RoutingUserDeleted, []byte(`{}`)))
	require.NoError(t, bus.Start(context.Background()))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBusReclaimsFailedDeliveries(t *testing.T) {
	bus, _ := newTestRedisBus(t, RedisConfig{
		Consumer:        "test",
		ClaimIdle:       50 * time.Millisecond,
		MaxRedeliveries: 3,
	})

	var calls atomic.Int32
	handler := func(context.Context, Message) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}
	require.NoError(t, bus.Subscribe(Binding{Queue: "q", Topic: TopicOrganization, RoutingKey: RoutingOrganizationDeleted}, handler))
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), TopicOrganization, RoutingOrganizationDeleted, []byte(`{}`)))

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
}
