package outbox

import (
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotifyChannel is the postgres channel signalled when a record is enqueued.
const NotifyChannel = "orgsync_outbox"

const (
	listenerMinReconnect = time.Second
	listenerMaxReconnect = 30 * time.Second
)

// notify queues a NOTIFY on tx. Postgres delivers it only if tx commits.
func notify(tx *gorm.DB, routingKey string) error {
	return tx.Exec("SELECT pg_notify(?, ?)", NotifyChannel, routingKey).Error
}

// Listener turns postgres notifications on NotifyChannel into relay wake-ups.
// Bursts collapse into one pending signal.
type Listener struct {
	listener *pq.Listener
	wake     chan struct{}
	done     chan struct{}
	once     sync.Once
	log      *zap.Logger
}

func NewListener(dsn string, log *zap.Logger) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Listener{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log.Named("outbox.listener"),
	}
	l.listener = pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect, l.onEvent)
	if err := l.listener.Listen(NotifyChannel); err != nil {
		_ = l.listener.Close()
		return nil, err
	}
	go l.loop()
	return l, nil
}

func (l *Listener) Wake() <-chan struct{} {
	return l.wake
}

func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if l.listener != nil {
			err = l.listener.Close()
		}
	})
	return err
}

func (l *Listener) loop() {
	for {
		select {
		case <-l.done:
			return
		case _, ok := <-l.listener.Notify:
			if !ok {
				return
			}
			// A nil notification follows a reconnect; anything may have been
			// missed, so it wakes the relay as well.
			l.signal()
		}
	}
}

func (l *Listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Listener) onEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		l.log.Info("outbox listener connected")
	case pq.ListenerEventReconnected:
		l.log.Info("outbox listener reconnected")
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		l.log.Warn("outbox listener connection lost", zap.Error(err))
	}
}
