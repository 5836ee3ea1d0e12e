package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
)

const (
	RealtimeEventReminder  = "reminder"
	RealtimeEventXP        = "xp"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "assistant-backend"

	defaultRealtimeBufferSize = 16
)

var (
	// ErrNoSubscribers indicates the user has no open event stream.
	ErrNoSubscribers = errors.New("realtime: user has no subscribers")
	// ErrSubscribersBusy indicates every open stream of the user had a full buffer.
	ErrSubscribersBusy = errors.New("realtime: subscriber buffers full")
)

// RealtimeMessage is one event delivered to a user's open streams.
type RealtimeMessage struct {
	UserID    int64
	EventType string
	Payload   interface{}
	Timestamp time.Time
}

// RealtimeDispatcher fans events out to per-user subscribers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]map[int64]*realtimeSubscriber),
		bufferSize:  defaultRealtimeBufferSize,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for userID. The stream is unregistered when ctx ends
// or the returned cleanup runs, whichever happens first.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID int64) (<-chan RealtimeMessage, func()) {
	if userID <= 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of the user without blocking
// and returns how many streams accepted it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) int {
	if message.UserID <= 0 || message.EventType == "" {
		return 0
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	delivered := 0
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
			delivered++
		default:
		}
	}
	return delivered
}

// Notify implements reminders.Notifier. Delivery fails when the user has no open stream,
// so the scheduler leaves the flag unset and retries on the next tick.
func (d *RealtimeDispatcher) Notify(ctx context.Context, notification reminders.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.SubscriberCount(notification.UserID) == 0 {
		return ErrNoSubscribers
	}
	delivered := d.Publish(RealtimeMessage{
		UserID:    notification.UserID,
		EventType: RealtimeEventReminder,
		Payload:   notification,
	})
	if delivered == 0 {
		return ErrSubscribersBusy
	}
	return nil
}

// SubscriberCount returns the number of open streams for the user.
func (d *RealtimeDispatcher) SubscriberCount(userID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID int64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID int64, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
