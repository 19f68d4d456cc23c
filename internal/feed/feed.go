// Package feed implements the store change feed: an in-process publish/
// subscribe channel over which row-level write notifications are delivered
// to long-lived consumers such as the live roster.
//
// The transport is Watermill's gochannel Pub/Sub. One topic exists per table;
// payloads are JSON-encoded Event values.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EventType is the kind of row write an Event describes.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"

	// All matches every event type when used as a subscription mask.
	All EventType = "*"
)

// Matches reports whether an event of type t passes the mask m.
func (m EventType) Matches(t EventType) bool { return m == All || m == t }

// Event is a change notification for one table write. Consumers must not
// rely on the payload for state; it only signals that state moved.
type Event struct {
	Table string    `json:"table"`
	Type  EventType `json:"type"`
	ID    string    `json:"id,omitempty"`
	At    time.Time `json:"at"`
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription is a live registration on the feed. C is closed once the
// subscription ends; Close is idempotent.
type Subscription interface {
	C() <-chan Event
	Close() error
}

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("feed: broker closed")

const topicPrefix = "devradar.changes."

var feedEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "devradar_feed_events_total",
		Help: "Change events published on the store feed.",
	},
	[]string{"table", "type"},
)

func init() {
	prometheus.MustRegister(feedEvents)
}

// Config tunes the broker.
type Config struct {
	// Buffer is the per-subscriber channel capacity. Values < 1 mean 1.
	Buffer int
}

// Broker is an in-process change feed.
type Broker struct {
	pubsub *gochannel.GoChannel
	buffer int
	log    zerolog.Logger
	closed atomic.Bool
}

// NewBroker builds a broker that logs through log.
func NewBroker(cfg Config, log zerolog.Logger) *Broker {
	buf := cfg.Buffer
	if buf < 1 {
		buf = 1
	}
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buf),
	}, NewLogger(log))
	return &Broker{pubsub: ps, buffer: buf, log: log}
}

// Publish sends ev to every subscriber of ev.Table.
func (b *Broker) Publish(ctx context.Context, ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topicPrefix+ev.Table, msg); err != nil {
		return err
	}
	feedEvents.WithLabelValues(ev.Table, string(ev.Type)).Inc()
	return nil
}

// Subscribe registers for events on table whose type passes mask. The
// subscription ends when ctx is cancelled or Close is called.
func (b *Broker) Subscribe(ctx context.Context, table string, mask EventType) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, topicPrefix+table)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &subscription{
		out:    make(chan Event, b.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump(subCtx, msgs, mask, b.log)
	return s, nil
}

// Close shuts the broker down and ends all subscriptions.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}

type subscription struct {
	out    chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) C() <-chan Event { return s.out }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *subscription) pump(ctx context.Context, msgs <-chan *message.Message, mask EventType, log zerolog.Logger) {
	defer close(s.done)
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("feed: dropping undecodable event")
				msg.Ack()
				continue
			}
			msg.Ack()
			if !mask.Matches(ev.Type) {
				continue
			}
			select {
			case s.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
