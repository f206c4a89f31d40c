// Package events publishes ticket lifecycle events for downstream consumers
// such as analytics and search. Publishing is best-effort and never blocks
// the hub.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	TicketCreated   = "ticket.created"
	TicketEscalated = "ticket.escalated"
	TicketClaimed   = "ticket.claimed"
	TicketReleased  = "ticket.released"
	TicketClosed    = "ticket.closed"
	MessageAdded    = "ticket.message"
)

// Event is one published record
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"event"`
	TicketID  string         `json:"ticket_id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent stamps an event with an id and the current time
func NewEvent(typ, ticketID, agentID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		TicketID:  ticketID,
		AgentID:   agentID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Publisher sends ticket events
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
func (Nop) Close() error                   { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by ticket id, so every
// event of a ticket lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher. With no brokers or no topic it
// returns Nop.
func NewKafkaPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 || topic == "" {
		return Nop{}
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Warn().Err(err).Int("count", len(messages)).Msg("Failed to publish ticket events")
				}
			},
		},
	}
}

// Publish implements Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		log.Warn().Err(err).Str("event", e.Type).Msg("Failed to encode ticket event")
		return
	}
	msg := kafka.Message{Key: []byte(e.TicketID), Value: body}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Warn().Err(err).Str("event", e.Type).Str("ticket_id", e.TicketID).Msg("Failed to queue ticket event")
	}
}

// Close flushes pending events and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a list
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
