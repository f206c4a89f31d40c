package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"k1:9092", []string{"k1:9092"}},
		{" k1:9092 , ,k2:9092,", []string{"k1:9092", "k2:9092"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBrokers(tt.in), tt.in)
	}
}

func TestNewKafkaPublisher_NopWithoutBrokers(t *testing.T) {
	p := NewKafkaPublisher(nil, "ticket-events")
	assert.IsType(t, Nop{}, p)

	p = NewKafkaPublisher([]string{"k1:9092"}, "")
	assert.IsType(t, Nop{}, p)

	p.Publish(context.Background(), NewEvent(TicketClaimed, "T1", "a1", nil))
	assert.NoError(t, p.Close())
}

func TestNewKafkaPublisher_WithBrokers(t *testing.T) {
	p := NewKafkaPublisher([]string{"127.0.0.1:1"}, "ticket-events")
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "ticket-events", kp.writer.Topic)
	assert.True(t, kp.writer.Async)
}

func TestEvent_JSON(t *testing.T) {
	e := NewEvent(TicketReleased, "T1", "a1", map[string]any{"reason": "agent"})

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "ticket.released", m["event"])
	assert.Equal(t, "T1", m["ticket_id"])
	assert.Equal(t, "a1", m["agent_id"])
	assert.NotEmpty(t, m["id"])
}
